package policy

import (
	"strings"
	"testing"
)

func TestValidate_Terraform(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed bool
		reason  string
	}{
		{"bare invocation", nil, true, ""},
		{"leading flag", []string{"-help"}, true, ""},
		{"version flag", []string{"--version"}, true, ""},
		{"plan", []string{"plan", "-out=plan.bin"}, true, ""},
		{"init", []string{"init"}, true, ""},
		{"validate", []string{"validate"}, true, ""},
		{"fmt check", []string{"fmt", "-check"}, true, ""},
		{"show plan file", []string{"show", "plan.bin"}, true, ""},
		{"destroy", []string{"destroy"}, false, "destroy"},
		{"apply", []string{"apply", "plan.bin"}, false, "apply"},
		{"import", []string{"import", "aws_instance.web", "i-1234"}, false, "import"},
		{"taint", []string{"taint", "aws_instance.web"}, false, "taint"},
		{"state list", []string{"state", "list"}, true, ""},
		{"state show", []string{"state", "show", "aws_instance.web"}, true, ""},
		{"state pull", []string{"state", "pull"}, true, ""},
		{"state rm", []string{"state", "rm", "aws_instance.web"}, false, "rm"},
		{"state mv", []string{"state", "mv", "a", "b"}, false, "mv"},
		{"state bare", []string{"state"}, true, ""},
		{"state with flag only", []string{"state", "-help"}, true, ""},
		{"workspace list", []string{"workspace", "list"}, true, ""},
		{"workspace select", []string{"workspace", "select", "staging"}, true, ""},
		{"workspace new", []string{"workspace", "new", "prod"}, false, "new"},
		{"workspace delete", []string{"workspace", "delete", "old"}, false, "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Validate("terraform", tt.args)
			if d.Allowed != tt.allowed {
				t.Fatalf("Validate(terraform, %v).Allowed = %v, want %v (reason %q)",
					tt.args, d.Allowed, tt.allowed, d.Reason)
			}
			if tt.allowed && d.Reason != "" {
				t.Errorf("allowed decision should carry no reason, got %q", d.Reason)
			}
			if !tt.allowed && !strings.Contains(d.Reason, tt.reason) {
				t.Errorf("reason %q should contain %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestValidate_Kubectl(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed bool
		reason  string
	}{
		{"bare", nil, true, ""},
		{"get pods", []string{"get", "pods", "-n", "default"}, true, ""},
		{"describe", []string{"describe", "deployment", "api"}, true, ""},
		{"logs follow", []string{"logs", "-f", "pod/api-0"}, true, ""},
		{"top", []string{"top", "nodes"}, true, ""},
		{"diff", []string{"diff", "-f", "deploy.yaml"}, true, ""},
		{"delete", []string{"delete", "pod", "api-0"}, false, "delete"},
		{"apply", []string{"apply", "-f", "deploy.yaml"}, false, "apply"},
		{"scale", []string{"scale", "deploy/api", "--replicas=3"}, false, "scale"},
		{"exec", []string{"exec", "-it", "api-0", "--", "sh"}, false, "exec"},
		{"config view", []string{"config", "view"}, true, ""},
		{"config current-context", []string{"config", "current-context"}, true, ""},
		{"config use-context", []string{"config", "use-context", "prod"}, false, "use-context"},
		{"config set-context", []string{"config", "set-context", "x"}, false, "set-context"},
		{"auth can-i", []string{"auth", "can-i", "create", "pods"}, true, ""},
		{"auth whoami", []string{"auth", "whoami"}, true, ""},
		{"auth reconcile", []string{"auth", "reconcile", "-f", "rbac.yaml"}, false, "reconcile"},
		{"namespace flag before verb", []string{"-n", "prod", "get", "pods"}, true, ""},
		{"namespace flag before denied verb", []string{"-n", "prod", "delete", "pod", "x"}, false, "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Validate("kubectl", tt.args)
			if d.Allowed != tt.allowed {
				t.Fatalf("Validate(kubectl, %v).Allowed = %v, want %v (reason %q)",
					tt.args, d.Allowed, tt.allowed, d.Reason)
			}
			if !tt.allowed && !strings.Contains(d.Reason, tt.reason) {
				t.Errorf("reason %q should contain %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestValidate_AWS(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed bool
	}{
		{"bare", nil, true},
		{"bare service", []string{"ec2"}, true},
		{"help flag", []string{"ec2", "--help"}, true},
		{"describe verb", []string{"ec2", "describe-instances"}, true},
		{"list verb", []string{"s3api", "list-buckets"}, true},
		{"get verb", []string{"ssm", "get-parameter", "--name", "/app/config"}, true},
		{"batch-get verb", []string{"dynamodb", "batch-get-item"}, true},
		{"s3 ls exception", []string{"s3", "ls"}, true},
		{"s3 cp exception", []string{"s3", "cp", "s3://bucket/key", "./key"}, true},
		{"logs tail exception", []string{"logs", "tail", "/aws/lambda/fn"}, true},
		{"sts caller identity exception", []string{"sts", "get-caller-identity"}, true},
		{"terminate", []string{"ec2", "terminate-instances", "--instance-ids", "i-1"}, false},
		{"delete bucket", []string{"s3api", "delete-bucket", "--bucket", "b"}, false},
		{"s3 rm", []string{"s3", "rm", "s3://bucket/key"}, false},
		{"put parameter", []string{"ssm", "put-parameter", "--name", "x"}, false},
		{"run instances", []string{"ec2", "run-instances"}, false},
		{"flags before tokens", []string{"--region", "us-east-1", "ec2", "describe-instances"}, true},
		{"flags before denied action", []string{"--region", "us-east-1", "ec2", "stop-instances"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Validate("aws", tt.args)
			if d.Allowed != tt.allowed {
				t.Fatalf("Validate(aws, %v).Allowed = %v, want %v (reason %q)",
					tt.args, d.Allowed, tt.allowed, d.Reason)
			}
		})
	}
}

func TestValidate_AWSReasonNamesAction(t *testing.T) {
	d := Validate("aws", []string{"ec2", "terminate-instances"})
	if d.Allowed {
		t.Fatal("terminate-instances should be denied")
	}
	if !strings.Contains(d.Reason, "terminate-instances") {
		t.Errorf("reason %q should name the action", d.Reason)
	}
	if !strings.Contains(d.Reason, "ec2") {
		t.Errorf("reason %q should name the service", d.Reason)
	}
}

func TestValidate_UnknownToolAllowed(t *testing.T) {
	d := Validate("gh", []string{"repo", "delete", "org/repo"})
	if !d.Allowed {
		t.Errorf("tools without a validator should pass: %q", d.Reason)
	}
}

// Package policy validates argument vectors for tools that can mutate
// real infrastructure.
//
// Only terraform, kubectl, and aws are policy-checked; each is held to
// an allowlist of read-only and plan-only operations. Validators are
// pure functions over the argument vector: they never execute anything,
// and a tool this package does not know is always allowed (the gateway
// only routes known tools anyway).
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Decision is the outcome of validating one tool invocation. Reason is
// set only when the invocation is denied.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// terraformSubcommands is the set of read-only/plan-only terraform
// operations. Anything that applies changes (apply, destroy, import,
// taint) is absent on purpose.
var terraformSubcommands = map[string]bool{
	"init":      true,
	"plan":      true,
	"validate":  true,
	"fmt":       true,
	"show":      true,
	"output":    true,
	"graph":     true,
	"providers": true,
	"version":   true,
	"workspace": true,
	"state":     true,
	"console":   true,
}

// terraformNested restricts second-level verbs for subcommands whose
// other verbs mutate state (state rm, workspace delete).
var terraformNested = map[string]map[string]bool{
	"state":     {"list": true, "show": true, "pull": true},
	"workspace": {"list": true, "show": true, "select": true},
}

var kubectlSubcommands = map[string]bool{
	"get":           true,
	"describe":      true,
	"logs":          true,
	"top":           true,
	"api-resources": true,
	"api-versions":  true,
	"cluster-info":  true,
	"config":        true,
	"version":       true,
	"auth":          true,
	"diff":          true,
	"explain":       true,
	"wait":          true,
	"events":        true,
}

var kubectlNested = map[string]map[string]bool{
	"config": {"view": true, "get-contexts": true, "current-context": true, "get-clusters": true},
	"auth":   {"can-i": true, "whoami": true},
}

// kubectlValueFlags are options that consume the next token, so a
// namespace or context given before the verb is not mistaken for one.
// Space-separated values only; -n=x needs no help.
var kubectlValueFlags = map[string]bool{
	"-n": true, "--namespace": true,
	"--context": true, "--cluster": true, "--kubeconfig": true,
	"-o": true, "--output": true,
	"-l": true, "--selector": true,
	"-f": true, "--filename": true,
	"-c": true, "--container": true,
}

// awsValueFlags are the aws CLI global options that take a value, so
// `aws --region us-east-1 ec2 ...` still reads ec2 as the service.
// Unknown flags are assumed boolean; if that assumption is wrong the
// scan sees the value as an extra trailing token, which is harmless.
var awsValueFlags = map[string]bool{
	"--region": true, "--profile": true, "--output": true,
	"--endpoint-url": true, "--query": true, "--color": true,
	"--ca-bundle": true, "--cli-read-timeout": true, "--cli-connect-timeout": true,
}

// awsReadVerbs are action prefixes considered read-only: an action like
// describe-instances is allowed because its leading verb is describe.
// batch-get and batch-describe span two hyphen segments.
var awsReadVerbs = []string{
	"describe", "list", "get", "lookup", "search", "check", "detect",
	"estimate", "forecast", "preview", "query", "scan", "select",
	"test", "validate", "verify", "batch-get", "batch-describe",
}

// awsExceptions are service/action pairs that look mutating by verb but
// are safe in practice (or too useful to block, like s3 cp for
// fetching artifacts into the workspace).
var awsExceptions = map[string]bool{
	"s3 ls":                   true,
	"s3 cp":                   true,
	"logs tail":               true,
	"sts get-caller-identity": true,
}

// Validate checks a tool invocation against its allowlist. Tools
// without a validator are allowed unconditionally.
func Validate(tool string, args []string) Decision {
	switch tool {
	case "terraform":
		return validateSubcommands(tool, args, terraformSubcommands, terraformNested, nil)
	case "kubectl":
		return validateSubcommands(tool, args, kubectlSubcommands, kubectlNested, kubectlValueFlags)
	case "aws":
		return validateAWS(args)
	default:
		return allow()
	}
}

// validateSubcommands handles the terraform/kubectl shape: a top-level
// subcommand allowlist with nested verb allowlists for some entries.
// Bare invocations and pure help/version flags are allowed; flags
// before the subcommand do not hide it from the check.
func validateSubcommands(tool string, args []string, allowed map[string]bool, nested map[string]map[string]bool, valueFlags map[string]bool) Decision {
	tokens := tokenize(args, valueFlags)
	if len(tokens) == 0 {
		return allow()
	}

	sub := tokens[0]
	if !allowed[sub] {
		return deny("%s %s is not allowed: only read-only operations are permitted (%s)",
			tool, sub, joinSorted(allowed))
	}

	verbs, restricted := nested[sub]
	if !restricted || len(tokens) < 2 {
		return allow()
	}
	if verb := tokens[1]; !verbs[verb] {
		return deny("%s %s %s is not allowed: permitted %s verbs are %s",
			tool, sub, verb, sub, joinSorted(verbs))
	}
	return allow()
}

// validateAWS checks the action verb of a service/action pair. Fewer
// than two non-flag tokens (bare service, help output) is allowed.
func validateAWS(args []string) Decision {
	tokens := tokenize(args, awsValueFlags)
	if len(tokens) < 2 {
		return allow()
	}

	service, action := tokens[0], tokens[1]
	if awsExceptions[service+" "+action] {
		return allow()
	}
	for _, verb := range awsReadVerbs {
		if action == verb || strings.HasPrefix(action, verb+"-") {
			return allow()
		}
	}
	return deny("aws %s %s is not allowed: only read-only operations are permitted", service, action)
}

// tokenize strips flags from an argument vector. Flags in valueFlags
// consume the following token as their value; =-joined values need no
// special handling.
func tokenize(args []string, valueFlags map[string]bool) []string {
	var tokens []string
	skip := false
	for _, a := range args {
		if skip {
			skip = false
			continue
		}
		if strings.HasPrefix(a, "-") {
			if valueFlags[a] {
				skip = true
			}
			continue
		}
		tokens = append(tokens, a)
	}
	return tokens
}

func joinSorted(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

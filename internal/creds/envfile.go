package creds

import (
	"fmt"
	"os"
	"sort"

	"github.com/drawbridge-sh/drawbridge/internal/logging"
)

// WriteTempEnvFile writes vars as KEY=value lines to a mode-0600 temp
// file and returns its path with a cleanup func. Callers delete the
// file the moment the consumer has read it; cleanup tolerates the file
// already being gone. An empty dir uses the system temp directory.
func WriteTempEnvFile(dir string, vars map[string]string) (string, func(), error) {
	f, err := os.CreateTemp(dir, "drawbridge-cred-*.env")
	if err != nil {
		return "", nil, fmt.Errorf("creating credential file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			logging.Warn("could not remove credential file", "path", f.Name(), "error", err)
		}
	}

	if err := f.Chmod(0600); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("restricting credential file: %w", err)
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, vars[k]); err != nil {
			f.Close()
			cleanup()
			return "", nil, fmt.Errorf("writing credential file: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing credential file: %w", err)
	}
	return f.Name(), cleanup, nil
}

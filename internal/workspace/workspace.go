// Package workspace identifies host workspaces and translates sandbox
// paths to host paths.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// HashLength is the number of hex characters in a workspace hash.
const HashLength = 12

// Hash derives the workspace identifier for a host path: the first 12
// hex characters of the SHA-256 of the absolute path. The same path
// always yields the same hash, so a sandbox can be re-attached to its
// workspace across gateway restarts.
func Hash(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// validHash matches hashes as they appear on the wire. Callers may send
// a prefix of the full hash, so anything from 4 to 64 hex chars passes.
var validHash = regexp.MustCompile(`^[a-f0-9]{4,64}$`)

// ValidateHash rejects workspace hashes that could not have come from
// Hash. This runs before the hash is spliced into any filesystem path.
func ValidateHash(hash string) error {
	if !validHash.MatchString(hash) {
		return fmt.Errorf("invalid workspace hash %q", hash)
	}
	return nil
}

// Mapping pairs a sandbox mount point with the host directory behind it.
type Mapping struct {
	Sandbox string `json:"sandbox"`
	Host    string `json:"host"`
}

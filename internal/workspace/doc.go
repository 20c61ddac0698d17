// Package workspace identifies host workspaces and maps sandbox paths
// onto the host filesystem.
//
// A workspace is a host directory an agent sandbox works against. It is
// identified by a short content hash of its absolute path:
//
//	hash := workspace.Hash("/home/alice/projects/api")  // "3f2c81d09ab4"
//
// # Mappings
//
// Each registered workspace carries a mappings file listing which
// sandbox mount points correspond to which host directories:
//
//	[
//	  {"sandbox": "/workspace", "host": "/home/alice/projects/api"},
//	  {"sandbox": "/deps", "host": "/home/alice/go/pkg/mod"}
//	]
//
// Handlers load a fresh Registry per request, so mapping edits take
// effect without a gateway restart. A request that names a hash with no
// mappings file fails closed with ErrNoMapping; requests without a hash
// fall back to the ambient mappings file at the data root, whose absence
// simply means nothing is translated.
//
// # Translation
//
// Resolve translates one sandbox path. TranslateArg rewrites a command
// argument, handling both bare paths and KEY=VALUE flags. Spliced
// subpaths are contained under the mapped host directory, so a sandbox
// cannot smuggle ../ segments past its mount point.
package workspace

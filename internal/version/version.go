// Package version carries build provenance, stamped via -ldflags.
package version

var (
	// Version is the release tag of the monacomirror binary.
	Version = "dev"
	// Commit is the git revision the binary was built from.
	Commit = "unknown"
	// BuildDate is when the binary was produced.
	BuildDate = "unknown"
)

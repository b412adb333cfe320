// Package vcs defines the provider abstraction over external version
// control systems and the registry that selects a provider for a piece of
// provenance metadata. Concrete backends live in the subpackages (hg, git)
// and talk to their tools exclusively through the command runner.
package vcs

import "context"

// Provenance describes where and how to fetch a package's source tree.
// Revision and Path are optional; a blank Revision means "resolve from the
// target version or fall back to the default branch tip", a blank Path means
// "materialize the whole tree".
type Provenance struct {
	Kind     string
	URL      string
	Revision string
	Path     string
}

// WorkingTree is a read-only handle over a local checkout. Every query
// re-invokes the backend tool; nothing is cached. Queries against a
// directory that is not a recognized repository return false/blank results
// rather than errors, except when the backend tool itself cannot run.
type WorkingTree interface {
	// Dir returns the directory the tree is bound to.
	Dir() string
	// IsValid reports whether Dir is inside a repository the backend
	// recognizes (the backend-reported root is a prefix of Dir).
	IsValid(ctx context.Context) bool
	// RemoteURL returns the configured default remote, trimmed.
	RemoteURL(ctx context.Context) (string, error)
	// Revision returns the currently checked-out revision in the backend's
	// native form.
	Revision(ctx context.Context) (string, error)
	// RootPath returns the repository root with forward slashes only.
	RootPath(ctx context.Context) (string, error)
	// RemoteTags returns all tag names in native listing order, excluding
	// any "current tip" pseudo-tag the backend emits.
	RemoteTags(ctx context.Context) ([]string, error)
}

type Provider interface {
	// Kind returns the provider's canonical backend identifier.
	Kind() string
	// AppliesToKind reports whether the declared kind names this backend,
	// matching any of its aliases case-insensitively.
	AppliesToKind(kind string) bool
	// AppliesToURL probes the remote with a lightweight backend command;
	// true means the backend can talk to that remote.
	AppliesToURL(ctx context.Context, url string) bool
	// ToolVersion probes the locally installed tool and returns its loosely
	// parsed version, or "" when the tool is missing or unparsable.
	ToolVersion(ctx context.Context) (string, error)
	// Download materializes the provenance at targetDir and returns a tree
	// bound to it.
	Download(ctx context.Context, provenance Provenance, targetVersion string, targetDir string) (WorkingTree, error)
	// TreeFor binds a WorkingTree to an existing directory without touching it.
	TreeFor(dir string) WorkingTree
}

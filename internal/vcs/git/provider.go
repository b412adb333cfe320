// Package git implements the Git backend with sparse-checkout narrowing
// and the same pinned-then-unrestricted checkout strategy as the other
// backends.
package git

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	apperrors "github.com/pctF/ort/internal/domain/errors"
	"github.com/pctF/ort/internal/vcs"
	"github.com/pctF/ort/internal/vcs/command"
)

const (
	defaultTool = "git"

	// The sparse-checkout command shipped with Git 2.25; older
	// installations fall back to full checkouts.
	minSparseVersion = "2.25"
)

var versionPattern = regexp.MustCompile(`git version ([0-9][0-9.]*)`)

var aliases = []string{"git"}

type Options struct {
	// Tool overrides the git binary name or path.
	Tool string
	// Timeout bounds each individual git invocation.
	Timeout time.Duration
}

type Provider struct {
	tool   string
	runner *command.Runner
	logger *log.Logger
}

func NewProvider(logger *log.Logger, options Options) *Provider {
	if logger == nil {
		logger = log.Default()
	}

	tool := strings.TrimSpace(options.Tool)
	if tool == "" {
		tool = defaultTool
	}

	runner := command.NewRunner(logger)
	if options.Timeout > 0 {
		runner.Timeout = options.Timeout
	}

	return &Provider{tool: tool, runner: runner, logger: logger}
}

func (provider *Provider) Kind() string {
	return "Git"
}

func (provider *Provider) AppliesToKind(kind string) bool {
	for _, alias := range aliases {
		if strings.EqualFold(alias, kind) {
			return true
		}
	}

	return false
}

func (provider *Provider) AppliesToURL(ctx context.Context, url string) bool {
	result, err := provider.runner.Run(ctx, "", provider.tool, "ls-remote", url)
	return err == nil && result.ExitCode == 0
}

func (provider *Provider) ToolVersion(ctx context.Context) (string, error) {
	result, err := provider.runner.RunRequireSuccess(ctx, "", provider.tool, "--version")
	if err != nil {
		return "", err
	}

	return vcs.ExtractToolVersion(result.Stdout, versionPattern), nil
}

func (provider *Provider) TreeFor(dir string) vcs.WorkingTree {
	return &WorkingTree{dir: dir, tool: provider.tool, runner: provider.runner}
}

// Download materializes the provenance at targetDir: init the repository,
// bind the origin remote, narrow when possible, fetch the remote with its
// tags, resolve the target version, and check out. A failed narrow or
// pinned checkout degrades to the unrestricted full checkout.
func (provider *Provider) Download(ctx context.Context, provenance vcs.Provenance, targetVersion string, targetDir string) (vcs.WorkingTree, error) {
	if strings.TrimSpace(provenance.URL) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "provenance URL cannot be empty", nil)
	}

	if strings.TrimSpace(targetDir) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "target directory cannot be empty", nil)
	}

	narrow := false
	if strings.TrimSpace(provenance.Path) != "" {
		version, _ := provider.ToolVersion(ctx)
		if vcs.IsAtLeast(version, minSparseVersion) {
			narrow = true
		} else {
			provider.logger.Info("sparse checkout requires a newer Git, materializing the full tree",
				"installed", version, "required", minSparseVersion, "path", provenance.Path)
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindInternal, fmt.Sprintf("failed to create target directory %q", targetDir), err)
	}

	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "init"); err != nil {
		return nil, apperrors.New(apperrors.KindProcess, "git init failed", err)
	}

	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "remote", "add", "origin", provenance.URL); err != nil {
		return nil, apperrors.New(apperrors.KindProcess, "git remote add failed", err)
	}

	if narrow {
		if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "sparse-checkout", "set", provenance.Path); err != nil {
			if command.AsError(err) == nil {
				return nil, err
			}
			provider.logger.Warn("sparse narrowing failed, continuing with a full checkout",
				"path", provenance.Path, "cause", err)
			narrow = false
		}
	}

	// Fetch with tags so that revision resolution below can see the full
	// remote tag listing.
	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "fetch", "--tags", "origin"); err != nil {
		return nil, apperrors.New(apperrors.KindProcess, "git fetch failed", err)
	}

	revision := strings.TrimSpace(provenance.Revision)
	if revision == "" && strings.TrimSpace(targetVersion) != "" {
		tags, err := listTags(ctx, provider.runner, provider.tool, targetDir)
		if err != nil {
			return nil, apperrors.New(apperrors.KindProcess, "git tag listing failed", err)
		}

		resolved, ok := vcs.ResolveRevision(tags, targetVersion)
		if ok {
			revision = resolved
			provider.logger.Info("resolved target version to tag revision",
				"version", targetVersion, "revision", revision)
		} else {
			provider.logger.Info("target version not found among remote tags, staying on the fetched head",
				"version", targetVersion)
		}
	}

	if err := provider.checkout(ctx, targetDir, revision, narrow); err != nil {
		return nil, err
	}

	return provider.TreeFor(targetDir), nil
}

// checkout is the explicit two-attempt state machine: attempt 1 honors the
// revision pin and any narrowing; a process-class failure triggers exactly
// one unrestricted retry, anything else is terminal.
func (provider *Provider) checkout(ctx context.Context, targetDir string, revision string, narrow bool) error {
	ref := revision
	if ref == "" {
		ref = "FETCH_HEAD"
	}

	_, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "checkout", ref)
	if err == nil {
		return nil
	}

	commandError := command.AsError(err)
	if commandError == nil || (revision == "" && !narrow) {
		return apperrors.New(apperrors.KindProcess, "git checkout failed", err)
	}

	provider.logger.Warn("update to pinned revision failed, retrying with an unrestricted full checkout",
		"revision", revision, "stderr", strings.TrimSpace(commandError.Stderr))

	if narrow {
		// Best effort: a failed disable still leaves the plain checkout
		// below to decide the outcome.
		_, _ = provider.runner.Run(ctx, targetDir, provider.tool, "sparse-checkout", "disable")
	}

	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "checkout", "FETCH_HEAD"); err != nil {
		return apperrors.New(apperrors.KindProcess, "fallback full checkout failed", err)
	}

	return nil
}

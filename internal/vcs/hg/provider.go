// Package hg implements the Mercurial backend: applicability probing,
// tool-version negotiation, and the two-phase download with sparse
// narrowing and the fallback-to-everything retry.
package hg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	apperrors "github.com/pctF/ort/internal/domain/errors"
	"github.com/pctF/ort/internal/vcs"
	"github.com/pctF/ort/internal/vcs/command"
)

const (
	defaultTool = "hg"

	// Sparse checkouts were promoted from an experimental extension with
	// Mercurial 4.3; older installations fall back to full checkouts.
	minSparseVersion = "4.3"

	extensionLargeFiles = "largefiles"
	extensionSparse     = "sparse"
)

var versionPattern = regexp.MustCompile(`Mercurial Distributed SCM \(version ([0-9][0-9.]*)`)

var aliases = []string{"mercurial", "hg"}

type Options struct {
	// Tool overrides the hg binary name or path.
	Tool string
	// Timeout bounds each individual hg invocation.
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
	return "Mercurial"
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
	result, err := provider.runner.Run(ctx, "", provider.tool, "identify", url)
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

// Download materializes the provenance at targetDir: negotiate extensions,
// init the repository, narrow when possible, pull the full remote history,
// resolve the target version against remote tags, and update. A failed
// narrow or pinned update degrades to the unrestricted full checkout.
func (provider *Provider) Download(ctx context.Context, provenance vcs.Provenance, targetVersion string, targetDir string) (vcs.WorkingTree, error) {
	if strings.TrimSpace(provenance.URL) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "provenance URL cannot be empty", nil)
	}

	if strings.TrimSpace(targetDir) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "target directory cannot be empty", nil)
	}

	// Feature negotiation has to precede init because the negotiated
	// extension set is written into the repository configuration.
	extensions := []string{extensionLargeFiles}
	narrow := false
	if strings.TrimSpace(provenance.Path) != "" {
		version, _ := provider.ToolVersion(ctx)
		if vcs.IsAtLeast(version, minSparseVersion) {
			extensions = append(extensions, extensionSparse)
			narrow = true
		} else {
			provider.logger.Info("sparse checkout requires a newer Mercurial, materializing the full tree",
				"installed", version, "required", minSparseVersion, "path", provenance.Path)
		}
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, apperrors.New(apperrors.KindInternal, fmt.Sprintf("failed to create target directory %q", targetDir), err)
	}

	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "init"); err != nil {
		return nil, apperrors.New(apperrors.KindProcess, "hg init failed", err)
	}

	if err := writeRepoConfig(targetDir, provenance.URL, extensions); err != nil {
		return nil, apperrors.New(apperrors.KindInternal, "failed to write repository configuration", err)
	}

	if narrow {
		include := strings.TrimSuffix(provenance.Path, "/") + "/**"
		if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "debugsparse", "--include", include); err != nil {
			if command.AsError(err) == nil {
				return nil, err
			}
			provider.logger.Warn("sparse narrowing failed, continuing with a full checkout",
				"path", provenance.Path, "cause", err)
			narrow = false
		}
	}

	// Pull everything: revision resolution below may need the full tag
	// history, so a single-revision pull is never enough here.
	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "pull", provenance.URL); err != nil {
		return nil, apperrors.New(apperrors.KindProcess, "hg pull failed", err)
	}

	revision := strings.TrimSpace(provenance.Revision)
	if revision == "" && strings.TrimSpace(targetVersion) != "" {
		tags, err := listTags(ctx, provider.runner, provider.tool, targetDir)
		if err != nil {
			return nil, apperrors.New(apperrors.KindProcess, "hg tags failed", err)
		}

		resolved, ok := vcs.ResolveRevision(tags, targetVersion)
		if ok {
			revision = resolved
			provider.logger.Info("resolved target version to tag revision",
				"version", targetVersion, "revision", revision)
		} else {
			provider.logger.Info("target version not found among remote tags, staying on the default tip",
				"version", targetVersion)
		}
	}

	if err := provider.update(ctx, targetDir, revision, narrow); err != nil {
		return nil, err
	}

	return provider.TreeFor(targetDir), nil
}

// update is the explicit two-attempt state machine: attempt 1 honors the
// revision pin and any narrowing; a process-class failure triggers exactly
// one unrestricted retry, anything else is terminal.
func (provider *Provider) update(ctx context.Context, targetDir string, revision string, narrow bool) error {
	args := []string{"update"}
	if revision != "" {
		args = append(args, "--rev", revision)
	}

	_, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, args...)
	if err == nil {
		return nil
	}

	commandError := command.AsError(err)
	if commandError == nil || (revision == "" && !narrow) {
		return apperrors.New(apperrors.KindProcess, "hg update failed", err)
	}

	provider.logger.Warn("update to pinned revision failed, retrying with an unrestricted full checkout",
		"revision", revision, "stderr", strings.TrimSpace(commandError.Stderr))

	if narrow {
		// Best effort: a failed reset still leaves the plain update below
		// to decide the outcome.
		_, _ = provider.runner.Run(ctx, targetDir, provider.tool, "debugsparse", "--reset")
	}

	if _, err := provider.runner.RunRequireSuccess(ctx, targetDir, provider.tool, "update"); err != nil {
		return apperrors.New(apperrors.KindProcess, "fallback full checkout failed", err)
	}

	return nil
}

// writeRepoConfig declares the default remote and the negotiated extension
// set in the repository's hgrc, matching what hg expects at update time.
func writeRepoConfig(targetDir string, url string, extensions []string) error {
	var builder strings.Builder
	builder.WriteString("[paths]\n")
	builder.WriteString("default = " + url + "\n")
	builder.WriteString("\n[extensions]\n")
	for _, extension := range extensions {
		builder.WriteString(extension + " =\n")
	}

	return os.WriteFile(filepath.Join(targetDir, ".hg", "hgrc"), []byte(builder.String()), 0o644)
}

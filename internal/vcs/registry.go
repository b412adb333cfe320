package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	apperrors "github.com/pctF/ort/internal/domain/errors"
)

// Registry holds the ordered provider list and dispatches provenance to the
// first provider that claims it, by declared kind first and by URL probing
// as the fallback discovery path. Providers are explicit instances handed in
// at construction; there is no package-level state.
type Registry struct {
	providers []Provider
	logger    *log.Logger
}

func NewRegistry(logger *log.Logger, providers ...Provider) *Registry {
	if logger == nil {
		logger = log.Default()
	}

	return &Registry{providers: providers, logger: logger}
}

func (registry *Registry) Providers() []Provider {
	return registry.providers
}

// ProviderForKind returns the first provider whose aliases match the
// declared kind, or nil.
func (registry *Registry) ProviderForKind(kind string) Provider {
	if strings.TrimSpace(kind) == "" {
		return nil
	}

	for _, provider := range registry.providers {
		if provider.AppliesToKind(kind) {
			return provider
		}
	}

	return nil
}

// ProviderForURL probes the URL with each provider in registration order and
// returns the first one that can talk to the remote, or nil.
func (registry *Registry) ProviderForURL(ctx context.Context, url string) Provider {
	if strings.TrimSpace(url) == "" {
		return nil
	}

	for _, provider := range registry.providers {
		if provider.AppliesToURL(ctx, url) {
			return provider
		}
	}

	return nil
}

// Download selects a provider for the provenance and delegates the checkout.
// An unclaimed kind/URL pair is surfaced as an unsupported-provenance error.
func (registry *Registry) Download(ctx context.Context, provenance Provenance, targetVersion string, targetDir string) (WorkingTree, error) {
	if strings.TrimSpace(provenance.URL) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "provenance URL cannot be empty", nil)
	}

	if strings.TrimSpace(targetDir) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "target directory cannot be empty", nil)
	}

	provider := registry.ProviderForKind(provenance.Kind)
	if provider == nil {
		registry.logger.Info("no provider matches declared kind, probing remotes",
			"kind", provenance.Kind, "url", provenance.URL)
		provider = registry.ProviderForURL(ctx, provenance.URL)
	}

	if provider == nil {
		return nil, apperrors.New(
			apperrors.KindUnsupported,
			fmt.Sprintf("no provider supports kind %q or URL %q", provenance.Kind, provenance.URL),
			nil,
		)
	}

	registry.logger.Info("downloading source tree",
		"provider", provider.Kind(), "url", provenance.URL, "target", targetDir)

	return provider.Download(ctx, provenance, targetVersion, targetDir)
}

// WorkingTreeFor binds to an already-checked-out directory by asking each
// provider for a valid tree.
func (registry *Registry) WorkingTreeFor(ctx context.Context, dir string) (WorkingTree, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, apperrors.New(apperrors.KindValidation, "directory cannot be empty", nil)
	}

	for _, provider := range registry.providers {
		tree := provider.TreeFor(dir)
		if tree.IsValid(ctx) {
			return tree, nil
		}
	}

	return nil, apperrors.New(
		apperrors.KindNotFound,
		fmt.Sprintf("no registered backend recognizes a repository at %q", dir),
		nil,
	)
}

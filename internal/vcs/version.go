package vcs

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var numericComponent = regexp.MustCompile(`^\d+$`)

// ExtractToolVersion pulls the version substring out of a tool's
// version-report output using the backend-specific pattern. The pattern's
// first capture group is the version; "" is returned on no match so callers
// treat the feature gate as unknown rather than guessing.
func ExtractToolVersion(output string, pattern *regexp.Regexp) string {
	match := pattern.FindStringSubmatch(output)
	if len(match) < 2 {
		return ""
	}

	return strings.TrimSpace(match[1])
}

// NormalizeVersion maps a loosely formed tool version to canonical
// "vMAJOR.MINOR.PATCH". Missing components default to zero and anything
// from the first non-numeric component onward is dropped, so "4.3" becomes
// "v4.3.0" and "2.39.1.windows.1" becomes "v2.39.1". Returns "" when no
// leading numeric component exists.
func NormalizeVersion(raw string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if trimmed == "" {
		return ""
	}

	components := strings.Split(trimmed, ".")
	kept := make([]string, 0, 3)
	for _, component := range components {
		if len(kept) == 3 || !numericComponent.MatchString(component) {
			break
		}
		kept = append(kept, component)
	}

	if len(kept) == 0 {
		return ""
	}

	for len(kept) < 3 {
		kept = append(kept, "0")
	}

	normalized := "v" + strings.Join(kept, ".")
	if !semver.IsValid(normalized) {
		return ""
	}

	return normalized
}

// IsAtLeast reports whether version satisfies a minimum-version feature
// gate. Either side failing to normalize means "feature unknown" and gates
// the feature off.
func IsAtLeast(version string, minimum string) bool {
	normalizedVersion := NormalizeVersion(version)
	normalizedMinimum := NormalizeVersion(minimum)
	if normalizedVersion == "" || normalizedMinimum == "" {
		return false
	}

	return semver.Compare(normalizedVersion, normalizedMinimum) >= 0
}

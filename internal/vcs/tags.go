package vcs

import "strings"

// TagRef pairs a tag name with the revision it points at, in the backend's
// native listing order.
type TagRef struct {
	Name     string
	Revision string
}

// ResolveRevision maps a human version string onto a tag's revision. The
// literal form is tried across the entire listing before the "."->"_"
// substituted form is consulted at all; within each pass the first match in
// listing order wins and the listing is never re-sorted. A miss is a
// degraded-success outcome, reported via ok=false.
func ResolveRevision(tags []TagRef, targetVersion string) (string, bool) {
	version := strings.TrimSpace(targetVersion)
	if version == "" {
		return "", false
	}

	for _, tag := range tags {
		if tag.Name == version {
			return tag.Revision, true
		}
	}

	underscored := strings.ReplaceAll(version, ".", "_")
	if underscored == version {
		return "", false
	}

	for _, tag := range tags {
		if tag.Name == underscored {
			return tag.Revision, true
		}
	}

	return "", false
}

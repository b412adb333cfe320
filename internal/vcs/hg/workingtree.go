package hg

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pctF/ort/internal/vcs"
	"github.com/pctF/ort/internal/vcs/command"
)

// tip is Mercurial's floating pseudo-tag for the most recent revision; it
// names no fixed release and is excluded from tag listings.
const tipTag = "tip"

// tagLinePattern matches "hg tags" output lines: the tag name, padding, and
// the local-number:node pair.
var tagLinePattern = regexp.MustCompile(`^(.*\S)\s+(\d+):([0-9a-f]+)$`)

// WorkingTree answers read-only queries about a Mercurial checkout by
// re-invoking hg for every call.
type WorkingTree struct {
	dir    string
	tool   string
	runner *command.Runner
}

func (tree *WorkingTree) Dir() string {
	return tree.dir
}

func (tree *WorkingTree) IsValid(ctx context.Context) bool {
	info, err := os.Stat(tree.dir)
	if err != nil || !info.IsDir() {
		return false
	}

	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "root")
	if err != nil || result.ExitCode != 0 {
		return false
	}

	root := filepath.Clean(strings.TrimSpace(result.Stdout))
	dir, err := filepath.Abs(tree.dir)
	if err != nil {
		return false
	}
	dir = filepath.Clean(dir)

	return dir == root || strings.HasPrefix(dir, root+string(filepath.Separator))
}

func (tree *WorkingTree) RemoteURL(ctx context.Context) (string, error) {
	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "paths", "default")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}

	return strings.TrimSpace(result.Stdout), nil
}

func (tree *WorkingTree) Revision(ctx context.Context) (string, error) {
	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "identify", "--id")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}

	return strings.TrimSpace(result.Stdout), nil
}

func (tree *WorkingTree) RootPath(ctx context.Context) (string, error) {
	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "root")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}

	return strings.ReplaceAll(strings.TrimSpace(result.Stdout), `\`, "/"), nil
}

func (tree *WorkingTree) RemoteTags(ctx context.Context) ([]string, error) {
	tags, err := listTags(ctx, tree.runner, tree.tool, tree.dir)
	if err != nil {
		if command.AsError(err) != nil && command.AsError(err).ExitCode > 0 {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}

	return names, nil
}

// listTags parses "hg tags" output into name/revision pairs, preserving the
// tool's native listing order and dropping the tip pseudo-tag.
func listTags(ctx context.Context, runner *command.Runner, tool string, dir string) ([]vcs.TagRef, error) {
	result, err := runner.RunRequireSuccess(ctx, dir, tool, "tags")
	if err != nil {
		return nil, err
	}

	var tags []vcs.TagRef
	for _, line := range strings.Split(result.Stdout, "\n") {
		match := tagLinePattern.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if match == nil {
			continue
		}

		name := strings.TrimSpace(match[1])
		if name == tipTag {
			continue
		}

		tags = append(tags, vcs.TagRef{Name: name, Revision: match[3]})
	}

	return tags, nil
}

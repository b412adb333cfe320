package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pctF/ort/internal/vcs"
	"github.com/pctF/ort/internal/vcs/command"
)

// WorkingTree answers read-only queries about a Git checkout by re-invoking
// git for every call.
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

	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "rev-parse", "--show-toplevel")
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
	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "remote", "get-url", "origin")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}

	return strings.TrimSpace(result.Stdout), nil
}

func (tree *WorkingTree) Revision(ctx context.Context) (string, error) {
	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", nil
	}

	return strings.TrimSpace(result.Stdout), nil
}

func (tree *WorkingTree) RootPath(ctx context.Context) (string, error) {
	result, err := tree.runner.Run(ctx, tree.dir, tree.tool, "rev-parse", "--show-toplevel")
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
		return nil, err
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}

	return names, nil
}

// listTags parses "git show-ref --tags" output into name/revision pairs,
// preserving the tool's native listing order. show-ref signals an empty tag
// listing with a positive exit code, which is not an error here.
func listTags(ctx context.Context, runner *command.Runner, tool string, dir string) ([]vcs.TagRef, error) {
	result, err := runner.Run(ctx, dir, tool, "show-ref", "--tags")
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, nil
	}

	var tags []vcs.TagRef
	for _, line := range strings.Split(result.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}

		name, found := strings.CutPrefix(fields[1], "refs/tags/")
		if !found {
			continue
		}

		tags = append(tags, vcs.TagRef{Name: name, Revision: fields[0]})
	}

	return tags, nil
}

package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pctF/ort/internal/vcs"
)

type fakeTree struct {
	dir string
}

func (tree *fakeTree) Dir() string                      { return tree.dir }
func (tree *fakeTree) IsValid(ctx context.Context) bool { return true }
func (tree *fakeTree) RemoteURL(ctx context.Context) (string, error) {
	return "https://example/repo", nil
}
func (tree *fakeTree) Revision(ctx context.Context) (string, error) { return "abc123", nil }
func (tree *fakeTree) RootPath(ctx context.Context) (string, error) { return tree.dir, nil }
func (tree *fakeTree) RemoteTags(ctx context.Context) ([]string, error) {
	return []string{"1.0.0"}, nil
}

type fakeProvider struct {
	downloads int
}

func (provider *fakeProvider) Kind() string { return "Git" }

func (provider *fakeProvider) AppliesToKind(kind string) bool {
	return strings.EqualFold(kind, "git")
}

func (provider *fakeProvider) AppliesToURL(ctx context.Context, url string) bool { return true }

func (provider *fakeProvider) ToolVersion(ctx context.Context) (string, error) { return "2.43.0", nil }

func (provider *fakeProvider) Download(ctx context.Context, provenance vcs.Provenance, targetVersion string, targetDir string) (vcs.WorkingTree, error) {
	provider.downloads++
	return &fakeTree{dir: targetDir}, nil
}

func (provider *fakeProvider) TreeFor(dir string) vcs.WorkingTree {
	return &fakeTree{dir: dir}
}

func newTestServer(provider vcs.Provider) *Server {
	logger := log.New(io.Discard)
	return New(vcs.NewRegistry(logger, provider), logger)
}

func callRequest(name string, arguments map[string]any) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = arguments
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	if len(result.Content) != 1 {
		t.Fatalf("expected a single content item, got %d", len(result.Content))
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}

	return text.Text
}

func TestHandleDownload(t *testing.T) {
	provider := &fakeProvider{}
	server := newTestServer(provider)
	targetDir := t.TempDir()

	result, err := server.handleDownload(context.Background(), callRequest("vcs_download", map[string]any{
		"url":        "https://example/repo",
		"output_dir": targetDir,
		"vcs_type":   "git",
		"version":    "1.0.0",
	}))
	if err != nil {
		t.Fatalf("expected no transport error, got: %v", err)
	}

	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("expected JSON payload, got: %s", resultText(t, result))
	}

	if payload["dir"] != targetDir || payload["revision"] != "abc123" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	if provider.downloads != 1 {
		t.Fatalf("expected one download, got %d", provider.downloads)
	}
}

func TestHandleDownloadMissingURL(t *testing.T) {
	server := newTestServer(&fakeProvider{})

	result, err := server.handleDownload(context.Background(), callRequest("vcs_download", map[string]any{
		"output_dir": t.TempDir(),
	}))
	if err != nil {
		t.Fatalf("expected no transport error, got: %v", err)
	}

	if !result.IsError {
		t.Fatal("expected tool error for missing url")
	}
}

func TestHandleDownloadUnsupportedKind(t *testing.T) {
	server := newTestServer(&fakeProvider{})

	result, err := server.handleDownload(context.Background(), callRequest("vcs_download", map[string]any{
		"url":        "https://example/repo",
		"output_dir": t.TempDir(),
		"vcs_type":   "cvs",
	}))
	if err != nil {
		t.Fatalf("expected no transport error, got: %v", err)
	}

	// The fake provider claims every URL, so the registry falls back from
	// the unknown kind to URL probing and still succeeds.
	if result.IsError {
		t.Fatalf("expected URL-probe fallback to succeed, got: %s", resultText(t, result))
	}
}

func TestHandleTreeInfo(t *testing.T) {
	server := newTestServer(&fakeProvider{})
	dir := t.TempDir()

	result, err := server.handleTreeInfo(context.Background(), callRequest("vcs_tree_info", map[string]any{
		"dir": dir,
	}))
	if err != nil {
		t.Fatalf("expected no transport error, got: %v", err)
	}

	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("expected JSON payload, got: %s", resultText(t, result))
	}

	if payload["remote"] != "https://example/repo" || payload["revision"] != "abc123" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

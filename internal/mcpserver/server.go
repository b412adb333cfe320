// Package mcpserver exposes the downloader to MCP clients over stdio so
// agent tooling can fetch and inspect source checkouts.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pctF/ort/internal/vcs"
)

const serverVersion = "1.0.0"

type Server struct {
	registry *vcs.Registry
	logger   *log.Logger
	mcp      *server.MCPServer
}

func New(registry *vcs.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{registry: registry, logger: logger}

	mcpServer := server.NewMCPServer("ortdl", serverVersion, server.WithToolCapabilities(false))

	mcpServer.AddTool(mcp.NewTool("vcs_download",
		mcp.WithDescription("Download a source repository at a pinned revision into a target directory"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Clone URL of the repository")),
		mcp.WithString("output_dir", mcp.Required(), mcp.Description("Directory to materialize the checkout in")),
		mcp.WithString("vcs_type", mcp.Description("Version control kind, e.g. Git or Mercurial; probed from the URL when omitted")),
		mcp.WithString("revision", mcp.Description("Exact revision to check out")),
		mcp.WithString("version", mcp.Description("Release version to resolve against remote tags")),
		mcp.WithString("path", mcp.Description("Repository subpath for a narrowed checkout")),
	), s.handleDownload)

	mcpServer.AddTool(mcp.NewTool("vcs_tree_info",
		mcp.WithDescription("Inspect an existing checkout: remote URL, revision, and repository root"),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Directory of the checkout")),
	), s.handleTreeInfo)

	s.mcp = mcpServer

	return s
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleDownload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	outputDir, err := request.RequireString("output_dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	provenance := vcs.Provenance{
		Kind:     request.GetString("vcs_type", ""),
		URL:      url,
		Revision: request.GetString("revision", ""),
		Path:     request.GetString("path", ""),
	}

	s.logger.Info("mcp download requested", "url", url, "dir", outputDir)

	tree, err := s.registry.Download(ctx, provenance, request.GetString("version", ""), outputDir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	revision, err := tree.Revision(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("checkout succeeded but revision query failed: %v", err)), nil
	}

	return jsonResult(map[string]string{
		"url":      url,
		"dir":      tree.Dir(),
		"revision": revision,
	})
}

func (s *Server) handleTreeInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tree, err := s.registry.WorkingTreeFor(ctx, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	remoteURL, err := tree.RemoteURL(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	revision, err := tree.Revision(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rootPath, err := tree.RootPath(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]string{
		"dir":      tree.Dir(),
		"remote":   remoteURL,
		"revision": revision,
		"root":     rootPath,
	})
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}

	return mcp.NewToolResultText(string(encoded)), nil
}

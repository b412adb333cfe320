package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/pctF/ort/internal/config"
	apperrors "github.com/pctF/ort/internal/domain/errors"
	"github.com/pctF/ort/internal/mcpserver"
	"github.com/pctF/ort/internal/vcs"
	"github.com/pctF/ort/internal/vcs/git"
	"github.com/pctF/ort/internal/vcs/hg"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	options := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "ortdl",
		Short:         "Source code downloader for dependency provenance",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().BoolVar(&options.JSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&options.Verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(newDownloadCommand(options))
	rootCmd.AddCommand(newInfoCommand(options))
	rootCmd.AddCommand(newProbeCommand(options))
	rootCmd.AddCommand(newAuthCommand(options))
	rootCmd.AddCommand(newServeCommand(options))

	return rootCmd
}

type rootOptions struct {
	JSON    bool
	Verbose bool
}

func (options *rootOptions) newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if options.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	return logger
}

func newRegistry(cfg config.AppConfig, logger *log.Logger) *vcs.Registry {
	return vcs.NewRegistry(logger,
		git.NewProvider(logger, git.Options{Tool: cfg.GitTool, Timeout: cfg.CommandTimeout}),
		hg.NewProvider(logger, hg.Options{Tool: cfg.HgTool, Timeout: cfg.CommandTimeout}),
	)
}

func newDownloadCommand(options *rootOptions) *cobra.Command {
	var vcsKind string
	var revision string
	var version string
	var path string
	var outputDir string

	downloadCmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a source repository at a pinned revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			logger := options.newLogger()
			registry := newRegistry(cfg, logger)

			provenance := vcs.Provenance{
				Kind:     vcsKind,
				URL:      config.AuthenticatedURL(args[0]),
				Revision: revision,
				Path:     path,
			}

			tree, err := registry.Download(cmd.Context(), provenance, version, outputDir)
			if err != nil {
				return err
			}

			checkedOut, err := tree.Revision(cmd.Context())
			if err != nil {
				return err
			}

			if options.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"url":      args[0],
					"dir":      tree.Dir(),
					"revision": checkedOut,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Downloaded:"), valueStyle.Render(args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Directory:"), tree.Dir())
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Revision:"), checkedOut)
			return nil
		},
	}

	downloadCmd.Flags().StringVar(&vcsKind, "vcs-type", "", "Version control kind (e.g. Git, Mercurial); probed from the URL when omitted")
	downloadCmd.Flags().StringVar(&revision, "revision", "", "Exact revision to check out")
	downloadCmd.Flags().StringVar(&version, "version", "", "Release version to resolve against remote tags")
	downloadCmd.Flags().StringVar(&path, "path", "", "Repository subpath for a narrowed checkout")
	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Target directory")
	_ = downloadCmd.MarkFlagRequired("output")

	return downloadCmd
}

func newInfoCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dir>",
		Short: "Show provenance details of an existing checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			logger := options.newLogger()
			registry := newRegistry(cfg, logger)

			tree, err := registry.WorkingTreeFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			remoteURL, err := tree.RemoteURL(cmd.Context())
			if err != nil {
				return err
			}
			revision, err := tree.Revision(cmd.Context())
			if err != nil {
				return err
			}
			rootPath, err := tree.RootPath(cmd.Context())
			if err != nil {
				return err
			}

			if options.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"dir":      tree.Dir(),
					"remote":   remoteURL,
					"revision": revision,
					"root":     rootPath,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Remote:"), remoteURL)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Revision:"), revision)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", labelStyle.Render("Root:"), rootPath)
			return nil
		},
	}
}

func newProbeCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [url]",
		Short: "Show available backends, their tool versions, and which one claims a URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			logger := options.newLogger()
			registry := newRegistry(cfg, logger)

			type backendStatus struct {
				Kind        string `json:"kind"`
				ToolVersion string `json:"tool_version"`
				ClaimsURL   bool   `json:"claims_url,omitempty"`
			}

			var statuses []backendStatus
			for _, provider := range registry.Providers() {
				status := backendStatus{Kind: provider.Kind()}
				if version, err := provider.ToolVersion(cmd.Context()); err == nil {
					status.ToolVersion = version
				}
				if len(args) == 1 {
					status.ClaimsURL = provider.AppliesToURL(cmd.Context(), config.AuthenticatedURL(args[0]))
				}
				statuses = append(statuses, status)
			}

			if options.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"backends": statuses})
			}

			for _, status := range statuses {
				version := status.ToolVersion
				if version == "" {
					version = "unavailable"
				}
				line := fmt.Sprintf("%s %s", labelStyle.Render(status.Kind+":"), version)
				if len(args) == 1 && status.ClaimsURL {
					line += " " + claimStyle.Render("(claims URL)")
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newAuthCommand(options *rootOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Credentials for private remotes",
	}

	var loginHost string
	var loginToken string
	var loginUsername string
	var loginPassword string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for a remote host",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := config.SaveLogin(config.LoginInput{
				Host:     loginHost,
				Username: loginUsername,
				Password: loginPassword,
				Token:    loginToken,
			})
			if err != nil {
				return err
			}

			if options.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"host":                  result.Host,
					"auth_mode":             result.AuthMode,
					"used_insecure_storage": result.UsedInsecureStorage,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s (mode=%s)\n", result.Host, result.AuthMode)
			if result.UsedInsecureStorage {
				fmt.Fprintln(cmd.OutOrStdout(), "Warning: keyring unavailable, credentials stored in config fallback")
			}
			return nil
		},
	}
	loginCmd.Flags().StringVar(&loginHost, "host", "", "Remote host URL")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Access token")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Username for basic auth")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password for basic auth")
	_ = loginCmd.MarkFlagRequired("host")
	authCmd.AddCommand(loginCmd)

	var logoutHost string
	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials for a remote host",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Logout(logoutHost); err != nil {
				return err
			}

			if options.JSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "ok"})
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Stored credentials removed")
			return nil
		},
	}
	logoutCmd.Flags().StringVar(&logoutHost, "host", "", "Remote host URL")
	_ = logoutCmd.MarkFlagRequired("host")
	authCmd.AddCommand(logoutCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show hosts with stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := config.CredentialStatus()
			if err != nil {
				return err
			}

			if options.JSON {
				return writeJSON(cmd.OutOrStdout(), status)
			}

			if len(status) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored credentials")
				return nil
			}

			for host, mode := range status {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", host, mode)
			}
			return nil
		},
	}
	authCmd.AddCommand(statusCmd)

	return authCmd
}

func newServeCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the downloader as an MCP server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			logger := options.newLogger()
			registry := newRegistry(cfg, logger)

			server := mcpserver.New(registry, logger)
			if err := server.ServeStdio(); err != nil {
				return apperrors.New(apperrors.KindInternal, "MCP server terminated", err)
			}
			return nil
		},
	}
}

func writeJSON(writer io.Writer, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "failed to encode JSON output", err)
	}

	fmt.Fprintln(writer, string(encoded))
	return nil
}

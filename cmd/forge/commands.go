package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/gateway"
	"github.com/forgehq/forge/internal/security"
)

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing, matching the teacher's
// cmd/nexus split.
func buildRootCmd() *cobra.Command {
	var (
		configPath string
		cloudOnly  bool
	)

	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "Forge - a local-first agentic coding assistant",
		Long: `Forge routes coding queries between a local model and cloud
providers (Claude, OpenAI, Grok, Gemini, Mistral, Groq), backed by a
hierarchical memory tree and a standard tool inventory (files, search,
shell execution, todo lists).

Running forge with no subcommand starts an interactive session: the
full dual-layer TUI on a real terminal, or a plain line REPL when
stdin/stdout is piped or redirected.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, resolveConfigPath(configPath), cloudOnly)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (default: ~/.forge/forge.yaml)")
	rootCmd.PersistentFlags().BoolVar(&cloudOnly, "cloud-only", false,
		"Never route to the local model; always forward to a configured cloud provider")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Profile name (or set FORGE_PROFILE)")

	rootCmd.AddCommand(
		buildQueryCmd(&configPath, &cloudOnly),
		buildDaemonCmd(&configPath, &cloudOnly),
		buildAuditCmd(&configPath),
	)

	return rootCmd
}

// buildAuditCmd runs a security audit over the resolved config file and
// its state directory: filesystem permission checks on sensitive
// paths, embedded-secret detection in the config content, and
// overly-permissive channel/gateway policy checks.
func buildAuditCmd(configPath *string) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit the configuration and local state directory for security issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			report, err := security.RunAudit(security.AuditOptions{
				StateDir:          filepath.Dir(path),
				ConfigPath:        path,
				Config:            cfg,
				IncludeFilesystem: true,
				IncludeGateway:    true,
				IncludeConfig:     true,
			})
			if err != nil {
				return fmt.Errorf("run audit: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, f := range report.Findings {
				fmt.Fprintf(out, "[%s] %s: %s\n", f.Severity, f.Title, f.Detail)
			}
			bySeverity := report.CountBySeverity()
			fmt.Fprintf(out, "%d findings (%d critical, %d high)\n",
				len(report.Findings), report.Summary.Critical, bySeverity[security.SeverityHigh])
			if report.HasCritical() {
				return fmt.Errorf("audit found critical issues")
			}
			_ = fix // reserved: --fix is not yet wired to an auto-remediation pass
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Attempt to automatically remediate findings (not yet implemented)")
	return cmd
}

func buildQueryCmd(configPath *string, cloudOnly *bool) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a single query against the agent loop and print the result",
		Args:  cobra.MinimumNArgs(1),
		Example: `  forge query "explain the diff in this working tree"
  forge query --session-id review-42 "summarize the open todos"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return runQuery(cmd, resolveConfigPath(*configPath), *cloudOnly, sessionID, text)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "default", "Session ID to scope memory and history to")
	return cmd
}

func buildDaemonCmd(configPath *string, cloudOnly *bool) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start the OpenAI-compatible HTTP daemon",
		Long: `Start the OpenAI-compatible HTTP daemon exposing
POST /v1/chat/completions (with SSE streaming), /healthz, and /metrics.

Select a non-default provider per request with the X-Forge-Provider
header.`,
		Example: `  forge daemon
  forge daemon --bind 0.0.0.0:11435`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, resolveConfigPath(*configPath), *cloudOnly, bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", gateway.DefaultAddr, "Address to bind the HTTP daemon to")
	return cmd
}

// resolveConfigPath honors an explicit --config flag, then FORGE_PROFILE
// (mirroring the teacher's profile-name resolution), then FORGE_CONFIG,
// falling back to ~/.forge/forge.yaml.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	active := strings.TrimSpace(profileName)
	if active == "" {
		active = strings.TrimSpace(os.Getenv("FORGE_PROFILE"))
	}
	if active != "" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + "/.forge/profiles/" + active + ".yaml"
		}
	}
	if env := strings.TrimSpace(os.Getenv("FORGE_CONFIG")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "forge.yaml"
	}
	return home + "/.forge/forge.yaml"
}

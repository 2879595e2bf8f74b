// Package main provides the forge CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"planforge/internal/config"
	"planforge/internal/logging"
)

var (
	// Global flags
	debugFlag       bool
	workspaceFlag   string
	autoApproveFlag bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - terminal coding assistant with plan-based execution",
	Long: `forge is a terminal-resident coding assistant.

It holds a conversation with an LLM that can read and edit files, search
code, run shell commands, and fetch documentation. Risky operations stop at
an approval prompt. In plan mode the assistant investigates without touching
anything and proposes a dependency-ordered task plan you approve before it
executes.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspaceFlag == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			workspaceFlag = wd
		}
		return logging.Initialize(workspaceFlag, logging.Options{Debug: debugFlag})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		logging.CloseAudit()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Path(workspaceFlag))
	if err != nil {
		return nil, err
	}
	if autoApproveFlag {
		cfg.Approval.AutoApprove = true
	}
	if debugFlag {
		cfg.Logging.DebugMode = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging under .forge/logs/")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace directory (defaults to cwd)")
	rootCmd.Flags().BoolVar(&autoApproveFlag, "auto-approve", false, "skip approval prompts (use with care)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the forge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("forge", version)
	},
}

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

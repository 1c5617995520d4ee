package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var profileFlag string

var rootCmd = &cobra.Command{
	Use:   "remote-sync",
	Short: "Workspace to remote file synchronization",
	Long: `Synchronizes a local workspace with a remote endpoint (SFTP, FTP or a
local mirror) under a per-workspace remote-sync.json configuration with
profiles, external remote definitions, SSH config integration and
gitignore-style ignore rules.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "config profile to resolve")
}

// ExecuteContext runs the CLI under ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func workspaceRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

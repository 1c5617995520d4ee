package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"remote-sync/internal/config"
)

var showAllProfiles bool

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowConfig()
	},
}

func init() {
	showConfigCmd.Flags().BoolVar(&showAllProfiles, "all", false, "resolve every declared profile")
	rootCmd.AddCommand(showConfigCmd)
}

func runShowConfig() error {
	root := workspaceRoot()
	raws, err := config.Load(root)
	if err != nil {
		return err
	}
	raw := raws[0]
	resolver := config.NewResolver(root)

	if showAllProfiles {
		names := raw.ProfileNames()
		if len(names) == 0 {
			fmt.Println("no profiles declared")
			return nil
		}
		for _, name := range names {
			cfg, err := resolver.Resolve(raw, name)
			if err != nil {
				return err
			}
			fmt.Printf("--- profile %s ---\n", name)
			printConfig(cfg)
		}
		return nil
	}

	cfg, err := resolver.Resolve(raw, profileFlag)
	if err != nil {
		return err
	}
	printConfig(cfg)
	return nil
}

func printConfig(cfg *config.ServiceConfig) {
	fmt.Printf("protocol:       %s\n", cfg.Protocol)
	fmt.Printf("host:           %s\n", cfg.Host)
	fmt.Printf("port:           %d\n", cfg.Port)
	fmt.Printf("username:       %s\n", cfg.Username)
	fmt.Printf("remotePath:     %s\n", cfg.RemotePath)
	fmt.Printf("localPath:      %s\n", cfg.LocalPath)
	fmt.Printf("concurrency:    %d\n", cfg.Concurrency)
	fmt.Printf("connectTimeout: %s\n", cfg.ConnectTimeout)
	if cfg.PrivateKeyPath != "" {
		fmt.Printf("privateKey:     %s\n", cfg.PrivateKeyPath)
	}
	if cfg.Agent != "" {
		fmt.Printf("agent:          %s\n", cfg.Agent)
	}
	if len(cfg.IgnorePatterns) > 0 {
		fmt.Printf("ignore:         %v\n", cfg.IgnorePatterns)
	}
	fmt.Printf("uploadOnSave:   %v\n", cfg.UploadOnSave)
	fmt.Printf("useTempFile:    %v\n", cfg.UseTempFile)
	fmt.Printf("downloadOnOpen: %v\n", cfg.DownloadOnOpen)
}

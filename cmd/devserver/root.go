package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "devserver",
		Short:         "Local DM relay server and tools",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(cmd)
		},
	}

	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file to load (ignored if missing).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSendCmd())

	return cmd
}

// loadEnvFile never overrides variables already set in the environment.
func loadEnvFile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("env-file")
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

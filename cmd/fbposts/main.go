package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fbposts/internal/config"
)

const (
	Version = "1.0.0"
	Banner  = `
______ ______ ______ ______ ______ ______

   __ _                       _
  / _| |__  _ __   ___  ___| |_ ___
 | |_| '_ \| '_ \ / _ \/ __| __/ __|
 |  _| |_) | |_) | (_) \__ \ |_\__ \
 |_| |_.__/| .__/ \___/|___/\__|___/
           |_|

fbposts - public post extractor v%s

______ ______ ______ ______ ______ ______

`
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fbposts",
		Short:         "Extract public posts from Facebook pages and profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./config.yaml, ./config/config.yaml or /etc/fbposts/config.yaml)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newDBCommand())
	root.AddCommand(&cobra.Command{
		Use:   "gen-config [path]",
		Short: "Generate a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.SaveConfigTemplate(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default config generated: %s\n", path)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fbposts v%s\n", Version)
		},
	})

	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

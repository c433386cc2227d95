package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tickitapp/tickit-sync/internal/config"
)

func newInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			exists, err := configExists(output)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			if err := config.Default().Save(output); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(out, "Created config file: %s\n", output)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  1. Generate a token: tickit-sync token --name my-device --config %s\n", output)
			fmt.Fprintf(out, "  2. Start the server: tickit-sync serve --config %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "config.toml", "output path for config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

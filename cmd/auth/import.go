package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <credentials.json>",
		Short: "Import accounts from a legacy credentials file",
		Long: `Import accounts from a JSON file of the form
{"alice": {"password": "<bcrypt hash>", "role": "admin"}}.
Hashes are kept and upgraded on each user's next login. Existing accounts
are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			application, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			res, err := application.Importer().Import(cmd.Context(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range res.Created {
				fmt.Fprintf(out, "created  %s\n", name)
			}
			skipped := make([]string, 0, len(res.Skipped))
			for name := range res.Skipped {
				skipped = append(skipped, name)
			}
			sort.Strings(skipped)
			for _, name := range skipped {
				fmt.Fprintf(out, "skipped  %s: %s\n", name, res.Skipped[name])
			}
			fmt.Fprintf(out, "%d created, %d skipped\n", len(res.Created), len(res.Skipped))
			return nil
		},
	}
}

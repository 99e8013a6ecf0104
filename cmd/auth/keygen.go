package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/aussiebroadwan/tabauth/internal/auth/app"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var (
		alg string
		out string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate token signing material",
		Long: `Generate a private key (EdDSA, ES256) for AUTH_SIGNING_KEY_FILE or a
shared secret (HS256) for AUTH_SECRET_FILE. Existing files are never
overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			material, err := app.GenerateSigningMaterial(alg)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(material)
				return err
			}

			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%s already exists", out)
			}
			if err != nil {
				return err
			}
			if _, err := f.Write(material); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s key to %s\n", alg, out)
			return err
		},
	}

	cmd.Flags().StringVar(&alg, "alg", "EdDSA", "algorithm: EdDSA, ES256 or HS256")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

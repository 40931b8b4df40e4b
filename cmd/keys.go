package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/baybook/internal/secret"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate BAYBOOK_COOKIE_HASH_KEY and BAYBOOK_COOKIE_BLOCK_KEY values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := secret.GenerateKey(32)
			if err != nil {
				return err
			}
			block, err := secret.GenerateKey(32)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export BAYBOOK_COOKIE_HASH_KEY=%s\n", secret.EncodeKey(hash))
			fmt.Fprintf(out, "export BAYBOOK_COOKIE_BLOCK_KEY=%s\n", secret.EncodeKey(block))
			return nil
		},
	}
}

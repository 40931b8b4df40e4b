package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSealCmd() *cobra.Command {
	var value string

	c := &cobra.Command{
		Use:   "seal",
		Short: "Seal the portal password for storage in the config file",
		Long:  "Reads the value from --value or the first line of stdin and prints sealed:<token>, usable as portal.password.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sealer, err := cfg.Sealer()
			if err != nil {
				return err
			}
			if sealer == nil {
				return fmt.Errorf("keys.hash and keys.block must be set; run `baybook keys`")
			}
			if value == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return fmt.Errorf("nothing to seal")
			}
			sealed, err := sealer.Seal(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	c.Flags().StringVar(&value, "value", "", "value to seal (default: read stdin)")
	return c
}

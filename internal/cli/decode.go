package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"monaco-mirror/internal/app"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <signature>",
	Short: "Fetch a transaction and print any decoded orders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == "" {
			return fmt.Errorf("signature must not be empty")
		}

		opts := app.DecodeOptions{
			Signature: args[0],
		}

		return getApp().Decode(cmd.Context(), opts)
	},
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Ghostlink/internal/directory"
)

var joinCmd = &cobra.Command{
	Use:     "join <code>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a room by its code.

Examples:
  ghostlink join 7KQ2M9XA
  ghostlink join 7KQ2M9XA --name bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := directory.NormalizeCode(args[0])
		if err := directory.ValidateCode(code); err != nil {
			return err
		}

		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		dir, err := openDirectory(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dir.Close()

		return runRoom(cmd.Context(), cfg, dir, roomParams{code: code, name: displayName()})
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)

	addClientFlags(joinCmd)
	addRoomFlags(joinCmd)
}

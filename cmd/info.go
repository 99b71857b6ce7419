package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/ui"
)

var infoCmd = &cobra.Command{
	Use:   "info <code>",
	Short: "Show a room's directory record",
	Args:  cobra.ExactArgs(1),
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

		room, err := dir.Get(cmd.Context(), code)
		if errors.Is(err, directory.ErrRoomNotFound) {
			return fmt.Errorf("room %s does not exist", code)
		}
		if err != nil {
			return err
		}

		fmt.Println(ui.RoomInfo(*room, time.Now()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)

	addClientFlags(infoCmd)
}

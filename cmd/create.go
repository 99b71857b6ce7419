package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/ui"
)

const createAttempts = 5

var (
	flagTimeLimit string
	flagCopy      bool
	flagNoJoin    bool
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"new", "c"},
	Short:   "Create a room and join it as admin",
	Long: `Create a new room, print its code and join it as the admin.

Examples:
  ghostlink create
  ghostlink create --name alice --time 30m --copy
  ghostlink create --no-join --directory redis://localhost:6379/0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRoom(cmd)
	},
}

func createRoom(cmd *cobra.Command) error {
	ctx := cmd.Context()

	limit, err := directory.ParseTimeLimit(flagTimeLimit)
	if err != nil {
		return err
	}
	name := displayName()

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	dir, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer dir.Close()

	room := directory.NewRoom(name, limit, time.Now())
	stop := ui.RunSpinner("Creating room...")
	err = directory.CreateUnique(ctx, dir, room, createAttempts)
	stop()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	displayRoomCode(room)
	if flagCopy {
		if err := clipboard.WriteAll(room.Code); err != nil {
			ui.PrintWarningf("Could not copy the code: %v", err)
		} else {
			ui.PrintSuccessf("%s Code copied to clipboard", ui.IconCopy)
		}
	}
	if flagNoJoin {
		return nil
	}

	return runRoom(ctx, cfg, dir, roomParams{code: room.Code, name: name, isAdmin: true})
}

func displayName() string {
	if name := strings.TrimSpace(flagName); name != "" {
		return name
	}
	return petname.Generate(2, "-")
}

func displayRoomCode(room *directory.Room) {
	body := fmt.Sprintf("%s Room code: %s\n%s Expires in %s\n\nShare it: %s",
		ui.IconRoom, ui.CodeStyle.Render(room.Code),
		ui.IconTime, room.TimeLimit,
		ui.BoldStyle.Render("ghostlink join "+room.Code))
	fmt.Println()
	fmt.Println(ui.BoxStyle.Render(body))
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(createCmd)

	addClientFlags(createCmd)
	addRoomFlags(createCmd)
	createCmd.Flags().StringVarP(&flagTimeLimit, "time", "l", string(directory.DefaultTimeLimit), "Room lifetime: 5m, 30m, 1h, 2h or 5h")
	createCmd.Flags().BoolVarP(&flagCopy, "copy", "c", false, "Copy the room code to the clipboard")
	createCmd.Flags().BoolVar(&flagNoJoin, "no-join", false, "Create the room without joining it")
}

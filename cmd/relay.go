package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Ghostlink/internal/config"
	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/relay"
)

var (
	flagServerConfig string
	flagServerAddr   string
	flagServerDir    string
	flagNoDirectory  bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay server",
	Long: `Run the websocket signaling relay. It also serves the room directory API
under /api/rooms unless --no-directory is given.

Examples:
  ghostlink relay --addr :8080
  ghostlink relay --directory redis://localhost:6379/0
  ghostlink relay --config relay.yaml`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging(slog.LevelInfo)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.LoadServer(config.ServerOptions{
			ConfigPath:   flagServerConfig,
			Addr:         flagServerAddr,
			DirectoryURL: flagServerDir,
			NoDirectory:  flagNoDirectory,
			EnvFile:      flagEnvFile,
		})
		if err != nil {
			return err
		}

		var dir directory.Directory
		if cfg.DirectoryURL != "" {
			dir, err = directory.Open(ctx, cfg.DirectoryURL)
			if err != nil {
				return err
			}
			defer dir.Close()
		}

		return relay.NewServer(cfg, dir, slog.Default()).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&flagServerConfig, "config", "", "YAML config file")
	relayCmd.Flags().StringVar(&flagServerAddr, "addr", "", "Listen address (default :8080)")
	relayCmd.Flags().StringVar(&flagServerDir, "directory", "", "Room directory backing /api/rooms (default memory://)")
	relayCmd.Flags().BoolVar(&flagNoDirectory, "no-directory", false, "Disable the /api/rooms endpoints")
}

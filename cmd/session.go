package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Ghostlink/internal/config"
	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/BioHazard786/Ghostlink/internal/session"
	"github.com/BioHazard786/Ghostlink/internal/signaling"
	"github.com/BioHazard786/Ghostlink/internal/ui"
	"github.com/BioHazard786/Ghostlink/internal/webrtc"
)

const leaveTimeout = 5 * time.Second

var (
	flagRelayURL     string
	flagDirectoryURL string
	flagSTUN         string
	flagTURN         string
	flagTURNUser     string
	flagTURNPass     string
	flagForceRelay   bool
	flagName         string
	flagDownloadDir  string
)

// addClientFlags registers the connection flags shared by create, join and info.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagRelayURL, "relay-url", "", "Signaling relay (ws://, wss://, mqtt://, tcp://)")
	cmd.Flags().StringVar(&flagDirectoryURL, "directory", "", "Room directory (http://, redis://, dynamodb://, memory://)")
	cmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	cmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	cmd.Flags().BoolVarP(&flagForceRelay, "relay", "r", false, "Force relay mode")
}

func addRoomFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name (default: a random petname)")
	cmd.Flags().StringVarP(&flagDownloadDir, "download-dir", "d", ".", "Default directory for /save")
}

func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		RelayURL:     flagRelayURL,
		DirectoryURL: flagDirectoryURL,
		STUNServer:   flagSTUN,
		TURNServer:   flagTURN,
		TURNUser:     flagTURNUser,
		TURNPass:     flagTURNPass,
		ForceRelay:   flagForceRelay,
		EnvFile:      flagEnvFile,
	})
	if err != nil {
		return nil, session.WrapError("load config", err, "")
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func openDirectory(ctx context.Context, cfg *config.Config) (directory.Directory, error) {
	stop := ui.RunSpinner("Opening room directory...")
	defer stop()
	dir, err := directory.Open(ctx, cfg.DirectoryURL)
	if err != nil {
		return nil, session.WrapError("open directory", err, cfg.DirectoryURL)
	}
	return dir, nil
}

type roomParams struct {
	code    string
	name    string
	isAdmin bool
}

// runRoom joins the room and hands the terminal to the room UI until the
// session ends or the user quits.
func runRoom(ctx context.Context, cfg *config.Config, dir directory.Directory, p roomParams) error {
	log := slog.Default()

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	relay, err := signaling.Dial(ctx, cfg.RelayURL, log)
	if err != nil {
		sp.Stop()
		return session.WrapError("connect to relay", err, cfg.RelayURL)
	}

	sess, err := session.New(session.Options{
		Code:        p.code,
		DisplayName: p.name,
		IsAdmin:     p.isAdmin,
		Directory:   dir,
		Relay:       relay,
		Transport:   webrtc.NewPionTransport(cfg, log),
		Logger:      log,
		MaxFileSize: cfg.MaxFileSize,
	})
	if err != nil {
		sp.Stop()
		relay.Close()
		return err
	}

	sp.UpdateMessage("Joining room...")
	if err := sess.Join(ctx); err != nil {
		sp.Stop()
		relay.Close()
		return joinError(p.code, err)
	}
	sp.Success("Joined room " + directory.NormalizeCode(p.code))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(runCtx) }()

	uiErr := ui.RunRoom(ctx, sess, ui.RoomOptions{
		Code:        directory.NormalizeCode(p.code),
		DisplayName: p.name,
		IsAdmin:     p.isAdmin,
		MaxFileSize: cfg.MaxFileSize,
		DownloadDir: flagDownloadDir,
	})

	if sess.Snapshot().State == session.Active {
		leaveCtx, cancelLeave := context.WithTimeout(context.Background(), leaveTimeout)
		if err := sess.EndOrLeave(leaveCtx); err != nil && !errors.Is(err, session.ErrSessionOver) {
			log.Warn("leave failed", "error", err)
		}
		cancelLeave()
	}

	select {
	case <-done:
	case <-time.After(leaveTimeout):
		cancel()
		<-done
	}

	if snap := sess.Snapshot(); snap.State != session.Active {
		ui.PrintInfof("Session over: %s.", snap.Reason)
	}
	return uiErr
}

func joinError(code string, err error) error {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return fmt.Errorf("room %s does not exist", code)
	case errors.Is(err, session.ErrRoomExpired):
		return fmt.Errorf("room %s has expired", code)
	}
	return session.WrapError("join room", err, code)
}

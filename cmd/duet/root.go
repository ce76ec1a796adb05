package main

import (
	"fmt"
	"os"

	"github.com/Wyydra/duet/internal/adapter/driven/media/pion"
	"github.com/Wyydra/duet/internal/adapter/driven/store/remote"
	"github.com/Wyydra/duet/internal/config"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/Wyydra/duet/internal/core/service"
	"github.com/Wyydra/duet/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagLogLevel string
)

var cfg *config.Client

var rootCmd = &cobra.Command{
	Use:   "duet",
	Short: "Two-party calls over WebRTC with a shared room store",
	Long: `duet sets up a direct call between two participants. One side creates a
room and shares its id, the other joins it; offer, answer and network
candidates are exchanged through the duet server's room store.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadClient(config.ClientOptions{
			ServerURL:  flagServer,
			STUNServer: flagSTUN,
			TURNServer: flagTURN,
			TURNUser:   flagTURNUser,
			TURNPass:   flagTURNPass,
			LogLevel:   flagLogLevel,
		})
		if err != nil {
			return err
		}
		if _, err := logging.Init(os.Stderr, c.Log); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&flagServer, "server", "S", "", "duet server URL (env "+config.EnvServerURL+")")
	f.StringVarP(&flagSTUN, "stun", "s", "", "STUN server")
	f.StringVarP(&flagTURN, "turn", "t", "", "TURN server")
	f.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	f.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	f.StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
}

func openStore() (*remote.RoomStore, error) {
	store, err := remote.New(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("room store: %w", err)
	}
	return store, nil
}

func newCallService() (*service.CallService, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}

	opts := []pion.Option{pion.WithICEServers(cfg.STUNServers()...)}
	if cfg.TURNServer != "" {
		opts = append(opts, pion.WithTURN(cfg.TURNServer, cfg.TURNUser, cfg.TURNPass))
	}
	engine, err := pion.NewEngine(opts...)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("server", cfg.ServerURL).Str("stun", cfg.STUNServer).Msg("Call service ready")
	return service.NewCallService(store, engine, service.WithLocalMedia(func() (port.LocalMedia, error) {
		return pion.NewSilenceSource("duet")
	})), nil
}

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badgerstore "github.com/Wyydra/duet/internal/adapter/driven/store/badger"
	"github.com/Wyydra/duet/internal/adapter/driven/store/memory"
	handler "github.com/Wyydra/duet/internal/adapter/driving/http"
	"github.com/Wyydra/duet/internal/config"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/Wyydra/duet/internal/core/service"
	"github.com/Wyydra/duet/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	l, err := logging.Init(os.Stdout, cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid logging configuration")
	}

	store, closeStore, err := openStore(cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to open room store")
	}

	presence := service.NewPresenceService(service.PresenceConfig{
		PruneEmptyRooms: cfg.PruneEmptyRooms,
	})
	chat := service.NewChatService(memory.NewMessageRepository(memory.DefaultRoomBacklog), presence, service.DefaultHistorySize)
	h := handler.NewHandler(presence, chat, store)

	go presence.Run()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	presence.Stop()
	if err := closeStore.Close(); err != nil {
		l.Error().Err(err).Msg("Failed to close room store")
	}
	l.Info().Msg("Server exited")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg *config.Server, l zerolog.Logger) (port.RoomStore, io.Closer, error) {
	switch cfg.Store {
	case config.StoreBadger:
		s, err := badgerstore.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		l.Info().Str("dir", cfg.DataDir).Msg("Using badger room store")
		return s, s, nil
	default:
		return memory.NewRoomRepository(), nopCloser{}, nil
	}
}

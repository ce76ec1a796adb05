// Package config loads server and CLI settings. Values come from, in
// order: CLI flags, DUET_* environment variables, defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	EnvAddr            = "DUET_ADDR"
	EnvStore           = "DUET_STORE"
	EnvDataDir         = "DUET_DATA_DIR"
	EnvPruneEmptyRooms = "DUET_PRUNE_EMPTY_ROOMS"
	EnvLogLevel        = "DUET_LOG_LEVEL"
	EnvLogFormat       = "DUET_LOG_FORMAT"

	EnvServerURL  = "DUET_SERVER"
	EnvSTUNServer = "DUET_STUN_SERVER"
	EnvTURNServer = "DUET_TURN_SERVER"
	EnvTURNUser   = "DUET_TURN_USERNAME"
	EnvTURNPass   = "DUET_TURN_PASSWORD"
)

const (
	DefaultAddr      = ":8080"
	DefaultStore     = StoreMemory
	DefaultServerURL = "http://localhost:8080"
	DefaultSTUN      = "stun:stun.l.google.com:19302"

	DefaultServerLogLevel = "info"
	DefaultClientLogLevel = "warn"
	DefaultLogFormat      = "console"
)

// Room store backends selectable on the server.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

type Logging struct {
	Level  string
	Format string
}

type Server struct {
	Addr string

	Store string
	// DataDir is where the badger store keeps its files. Empty keeps the
	// store in memory.
	DataDir string

	PruneEmptyRooms bool

	Log Logging
}

func LoadServer() (*Server, error) {
	prune := false
	if v := os.Getenv(EnvPruneEmptyRooms); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvPruneEmptyRooms, err)
		}
		prune = b
	}

	store := strings.ToLower(pick("", EnvStore, DefaultStore))
	switch store {
	case StoreMemory, StoreBadger:
	default:
		return nil, fmt.Errorf("%s: unknown store %q", EnvStore, store)
	}

	logCfg, err := loadLogging("", DefaultServerLogLevel)
	if err != nil {
		return nil, err
	}

	return &Server{
		Addr:            pick("", EnvAddr, DefaultAddr),
		Store:           store,
		DataDir:         os.Getenv(EnvDataDir),
		PruneEmptyRooms: prune,
		Log:             logCfg,
	}, nil
}

type Client struct {
	// ServerURL is the room store API of cmd/server.
	ServerURL string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	Log Logging
}

// ClientOptions carries CLI flag values. Empty fields fall back to the
// environment and then to defaults.
type ClientOptions struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	LogLevel   string
}

func LoadClient(opts ClientOptions) (*Client, error) {
	logCfg, err := loadLogging(opts.LogLevel, DefaultClientLogLevel)
	if err != nil {
		return nil, err
	}

	cfg := &Client{
		ServerURL:  strings.TrimRight(pick(opts.ServerURL, EnvServerURL, DefaultServerURL), "/"),
		STUNServer: pick(opts.STUNServer, EnvSTUNServer, DefaultSTUN),
		TURNServer: pick(opts.TURNServer, EnvTURNServer, ""),
		TURNUser:   pick(opts.TURNUser, EnvTURNUser, ""),
		TURNPass:   pick(opts.TURNPass, EnvTURNPass, ""),
		Log:        logCfg,
	}
	if cfg.TURNServer != "" && cfg.TURNUser == "" {
		return nil, fmt.Errorf("TURN server %s configured without a username", cfg.TURNServer)
	}
	return cfg, nil
}

// STUNServers returns the configured STUN urls, if any.
func (c *Client) STUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

func loadLogging(flagLevel, defaultLevel string) (Logging, error) {
	l := Logging{
		Level:  strings.ToLower(pick(flagLevel, EnvLogLevel, defaultLevel)),
		Format: strings.ToLower(pick("", EnvLogFormat, DefaultLogFormat)),
	}
	if l.Format != "console" && l.Format != "json" {
		return l, fmt.Errorf("%s: unknown format %q", EnvLogFormat, l.Format)
	}
	return l, nil
}

// pick returns the flag value, else the environment, else def.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

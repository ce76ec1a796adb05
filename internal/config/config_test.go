package config

import "testing"

func TestLoadServerDefaults(t *testing.T) {
	for _, env := range []string{EnvAddr, EnvStore, EnvDataDir, EnvPruneEmptyRooms, EnvLogLevel, EnvLogFormat} {
		t.Setenv(env, "")
	}

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Addr != DefaultAddr || cfg.Store != StoreMemory || cfg.PruneEmptyRooms {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("log=%+v", cfg.Log)
	}
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv(EnvAddr, ":9999")
	t.Setenv(EnvStore, "BADGER")
	t.Setenv(EnvDataDir, "/var/lib/duet")
	t.Setenv(EnvPruneEmptyRooms, "true")
	t.Setenv(EnvLogFormat, "json")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Store != StoreBadger || cfg.DataDir != "/var/lib/duet" || !cfg.PruneEmptyRooms {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("format=%q", cfg.Log.Format)
	}
}

func TestLoadServerRejectsBadValues(t *testing.T) {
	t.Setenv(EnvPruneEmptyRooms, "sometimes")
	if _, err := LoadServer(); err == nil {
		t.Fatalf("bad bool accepted")
	}

	t.Setenv(EnvPruneEmptyRooms, "")
	t.Setenv(EnvStore, "postgres")
	if _, err := LoadServer(); err == nil {
		t.Fatalf("unknown store accepted")
	}
}

func TestLoadClientPriority(t *testing.T) {
	t.Setenv(EnvServerURL, "http://env:8080/")
	t.Setenv(EnvSTUNServer, "stun:env:3478")
	t.Setenv(EnvTURNServer, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := LoadClient(ClientOptions{STUNServer: "stun:flag:3478"})
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.ServerURL != "http://env:8080" {
		t.Fatalf("server=%q, want env value without trailing slash", cfg.ServerURL)
	}
	if cfg.STUNServer != "stun:flag:3478" {
		t.Fatalf("stun=%q, want flag value", cfg.STUNServer)
	}
	if cfg.Log.Level != DefaultClientLogLevel {
		t.Fatalf("level=%q", cfg.Log.Level)
	}

	t.Setenv(EnvServerURL, "")
	t.Setenv(EnvSTUNServer, "")
	cfg, err = LoadClient(ClientOptions{})
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.ServerURL != DefaultServerURL || cfg.STUNServer != DefaultSTUN {
		t.Fatalf("defaults=%+v", cfg)
	}
}

func TestLoadClientTURNNeedsUser(t *testing.T) {
	t.Setenv(EnvTURNUser, "")
	if _, err := LoadClient(ClientOptions{TURNServer: "turn:relay.example.com:3478"}); err == nil {
		t.Fatalf("TURN without username accepted")
	}
}

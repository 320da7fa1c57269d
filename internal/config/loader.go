package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEngines lists the source engines with a known search prefix.
// Used by [Validate] to warn about unrecognised engine names.
var ValidEngines = []string{
	"youtube", "youtubemusic", "soundcloud", "spotify", "deezer", "applemusic",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required"))
	}

	// Nodes
	if len(cfg.Nodes) == 0 {
		errs = append(errs, errors.New("at least one node must be configured"))
	}
	idsSeen := make(map[string]int, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)
		if n.Host == "" {
			errs = append(errs, fmt.Errorf("%s.host is required", prefix))
		}
		if n.Port <= 0 || n.Port > 65535 {
			errs = append(errs, fmt.Errorf("%s.port %d is out of range [1, 65535]", prefix, n.Port))
		}
		if n.Password == "" {
			slog.Warn("node has no password; the worker will reject the handshake unless it runs without auth",
				"node", n.Identifier, "host", n.Host)
		}
		id := n.Identifier
		if id == "" {
			id = fmt.Sprintf("%s:%d", n.Host, n.Port)
		}
		if prev, ok := idsSeen[id]; ok {
			errs = append(errs, fmt.Errorf("%s.identifier %q is a duplicate of nodes[%d]", prefix, id, prev))
		}
		idsSeen[id] = i
	}

	// Player defaults
	if v := cfg.Player.DefaultVolume; v < 0 || v > 1000 {
		errs = append(errs, fmt.Errorf("player.default_volume %d is out of range [0, 1000]", v))
	}
	if cfg.Player.MaxStuckRetries < 0 {
		errs = append(errs, fmt.Errorf("player.max_stuck_retries %d must not be negative", cfg.Player.MaxStuckRetries))
	}
	if cfg.Player.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("player.history_size %d must not be negative", cfg.Player.HistorySize))
	}

	// Search engines
	validateEngine("search.engine", cfg.Search.Engine)
	validateEngine("search.playback_engine", cfg.Search.PlaybackEngine)

	// Storage
	if cfg.Storage.Adapter != "" && !cfg.Storage.Adapter.IsValid() {
		errs = append(errs, fmt.Errorf("storage.adapter %q is invalid; valid values: memory, jsonfile, redis, postgres", cfg.Storage.Adapter))
	}
	switch cfg.Storage.Adapter {
	case AdapterJSONFile:
		if cfg.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required when adapter is jsonfile"))
		}
	case AdapterPostgres:
		if cfg.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required when adapter is postgres"))
		}
	case AdapterRedis:
		if cfg.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required when adapter is redis"))
		}
	}

	return errors.Join(errs...)
}

// validateEngine logs a warning if name is non-empty and not a known source
// engine. Unknown names still work if the worker carries a plugin for them.
func validateEngine(field, name string) {
	if name == "" || slices.Contains(ValidEngines, name) {
		return
	}
	slog.Warn("unknown source engine, may be a typo or a worker plugin",
		"field", field,
		"name", name,
		"known", ValidEngines,
	)
}

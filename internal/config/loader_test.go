package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidelink-audio/tidelink/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

discord:
  token: "bot-token"

nodes:
  - identifier: eu-1
    host: lava-eu.example.com
    port: 2333
    password: youshallnotpass
    secure: true
    region: rotterdam
  - host: lava-us.example.com
    port: 2333
    password: youshallnotpass
    region: us-central

player:
  default_volume: 80
  autoplay: true
  leave_on_empty: true
  leave_on_empty_delay_ms: 60000

search:
  engine: spotify
  playback_engine: youtubemusic

storage:
  adapter: jsonfile
  path: /var/lib/tidelink/snapshots.json
  prefix: "tidelink:player:"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if len(cfg.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(cfg.Nodes))
	}
	if cfg.Nodes[0].Identifier != "eu-1" || !cfg.Nodes[0].Secure {
		t.Errorf("nodes[0] = %+v", cfg.Nodes[0])
	}
	if cfg.Player.DefaultVolume != 80 || !cfg.Player.AutoPlay {
		t.Errorf("player section = %+v", cfg.Player)
	}
	if cfg.Search.Engine != "spotify" || cfg.Search.PlaybackEngine != "youtubemusic" {
		t.Errorf("search section = %+v", cfg.Search)
	}
	if cfg.Storage.Adapter != config.AdapterJSONFile {
		t.Errorf("storage.adapter = %q, want jsonfile", cfg.Storage.Adapter)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "player:", "plyer:", 1)
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("unknown top-level field accepted")
	}
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	if _, err := config.LoadFromReader(strings.NewReader("nodes: [")); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load("/does/not/exist.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tidelink.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(cfg.Nodes))
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantSub: "log_level",
		},
		{
			name:    "missing token",
			mutate:  func(c *config.Config) { c.Discord.Token = "" },
			wantSub: "discord.token",
		},
		{
			name:    "no nodes",
			mutate:  func(c *config.Config) { c.Nodes = nil },
			wantSub: "at least one node",
		},
		{
			name:    "missing host",
			mutate:  func(c *config.Config) { c.Nodes[0].Host = "" },
			wantSub: "host is required",
		},
		{
			name:    "bad port",
			mutate:  func(c *config.Config) { c.Nodes[0].Port = 70000 },
			wantSub: "out of range",
		},
		{
			name: "duplicate identifier",
			mutate: func(c *config.Config) {
				c.Nodes[1].Identifier = "eu-1"
			},
			wantSub: "duplicate",
		},
		{
			name:    "volume out of range",
			mutate:  func(c *config.Config) { c.Player.DefaultVolume = 1500 },
			wantSub: "default_volume",
		},
		{
			name:    "negative stuck retries",
			mutate:  func(c *config.Config) { c.Player.MaxStuckRetries = -1 },
			wantSub: "max_stuck_retries",
		},
		{
			name:    "bad adapter",
			mutate:  func(c *config.Config) { c.Storage.Adapter = "sqlite" },
			wantSub: "storage.adapter",
		},
		{
			name: "jsonfile without path",
			mutate: func(c *config.Config) {
				c.Storage.Adapter = config.AdapterJSONFile
				c.Storage.Path = ""
			},
			wantSub: "storage.path",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *config.Config) {
				c.Storage.Adapter = config.AdapterPostgres
			},
			wantSub: "storage.dsn",
		},
		{
			name: "redis without addr",
			mutate: func(c *config.Config) {
				c.Storage.Adapter = config.AdapterRedis
			},
			wantSub: "storage.redis.addr",
		},
		{
			name: "tls missing key",
			mutate: func(c *config.Config) {
				c.Server.TLS = &config.TLSConfig{CertFile: "/tmp/cert.pem"}
			},
			wantSub: "server.tls",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
			if err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tc.mutate(cfg)

			err = config.Validate(cfg)
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "loud"},
		Nodes: []config.NodeConfig{
			{Port: 2333, Password: "pw"},
		},
	}

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"log_level", "discord.token", "host is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %q", err, want)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/EgorLis/sonosws/internal/sonosws"
)

func TestLoadFlags(t *testing.T) {
	cfg, err := Load(Flags("test"), []string{"-i", "192.168.1.20", "-u", "http://x/clip.mp3", "-V", "40"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "192.168.1.20" || cfg.URI != "http://x/clip.mp3" || cfg.Volume != 40 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Port != sonosws.DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, sonosws.DefaultPort)
	}
	if cfg.ResponseTimeout != sonosws.DefaultResponseTimeout {
		t.Errorf("ResponseTimeout = %v", cfg.ResponseTimeout)
	}
	if cfg.MaxAttempts != sonosws.MaxAttempts {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if len(cfg.ClientOptions()) == 0 {
		t.Error("no client options")
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SONOSWS_IP_ADDR", "10.0.0.9")
	t.Setenv("SONOSWS_RESPONSE_TIMEOUT", "5s")
	t.Setenv("SONOSWS_MAX_ATTEMPTS", "4")
	t.Setenv("SONOSWS_PLAYER_ID", "RINCON_ENV")

	cfg, err := Load(Flags("test"), []string{"--groups"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "10.0.0.9" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.ResponseTimeout != 5*time.Second {
		t.Errorf("ResponseTimeout = %v", cfg.ResponseTimeout)
	}
	if cfg.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.PlayerID != "RINCON_ENV" {
		t.Errorf("PlayerID = %q", cfg.PlayerID)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonosws.json")
	body := `{"ip_addr": "10.1.1.1", "household_id": "Sonos_FILE", "listen": ":8080", "heartbeat": "30s"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	// Flags win over the file.
	cfg, err := Load(Flags("test"), []string{"--config", path, "-i", "10.2.2.2"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "10.2.2.2" {
		t.Errorf("Host = %q, want flag value", cfg.Host)
	}
	if cfg.HouseholdID != "Sonos_FILE" || cfg.Listen != ":8080" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Heartbeat != 30*time.Second {
		t.Errorf("Heartbeat = %v", cfg.Heartbeat)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"Missing host", []string{"-u", "http://x"}, "ip_addr is required"},
		{"Missing uri", []string{"-i", "10.0.0.1"}, "uri is required"},
		{"Volume range", []string{"-i", "10.0.0.1", "-u", "http://x", "-V", "101"}, "out of range"},
		{"Attempts", []string{"-i", "10.0.0.1", "--groups", "--max_attempts", "0"}, "max_attempts"},
		{"Log format", []string{"-i", "10.0.0.1", "--groups", "--log_format", "xml"}, "log_format"},
		{"Missing file", []string{"--config", "/does/not/exist.json"}, "read config"},
		{"Unknown flag", []string{"--nope"}, "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Flags("test"), tt.args)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "birther.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
# shaker fixture B
MQTT_BROKER=tcp://broker:1883
DB_PATH=/var/lib/birther/products.db
SHAKE_START_OFFSET=500
SHAKE_END_OFFSET=1500
LOWPASS_HZ=0
DURATION_TOLERANCE=2s
PROFILE_PATH=10g_4g
DATA_DIR=/srv/shaker
MAX_UPLOAD_MB=64
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MQTTBroker != "tcp://broker:1883" || cfg.DBPath != "/var/lib/birther/products.db" {
		t.Errorf("strings not applied: %+v", cfg)
	}
	if cfg.ShakeStartOffset != 500 || cfg.ShakeEndOffset != 1500 || cfg.LowpassHz != 0 {
		t.Errorf("analysis keys not applied: %+v", cfg)
	}
	if cfg.DurationTolerance != 2*time.Second || cfg.ProfilePath != "10g_4g" {
		t.Errorf("checker keys not applied: %+v", cfg)
	}
	if cfg.DataDir != "/srv/shaker" || cfg.MaxUploadMB != 64 {
		t.Errorf("web keys not applied: %+v", cfg)
	}
	if cfg.HighpassHz != 10 || cfg.WebServerPort != 8080 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"NOT_A_KEY=1", "unknown config key"},
		{"MISSING_EQUALS", "invalid config line 1"},
		{"FILTER_ORDER=abc", "invalid FILTER_ORDER"},
		{"QUIET_OVERLAP=1.5", "QUIET_OVERLAP must be"},
		{"SHAKE_START_OFFSET=3000", "SHAKE_END_OFFSET"},
		{"DURATION_TOLERANCE=5", "invalid DURATION_TOLERANCE"},
		{"MAX_UPLOAD_MB=0", "MAX_UPLOAD_MB must be"},
	}
	for _, tt := range tests {
		_, err := Load(writeConfig(t, tt.body))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: err = %v, want %q", tt.body, err, tt.want)
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().validate(); err != nil {
		t.Fatal(err)
	}
}

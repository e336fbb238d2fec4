package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDBirther string
	MQTTClientIDMonitor string

	// Topics
	TopicCalibration string
	TopicValidity    string
	TopicProgress    string

	// Storage
	DBPath  string
	PlotDir string

	// Web Server
	WebServerPort int
	DataDir       string // recordings named in calibrate requests live here
	MaxUploadMB   int

	// Shake analysis
	MinSampleRate       float64 // Hz
	HighpassHz          float64
	LowpassHz           float64 // 0 disables the quiet-mean filter
	FilterOrder         int
	SkipTime            float64 // seconds trimmed at each end
	BigShakeThreshold   float64 // g
	SmallShakeThreshold float64 // g
	ShakeStartOffset    int     // samples after the first crossing
	ShakeEndOffset      int     // samples after the first crossing
	QuietSpan           float64 // seconds
	QuietOverlap        float64 // 0..0.9
	ProfilePath         string  // built-in profile name or TOML/JSON file; empty uses threshold search

	// Validity checker
	DurationTolerance time.Duration
	BlocksOutput      string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when no file overrides a key.
func Default() *Config {
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDBirther: "birther",
		MQTTClientIDMonitor: "birther-monitor",

		TopicCalibration: "birther/calibration",
		TopicValidity:    "birther/validity",
		TopicProgress:    "birther/progress",

		DBPath:  "birther.db",
		PlotDir: "plots",

		WebServerPort: 8080,
		DataDir:       "data",
		MaxUploadMB:   256,

		MinSampleRate:       1000,
		HighpassHz:          10,
		LowpassHz:           2.55,
		FilterOrder:         5,
		SkipTime:            2,
		BigShakeThreshold:   6,
		SmallShakeThreshold: 3,
		ShakeStartOffset:    1000,
		ShakeEndOffset:      2000,
		QuietSpan:           1,
		QuietOverlap:        0.5,

		DurationTolerance: 5 * time.Second,
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID", "MQTT_CLIENT_ID_BIRTHER":
		c.MQTTClientIDBirther = value
	case "MQTT_CLIENT_ID_MONITOR":
		c.MQTTClientIDMonitor = value

	// Topics
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_VALIDITY":
		c.TopicValidity = value
	case "TOPIC_PROGRESS":
		c.TopicProgress = value

	// Storage
	case "DB_PATH":
		c.DBPath = value
	case "PLOT_DIR":
		c.PlotDir = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "DATA_DIR":
		c.DataDir = value
	case "MAX_UPLOAD_MB":
		c.MaxUploadMB, err = parseInt(key, value)

	// Shake analysis
	case "MIN_SAMPLE_RATE":
		c.MinSampleRate, err = parseFloat(key, value)
	case "HIGHPASS_HZ":
		c.HighpassHz, err = parseFloat(key, value)
	case "LOWPASS_HZ":
		c.LowpassHz, err = parseFloat(key, value)
	case "FILTER_ORDER":
		c.FilterOrder, err = parseInt(key, value)
	case "SKIP_TIME":
		c.SkipTime, err = parseFloat(key, value)
	case "BIG_SHAKE_THRESHOLD":
		c.BigShakeThreshold, err = parseFloat(key, value)
	case "SMALL_SHAKE_THRESHOLD":
		c.SmallShakeThreshold, err = parseFloat(key, value)
	case "SHAKE_START_OFFSET":
		c.ShakeStartOffset, err = parseInt(key, value)
	case "SHAKE_END_OFFSET":
		c.ShakeEndOffset, err = parseInt(key, value)
	case "QUIET_SPAN":
		c.QuietSpan, err = parseFloat(key, value)
	case "QUIET_OVERLAP":
		c.QuietOverlap, err = parseFloat(key, value)
	case "PROFILE_PATH":
		c.ProfilePath = value

	// Validity checker
	case "DURATION_TOLERANCE":
		c.DurationTolerance, err = time.ParseDuration(value)
		if err != nil {
			err = fmt.Errorf("invalid DURATION_TOLERANCE %q: %w", value, err)
		}
	case "BLOCKS_OUTPUT":
		c.BlocksOutput = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that required fields are set and ranges make sense.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.FilterOrder < 1 || c.FilterOrder > 10 {
		return fmt.Errorf("FILTER_ORDER must be 1-10, got %d", c.FilterOrder)
	}
	if c.HighpassHz <= 0 {
		return fmt.Errorf("HIGHPASS_HZ must be positive, got %g", c.HighpassHz)
	}
	if c.LowpassHz < 0 {
		return fmt.Errorf("LOWPASS_HZ must not be negative, got %g", c.LowpassHz)
	}
	if c.SmallShakeThreshold <= 0 || c.SmallShakeThreshold > c.BigShakeThreshold {
		return fmt.Errorf("SMALL_SHAKE_THRESHOLD must be in (0, %g], got %g", c.BigShakeThreshold, c.SmallShakeThreshold)
	}
	if c.ShakeEndOffset <= c.ShakeStartOffset {
		return fmt.Errorf("SHAKE_END_OFFSET (%d) must exceed SHAKE_START_OFFSET (%d)", c.ShakeEndOffset, c.ShakeStartOffset)
	}
	if c.QuietSpan <= 0 {
		return fmt.Errorf("QUIET_SPAN must be positive, got %g", c.QuietSpan)
	}
	if c.QuietOverlap < 0 || c.QuietOverlap >= 1 {
		return fmt.Errorf("QUIET_OVERLAP must be in [0, 1), got %g", c.QuietOverlap)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// An empty path installs Default.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

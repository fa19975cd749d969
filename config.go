package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Stream     StreamConfig     `yaml:"stream"`
	Buffer     BufferConfig     `yaml:"buffer"`
	Labels     LabelConfig      `yaml:"labels"`
	Events     EventConfig      `yaml:"events"`
	Recording  RecordingConfig  `yaml:"recording"`
	Filter     FilterConfig     `yaml:"filter"`
	Features   FeatureConfig    `yaml:"features"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StreamConfig describes the external sample source (UDP inlet)
type StreamConfig struct {
	ListenAddr          string   `yaml:"listen_addr"`           // host:port, may be a multicast group
	Interface           string   `yaml:"interface"`             // network interface for multicast join (optional)
	NominalRate         float64  `yaml:"nominal_rate"`          // declared sampling frequency in Hz
	ChannelNames        []string `yaml:"channel_names"`         // electrode names, defines channel count
	PullTimeoutMs       int      `yaml:"pull_timeout_ms"`       // bounded wait per pull (default: 1000)
	MaxConsecutiveFails int      `yaml:"max_consecutive_fails"` // read failures before the stream is declared lost (default: 30)
}

// BufferConfig sizes the in-memory ring buffer
type BufferConfig struct {
	Seconds float64 `yaml:"seconds"` // retained history, capacity = seconds * nominal_rate (default: 20)
}

// LabelConfig controls sample labeling
type LabelConfig struct {
	Default        string   `yaml:"default"`          // label applied outside gesture windows (default: REST)
	Known          []string `yaml:"known"`            // accepted label names for triggers
	GestureWindowS float64  `yaml:"gesture_window_s"` // transient label duration in stream seconds (default: 1.0)
}

// EventConfig controls event window extraction around triggers
type EventConfig struct {
	PreS      float64 `yaml:"pre_s"`      // seconds before the trigger (default: 0.25)
	PostS     float64 `yaml:"post_s"`     // seconds after the trigger (default: 0.85)
	CooldownS float64 `yaml:"cooldown_s"` // minimum wall-clock spacing between accepted triggers (default: 0.6)
}

// RecordingConfig controls the durable session store
type RecordingConfig struct {
	DataDir         string  `yaml:"data_dir"`          // root directory for session directories
	FlushIntervalS  float64 `yaml:"flush_interval_s"`  // wall-clock flush period (default: 1.0)
	MaxBufferedRows int     `yaml:"max_buffered_rows"` // in-memory cap per file while the store is failing (default: 65536)
	PerChannelFiles bool    `yaml:"per_channel_files"` // also write continuous_<ch>.csv per channel
	CompressOnSeal  bool    `yaml:"compress_on_seal"`  // zstd-compress CSVs when the session is sealed
}

// FilterConfig holds the offline filtering parameters
type FilterConfig struct {
	LowHz   float64 `yaml:"low_hz"`   // band-pass low cutoff (default: 1.0)
	HighHz  float64 `yaml:"high_hz"`  // band-pass high cutoff (default: 50.0)
	Order   int     `yaml:"order"`    // Butterworth order (default: 5)
	NotchHz float64 `yaml:"notch_hz"` // mains notch center (default: 60.0)
	NotchQ  float64 `yaml:"notch_q"`  // notch quality factor (default: 30.0)
}

// FeatureConfig holds the offline feature extraction parameters
type FeatureConfig struct {
	WindowS   float64  `yaml:"window_s"`   // sliding window duration (default: 1.0)
	Overlap   float64  `yaml:"overlap"`    // overlap fraction 0..1 (default: 0.5)
	Bands     []string `yaml:"bands"`      // frequency bands to extract (default: mu, beta)
	StdSource string   `yaml:"std_source"` // normalization deviation source: reference or target (default: reference)
}

// MonitorConfig controls the live WebSocket signal monitor
type MonitorConfig struct {
	Enabled bool    `yaml:"enabled"`
	WindowS float64 `yaml:"window_s"` // visible plot window in seconds (default: 5.0)
}

// PrometheusConfig contains Prometheus metrics settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	IntervalS   int           `yaml:"interval_s"` // metric snapshot period (default: 30)
	TLS         MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains TLS settings for MQTT connections
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	Insecure   bool   `yaml:"insecure"` // skip certificate verification
}

// LoadConfig reads and validates the configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults fills in unset fields with their documented defaults
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8089
	}
	if c.Stream.ListenAddr == "" {
		c.Stream.ListenAddr = "239.77.0.1:5004"
	}
	if c.Stream.NominalRate == 0 {
		c.Stream.NominalRate = 256.0
	}
	if len(c.Stream.ChannelNames) == 0 {
		// Muse 2 electrode layout
		c.Stream.ChannelNames = []string{"TP9", "AF7", "AF8", "TP10"}
	}
	if c.Stream.PullTimeoutMs == 0 {
		c.Stream.PullTimeoutMs = 1000
	}
	if c.Stream.MaxConsecutiveFails == 0 {
		c.Stream.MaxConsecutiveFails = 30
	}
	if c.Buffer.Seconds == 0 {
		c.Buffer.Seconds = 20.0
	}
	if c.Labels.Default == "" {
		c.Labels.Default = "REST"
	}
	if len(c.Labels.Known) == 0 {
		c.Labels.Known = []string{"REST", "UP", "LEFT", "RIGHT"}
	}
	if c.Labels.GestureWindowS == 0 {
		c.Labels.GestureWindowS = 1.0
	}
	if c.Events.PreS == 0 {
		c.Events.PreS = 0.25
	}
	if c.Events.PostS == 0 {
		c.Events.PostS = 0.85
	}
	if c.Events.CooldownS == 0 {
		c.Events.CooldownS = 0.6
	}
	if c.Recording.DataDir == "" {
		c.Recording.DataDir = "./eeg_datasets"
	}
	if c.Recording.FlushIntervalS == 0 {
		c.Recording.FlushIntervalS = 1.0
	}
	if c.Recording.MaxBufferedRows == 0 {
		c.Recording.MaxBufferedRows = 65536
	}
	if c.Filter.LowHz == 0 {
		c.Filter.LowHz = 1.0
	}
	if c.Filter.HighHz == 0 {
		c.Filter.HighHz = 50.0
	}
	if c.Filter.Order == 0 {
		c.Filter.Order = 5
	}
	if c.Filter.NotchHz == 0 {
		c.Filter.NotchHz = 60.0
	}
	if c.Filter.NotchQ == 0 {
		c.Filter.NotchQ = 30.0
	}
	if c.Features.WindowS == 0 {
		c.Features.WindowS = 1.0
	}
	if c.Features.Overlap == 0 {
		c.Features.Overlap = 0.5
	}
	if len(c.Features.Bands) == 0 {
		c.Features.Bands = []string{"mu", "beta"}
	}
	if c.Features.StdSource == "" {
		c.Features.StdSource = "reference"
	}
	if c.Monitor.WindowS == 0 {
		c.Monitor.WindowS = 5.0
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "eeg"
	}
	if c.MQTT.IntervalS == 0 {
		c.MQTT.IntervalS = 30
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Stream.NominalRate <= 0 {
		return fmt.Errorf("stream.nominal_rate must be positive, got %.3f", c.Stream.NominalRate)
	}
	if len(c.Stream.ChannelNames) == 0 {
		return fmt.Errorf("stream.channel_names must list at least one channel")
	}
	seen := make(map[string]bool, len(c.Stream.ChannelNames))
	for _, name := range c.Stream.ChannelNames {
		if name == "" {
			return fmt.Errorf("stream.channel_names contains an empty name")
		}
		if seen[name] {
			return fmt.Errorf("stream.channel_names contains duplicate %q", name)
		}
		seen[name] = true
	}
	if c.Buffer.Seconds <= 0 {
		return fmt.Errorf("buffer.seconds must be positive, got %.3f", c.Buffer.Seconds)
	}
	if c.Events.PreS < 0 || c.Events.PostS < 0 {
		return fmt.Errorf("events.pre_s and events.post_s must be non-negative")
	}
	if c.Events.PreS+c.Events.PostS > c.Buffer.Seconds {
		return fmt.Errorf("event window (%.2fs) exceeds ring buffer history (%.2fs)",
			c.Events.PreS+c.Events.PostS, c.Buffer.Seconds)
	}
	if c.Labels.GestureWindowS <= 0 {
		return fmt.Errorf("labels.gesture_window_s must be positive, got %.3f", c.Labels.GestureWindowS)
	}
	if !containsLabel(c.Labels.Known, c.Labels.Default) {
		return fmt.Errorf("labels.default %q is not listed in labels.known", c.Labels.Default)
	}
	if c.Features.Overlap < 0 || c.Features.Overlap >= 1 {
		return fmt.Errorf("features.overlap must be in [0, 1), got %.3f", c.Features.Overlap)
	}
	if c.Features.StdSource != "reference" && c.Features.StdSource != "target" {
		return fmt.Errorf("features.std_source must be \"reference\" or \"target\", got %q", c.Features.StdSource)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// DefaultConfig returns a configuration with all defaults applied,
// used when no config file is given.
func DefaultConfig() *Config {
	var config Config
	config.setDefaults()
	return &config
}

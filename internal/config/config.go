// Package config loads the fusion node's configuration from YAML,
// grounded on the teacher's internal/config/config.go +
// validator.go (Load reads+parses+validates, Validate fills defaults
// and returns an error for anything unfixable).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of spec.md §6 plus the
// ambient knobs a runnable node needs (ShutdownTimeoutS, QueueCapacity,
// Audit) that the distilled spec left implicit.
type Config struct {
	IMUTopic   string `yaml:"imu_topic"`
	ImageTopic string `yaml:"image_topic"`

	LoopClosure bool   `yaml:"loop_closure"`
	VocFile     string `yaml:"voc_file"`
	PatternFile string `yaml:"pattern_file"`

	CamNames  []string `yaml:"cam_names"`
	ImageCol  int      `yaml:"image_col"`
	ImageRow  int      `yaml:"image_row"`
	NumOfCam  int      `yaml:"num_of_cam"`

	WindowSize     int `yaml:"window_size"`
	MinLoopNum     int `yaml:"min_loop_num"`
	MaxKeyframeNum int `yaml:"max_keyframe_num"`

	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"`
	QueueCapacity    int          `yaml:"queue_capacity"`
	Audit            AuditConfig  `yaml:"audit"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	Health           HealthConfig `yaml:"health"`
}

// AuditConfig controls the optional persistent prediction sink of
// spec.md §6/§9.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	CommitEvery int    `yaml:"commit_every"`
	QueueCap    int    `yaml:"queue_cap"`
}

// MQTTConfig is the output transport's broker settings, mirroring the
// teacher's MQTTConfig shape.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HealthConfig controls the observability HTTP endpoint.
type HealthConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

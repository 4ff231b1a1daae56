package config

import "fmt"

// defaults mirror the teacher's validator pattern: fill in sane values
// for anything unset rather than force every field into the file.
const (
	defaultQueueCapacity    = 2000 // spec.md §4.1: "sized for burst safety ~2000"
	defaultShutdownTimeoutS = 5
	defaultWindowSize       = 10
	defaultMinLoopNum       = 25
	defaultMaxKeyframeNum   = 2000
	defaultCommitEvery      = 200
	defaultAuditQueueCap    = 256
	defaultHealthAddr       = ":9091"
)

// Validate checks required fields and fills in defaults, matching the
// teacher's Validate (internal/config/validator.go): return an error
// only for what truly cannot be defaulted.
func Validate(cfg *Config) error {
	if cfg.IMUTopic == "" {
		return fmt.Errorf("imu_topic is required")
	}
	if cfg.ImageTopic == "" {
		return fmt.Errorf("image_topic is required")
	}
	if cfg.NumOfCam <= 0 {
		cfg.NumOfCam = 1
	}

	if cfg.LoopClosure {
		if cfg.VocFile == "" {
			return fmt.Errorf("voc_file is required when loop_closure is enabled")
		}
		if cfg.MinLoopNum <= 0 {
			cfg.MinLoopNum = defaultMinLoopNum
		}
		if cfg.MaxKeyframeNum <= 0 {
			cfg.MaxKeyframeNum = defaultMaxKeyframeNum
		}
	}

	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = defaultShutdownTimeoutS
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			return fmt.Errorf("audit.path is required when audit.enabled is true")
		}
		if cfg.Audit.CommitEvery <= 0 {
			cfg.Audit.CommitEvery = defaultCommitEvery
		}
		if cfg.Audit.QueueCap <= 0 {
			cfg.Audit.QueueCap = defaultAuditQueueCap
		}
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "fusion-node"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "fusion"
	}

	if cfg.Health.ListenAddr == "" {
		cfg.Health.ListenAddr = defaultHealthAddr
	}

	return nil
}

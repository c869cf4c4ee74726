package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/timer"
)

// Validate checks configuration correctness without mutating it.
func Validate(cfg *Config) error {
	d := &cfg.Device
	if d.HZ == 0 || d.HZ > 1000 {
		return fmt.Errorf("device: hz %d out of range 1..1000", d.HZ)
	}
	if d.IdleTimeoutMs <= 0 {
		return fmt.Errorf("device: idle_timeout_ms must be positive")
	}
	if ticks := d.IdleTimeoutMs * int(d.HZ) / 1000; ticks > int(timer.MaxInterval) {
		return fmt.Errorf("device: idle_timeout_ms %d exceeds the timer range", d.IdleTimeoutMs)
	}
	switch strings.ToLower(d.ReadMode) {
	case ReadModeLegacy, ReadModeLowVoltage:
	default:
		return fmt.Errorf("device: unknown read_mode %q", d.ReadMode)
	}
	if d.Buffer != 1 && d.Buffer != 2 {
		return fmt.Errorf("device: buffer must be 1 or 2")
	}
	if d.WaitTimeoutMs < 0 || d.BusyPolls < 0 {
		return fmt.Errorf("device: wait_timeout_ms and busy_polls must not be negative")
	}
	if _, ok := flash.PartByName(strings.ToUpper(d.Part)); !ok {
		return fmt.Errorf("device: unknown part %q", d.Part)
	}

	if cfg.Link.Baud <= 0 {
		return fmt.Errorf("link: baud must be positive")
	}
	if cfg.Link.TimeoutMs < 0 {
		return fmt.Errorf("link: timeout_ms must not be negative")
	}

	if cfg.Monitor.URL != "" {
		u, err := url.Parse(cfg.Monitor.URL)
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		if u.Scheme != "mqtt" {
			return fmt.Errorf("monitor: unsupported scheme %q", u.Scheme)
		}
	}
	return nil
}

// Normalize canonicalizes names. It must be called after Validate.
func Normalize(cfg *Config) {
	cfg.Device.ReadMode = strings.ToLower(cfg.Device.ReadMode)
	cfg.Device.Part = strings.ToUpper(cfg.Device.Part)
}

// Package config loads the YAML configuration shared by the commands.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/hal"
	"github.com/robotalks/disconnect/pkg/tick"
)

// Config is the top level configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Link    LinkConfig    `yaml:"link"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// DeviceConfig describes the board.
type DeviceConfig struct {
	// Part names the simulated flash part.
	Part          string `yaml:"part"`
	HZ            uint16 `yaml:"hz"`
	IdleTimeoutMs int    `yaml:"idle_timeout_ms"`
	// ReadMode is legacy or low-voltage.
	ReadMode   string `yaml:"read_mode"`
	Buffer     int    `yaml:"buffer"`
	ProgramPad bool   `yaml:"program_pad"`
	// WaitTimeoutMs bounds busy waits, 0 waits forever.
	WaitTimeoutMs int `yaml:"wait_timeout_ms"`
	// BusyPolls is the simulated programming time in status polls.
	BusyPolls int `yaml:"busy_polls"`
	// Image is a flash dump loaded at start and saved on exit.
	Image string `yaml:"image"`
}

// LinkConfig describes the host side connection.
type LinkConfig struct {
	// URL is a device path, serial://, tcp:// or ws:// URL.
	URL       string `yaml:"url"`
	Baud      int    `yaml:"baud"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// MonitorConfig enables event publishing.
type MonitorConfig struct {
	// URL is mqtt://host:port/topic-prefix, empty disables publishing.
	URL      string `yaml:"url"`
	DeviceID string `yaml:"device_id"`
}

// Read modes.
const (
	ReadModeLegacy     = "legacy"
	ReadModeLowVoltage = "low-voltage"
)

var defaultConfig = Config{
	Device: DeviceConfig{
		Part:          "AT45DB642D",
		HZ:            tick.DefaultHZ,
		IdleTimeoutMs: 500,
		ReadMode:      ReadModeLegacy,
		Buffer:        1,
		BusyPolls:     4,
	},
	Link: LinkConfig{
		URL:       "/dev/ttyUSB0",
		Baud:      57600,
		TimeoutMs: 5000,
	},
}

var configFile string

func init() {
	if val := os.Getenv("DISCONNECT_LINK"); val != "" {
		defaultConfig.Link.URL = val
	}
	if val := os.Getenv("DISCONNECT_MONITOR_URL"); val != "" {
		defaultConfig.Monitor.URL = val
	}
	if val := os.Getenv("DISCONNECT_CONFIG"); val != "" {
		configFile = val
	}
}

// SetupFlags sets command line flags. Flags given on the command line
// override the configuration file.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Configuration file (YAML).")
	flag.StringVar(&defaultConfig.Link.URL, "link", defaultConfig.Link.URL, "Device link: path, serial://, tcp:// or ws:// URL.")
	flag.IntVar(&defaultConfig.Link.Baud, "baud", defaultConfig.Link.Baud, "Serial baud rate.")
	flag.StringVar(&defaultConfig.Monitor.URL, "monitor", defaultConfig.Monitor.URL, "MQTT URL for events, e.g. mqtt://localhost:1883/disconnect/.")
	flag.StringVar(&defaultConfig.Device.Part, "part", defaultConfig.Device.Part, "Simulated flash part.")
	flag.StringVar(&defaultConfig.Device.Image, "image", defaultConfig.Device.Image, "Flash dump file of the simulated chip.")
}

var flagOverrides = map[string]func(dst, src *Config){
	"link":    func(dst, src *Config) { dst.Link.URL = src.Link.URL },
	"baud":    func(dst, src *Config) { dst.Link.Baud = src.Link.Baud },
	"monitor": func(dst, src *Config) { dst.Monitor.URL = src.Monitor.URL },
	"part":    func(dst, src *Config) { dst.Device.Part = src.Device.Part },
	"image":   func(dst, src *Config) { dst.Device.Image = src.Device.Image },
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Parse decodes YAML over a copy of the defaults.
func Parse(data []byte) (*Config, error) {
	conf := NewConfig()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return conf, nil
}

// Load reads and decodes a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// FromFlags builds the effective configuration: defaults, then the file
// given by -config, then the flags set explicitly. The result is
// validated and normalized.
func FromFlags() (*Config, error) {
	conf := NewConfig()
	if configFile != "" {
		loaded, err := Load(configFile)
		if err != nil {
			return nil, err
		}
		conf = loaded
		flag.Visit(func(f *flag.Flag) {
			if fn := flagOverrides[f.Name]; fn != nil {
				fn(conf, &defaultConfig)
			}
		})
	}
	if err := Validate(conf); err != nil {
		return nil, err
	}
	Normalize(conf)
	return conf, nil
}

// MustFromFlags is FromFlags failing the process on error.
func MustFromFlags() *Config {
	conf, err := FromFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return conf
}

// FlashPart returns the configured simulated part.
func (c *Config) FlashPart() flash.Part {
	part, _ := flash.PartByName(c.Device.Part)
	return part
}

// Waiter returns the busy waiter for the configured bound.
func (c *Config) Waiter() hal.Waiter {
	return hal.Spin{Timeout: time.Duration(c.Device.WaitTimeoutMs) * time.Millisecond}
}

// FlashOptions returns the driver options.
func (c *Config) FlashOptions() flash.Options {
	opts := flash.Options{
		Buffer:     c.Device.Buffer,
		ProgramPad: c.Device.ProgramPad,
		Wait:       c.Waiter(),
	}
	if c.Device.ReadMode == ReadModeLowVoltage {
		opts.ReadMode = flash.ReadLowVoltage
	}
	return opts
}

// IdleTimeout returns the partial line timeout in ticks.
func (c *Config) IdleTimeout() tick.Tick {
	return tick.Tick((c.Device.IdleTimeoutMs*int(c.Device.HZ) + 999) / 1000)
}

// LinkTimeout returns the host read timeout.
func (c *Config) LinkTimeout() time.Duration {
	return time.Duration(c.Link.TimeoutMs) * time.Millisecond
}

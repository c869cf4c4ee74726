package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/disconnect/pkg/flash"
	"github.com/robotalks/disconnect/pkg/hal"
)

const sampleYAML = `
device:
  part: at45db161
  hz: 100
  idle_timeout_ms: 250
  read_mode: Low-Voltage
  buffer: 2
  program_pad: true
  wait_timeout_ms: 2000
link:
  url: tcp://localhost:5760
monitor:
  url: mqtt://localhost:1883/disconnect/
`

func TestParse(t *testing.T) {
	conf, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, Validate(conf))
	Normalize(conf)
	require.Equal(t, "AT45DB161", conf.Device.Part)
	require.Equal(t, ReadModeLowVoltage, conf.Device.ReadMode)
	require.Equal(t, 57600, conf.Link.Baud, "unset keys keep defaults")
	require.EqualValues(t, 25, conf.IdleTimeout())
	require.Equal(t, 528, conf.FlashPart().PageSize)

	opts := conf.FlashOptions()
	require.Equal(t, flash.ReadLowVoltage, opts.ReadMode)
	require.Equal(t, 2, opts.Buffer)
	require.True(t, opts.ProgramPad)
	require.Equal(t, hal.Spin{Timeout: 2 * time.Second}, opts.Wait)
}

func TestDefaults(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, Validate(conf))
	require.EqualValues(t, 62, conf.IdleTimeout())
	require.Equal(t, hal.Spin{}, conf.Waiter())
	require.Equal(t, flash.ReadLegacy, conf.FlashOptions().ReadMode)
	require.Equal(t, 5*time.Second, conf.LinkTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"hz", func(c *Config) { c.Device.HZ = 0 }},
		{"idle", func(c *Config) { c.Device.IdleTimeoutMs = 0 }},
		{"idle range", func(c *Config) { c.Device.IdleTimeoutMs = 1000000 }},
		{"read mode", func(c *Config) { c.Device.ReadMode = "fast" }},
		{"buffer", func(c *Config) { c.Device.Buffer = 3 }},
		{"wait", func(c *Config) { c.Device.WaitTimeoutMs = -1 }},
		{"part", func(c *Config) { c.Device.Part = "W25Q64" }},
		{"baud", func(c *Config) { c.Link.Baud = 0 }},
		{"monitor", func(c *Config) { c.Monitor.URL = "http://localhost/" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf := NewConfig()
			test.mutate(conf)
			before := *conf
			require.Error(t, Validate(conf))
			require.Equal(t, before, *conf, "Validate must not mutate")
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disconnect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))
	conf, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tcp://localhost:5760", conf.Link.URL)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	_, err = Parse([]byte("device: [1, 2"))
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/schc/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
schc:
  rules:
    path: /etc/schc/rules.yaml
  capture:
    source: afpacket
    interface: eth0
    ports: [5683, 5684]
    direction: up
  metrics:
    listen: ":9200"
  log:
    level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/schc/rules.yaml", cfg.Rules.Path)
	assert.Equal(t, "afpacket", cfg.Capture.Source)
	assert.Equal(t, "eth0", cfg.Capture.Interface)
	assert.Equal(t, []int{5683, 5684}, cfg.Capture.Ports)
	assert.Equal(t, "debug", cfg.Log.Level)

	// defaults fill the gaps
	assert.Equal(t, ":9200", cfg.Metrics.Listen)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 65535, cfg.Capture.SnapLen)
	assert.Equal(t, "ipv6-udp-coap", cfg.Capture.Stack)
}

func TestLoadDefaultsFileSource(t *testing.T) {
	path := writeConfig(t, `
schc:
  rules:
    path: rules.yaml
  capture:
    file: capture.pcap
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Capture.Source)
	assert.Equal(t, "up", cfg.Capture.Direction)
}

func TestLoadMissingRulesPath(t *testing.T) {
	path := writeConfig(t, `
schc:
  capture:
    file: capture.pcap
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestLoadFileSourceWithoutPath(t *testing.T) {
	path := writeConfig(t, `
schc:
  rules:
    path: rules.yaml
  capture:
    source: file
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	path := writeConfig(t, `
schc:
  rules:
    path: rules.yaml
  capture:
    source: ring
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := writeConfig(t, `
schc:
  rules:
    path: rules.yaml
  capture:
    file: capture.pcap
    ports: [70000]
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

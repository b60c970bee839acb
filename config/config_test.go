package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverrides_DockerHost(t *testing.T) {
	t.Setenv("DOCKER_HOST", "tcp://example:2375")
	cfg := applyEnvOverrides(Config{Host: ""})
	assert.Equal(t, "tcp://example:2375", cfg.Host)
}

func TestApplyEnvOverrides_RyukPrivileged(t *testing.T) {
	t.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	cfg := applyEnvOverrides(Config{RyukPrivileged: false})
	assert.True(t, cfg.RyukPrivileged)
}

func TestApplyEnvOverrides_LeavesDefaultsWhenUnset(t *testing.T) {
	cfg := applyEnvOverrides(Config{RyukImage: "testcontainers/ryuk:0.5.1"})
	assert.Equal(t, "testcontainers/ryuk:0.5.1", cfg.RyukImage)
	assert.False(t, cfg.RyukDisabled)
}

func TestLoad_NoPropertiesFileFallsBackToEnvAndDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	cfg := Load()
	assert.True(t, cfg.RyukDisabled)
	assert.Equal(t, "testcontainers/ryuk:0.5.1", cfg.RyukImage)
}

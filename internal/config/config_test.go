package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for key := range envKeyMap {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverFirestore, cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Codes.Length)
	assert.Equal(t, 5*time.Minute, cfg.Worker.Tick)
	assert.Equal(t, "http://localhost:8080", cfg.App.PublicURL)
	assert.Empty(t, cfg.Payment.Token)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "store:\n  driver: memory\ncodes:\n  length: 16\napp:\n  public_url: https://academy.example.com/\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("CODE_LENGTH", "8")
	t.Setenv("PAGBANK_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Codes.Length)
	assert.Equal(t, "secret", cfg.Payment.Token)
	assert.Equal(t, "https://academy.example.com", cfg.App.PublicURL)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without url", env: map[string]string{"STORE_DRIVER": "postgres"}},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "zero code length", env: map[string]string{"CODE_LENGTH": "0"}},
		{name: "bad port", env: map[string]string{"PORT": "70000"}},
		{name: "zero worker tick", env: map[string]string{"WORKER_TICK": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

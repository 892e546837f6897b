package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWITCH_CLIENT_ID", "test-client-id")
	t.Setenv("STORAGE_BACKEND", "memory")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-client-id", cfg.TwitchClientID)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://id.twitch.tv/oauth2", cfg.TwitchAuthURL)
	assert.Equal(t, "https://api.twitch.tv/helix", cfg.TwitchAPIURL)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, 800, cfg.APIPointsPerMinute)
	assert.Equal(t, 30*time.Minute, cfg.DiscoveryInterval)
	assert.Equal(t, time.Minute, cfg.DiscoveryStartupDelay)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Zero(t, cfg.CompletedRecordRetention)
	assert.Equal(t, time.Hour, cfg.LeaderLeaseTTL)
}

func TestLoad_NegativeRetention(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMPLETED_RECORD_RETENTION", "-1h")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "COMPLETED_RECORD_RETENTION must not be negative", err.Error())
}

func TestLoad_ClientIDFallsBackToBuildDefault(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "")
	prev := DefaultTwitchClientID
	DefaultTwitchClientID = "baked-in"
	t.Cleanup(func() { DefaultTwitchClientID = prev })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "baked-in", cfg.TwitchClientID)
}

func TestLoad_MissingClientID(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "")
	prev := DefaultTwitchClientID
	DefaultTwitchClientID = ""
	t.Cleanup(func() { DefaultTwitchClientID = prev })

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "TWITCH_CLIENT_ID is required", err.Error())
}

func TestLoad_StorageBackends(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"redis without url", map[string]string{"STORAGE_BACKEND": "redis"}, "REDIS_URL is required when STORAGE_BACKEND is redis"},
		{"postgres without url", map[string]string{"STORAGE_BACKEND": "postgres"}, "DATABASE_URL is required when STORAGE_BACKEND is postgres"},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "sqlite"}, `STORAGE_BACKEND must be one of memory, redis, postgres, got "sqlite"`},
		{"redis with url", map[string]string{"STORAGE_BACKEND": "redis", "REDIS_URL": "redis://localhost:6379"}, ""},
		{"postgres with url", map[string]string{"STORAGE_BACKEND": "postgres", "DATABASE_URL": "postgres://localhost/test"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_TokenEncryptionKey(t *testing.T) {
	t.Run("invalid hex", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TOKEN_ENCRYPTION_KEY", "not-hex")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TOKEN_ENCRYPTION_KEY must be valid hex")
	})

	t.Run("wrong length", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TOKEN_ENCRYPTION_KEY", "abcd")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got 2 bytes")
	})

	t.Run("valid", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TOKEN_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

		_, err := Load()
		require.NoError(t, err)
	})
}

func TestLoad_DiscoveryIntervalTooShort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DISCOVERY_INTERVAL", "10s")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "DISCOVERY_INTERVAL must be at least 1m", err.Error())
}

func TestLoad_LeaderLeaseTTL(t *testing.T) {
	t.Run("shorter than discovery interval", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LEADER_LEASE_TTL", "10m")

		_, err := Load()
		require.Error(t, err)
		assert.Equal(t, "LEADER_LEASE_TTL must be longer than DISCOVERY_INTERVAL", err.Error())
	})

	t.Run("zero disables election", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("LEADER_LEASE_TTL", "0s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Zero(t, cfg.LeaderLeaseTTL)
	})
}

func TestScopes(t *testing.T) {
	cfg := Config{TwitchScopes: "user:read:follows, clips:edit  channel:read:vods"}
	assert.Equal(t, []string{"user:read:follows", "clips:edit", "channel:read:vods"}, cfg.Scopes())

	assert.Empty(t, (&Config{}).Scopes())
}

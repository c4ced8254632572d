package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndEnvironment(t *testing.T) {
	t.Setenv("BOT_TOKEN", "from-env")
	path := writeConfig(t, `
bot:
  token: ""
rate_limit:
  enabled: true
  capacity: 3
  refill_amount: 1
access:
  rules:
    - user_id: 42
      decision: deny
`)

	cfg, v, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, "polling", cfg.Bot.Mode)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Dialogue.LockTTL)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, []AccessRuleConfig{{UserID: 42, Decision: "deny"}}, cfg.Access.Rules)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("BOT_TOKEN", "x")

	tests := map[string]string{
		"unknown session backend":          "bot:\n  token: x\nsession:\n  backend: etcd\n",
		"file backend without dir":         "bot:\n  token: x\nsession:\n  backend: file\n",
		"bad access decision":              "bot:\n  token: x\naccess:\n  rules:\n    - user_id: 1\n      decision: maybe\n",
		"enabled limiter without capacity": "bot:\n  token: x\nrate_limit:\n  enabled: true\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

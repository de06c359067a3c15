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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.LeaveGrace)
	assert.Equal(t, 30*time.Second, cfg.Game.BlankGuessTimeout)
	assert.Equal(t, "revote", cfg.Game.TieBreak)
	assert.Equal(t, 8, cfg.Game.Defaults.MaxPlayers)
	assert.Equal(t, "database", cfg.Storage.Backend)
	assert.Equal(t, 100*time.Millisecond, cfg.Storage.RetryInterval)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
game:
  tie_break: lowest_id
  max_vote_rounds: 1
  defaults:
    word_pack: food
    discussion_enabled: true
storage:
  backend: memory
`))
	require.NoError(t, err)

	assert.Equal(t, "lowest_id", cfg.Game.TieBreak)
	assert.Equal(t, 1, cfg.Game.MaxVoteRounds)
	assert.Equal(t, "food", cfg.Game.Defaults.WordPack)
	assert.True(t, cfg.Game.Defaults.DiscussionEnabled)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"未知平票规则", "game:\n  tie_break: random\n"},
		{"重投轮数为0", "game:\n  max_vote_rounds: 0\n"},
		{"未知存储", "storage:\n  backend: redis\n"},
		{"空密钥", "security:\n  jwt:\n    secret: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

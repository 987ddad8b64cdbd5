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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":50051", cfg.Server.GRPC.Address)
	assert.Equal(t, ":8080", cfg.Server.WebSocket.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 20, cfg.Game.StartingEnergy)
	assert.Equal(t, 3, cfg.Game.ActionsPerTurn)
	assert.False(t, cfg.Replay.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Game.MaxEnergy)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc:
    address: "127.0.0.1:9000"
logging:
  level: debug
  format: json
game:
  max_turns: 40
  starting_energy: 30
replay:
  enabled: true
  directory: /tmp/replays
`)
	t.Setenv("SKIRMISH_GAME_STARTING_ENERGY", "50")
	t.Setenv("SKIRMISH_DATABASE_URL", "postgres://localhost/skirmish")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.GRPC.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 40, cfg.Game.MaxTurns)
	assert.Equal(t, 50, cfg.Game.StartingEnergy)
	assert.Equal(t, "postgres://localhost/skirmish", cfg.Database.URL)
	assert.True(t, cfg.Replay.Enabled)
	assert.Equal(t, "/tmp/replays", cfg.Replay.Directory)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: loud
game:
  actions_per_turn: 0
  starting_energy: 500
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "game.actions_per_turn")
	assert.Contains(t, err.Error(), "game.starting_energy")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestMatchConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Game.StartingEnergy = 35
	cfg.Game.MaxTurns = 12
	cfg.Game.ResourceVictoryThreshold = 300

	mc := cfg.MatchConfig()
	assert.Equal(t, 35, mc.Factory.StartingEnergy)
	assert.Equal(t, 12, mc.MaxTurns)
	assert.Equal(t, 300, mc.ResourceVictoryThreshold)
	assert.Equal(t, 1, mc.StartingWorkers)
	assert.Len(t, mc.NodePositions, 9)
}

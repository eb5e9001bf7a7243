package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("CONVO_JWT_SECRET", "s3cret")
	t.Setenv("CONVO_DATABASE_DSN", ":memory:")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 10, cfg.MaxCallParticipants)
	assert.Equal(t, 45*time.Second, cfg.RingTimeout)
	assert.Equal(t, "* * * * *", cfg.SweepCron)
}

func TestParseFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CONVO_RING_TIMEOUT", "30s")
	t.Setenv("CONVO_MAX_CALL_PARTICIPANTS", "4")

	cfg, err := Parse([]string{"-env", "development", "-db", ":memory:", "-max-call-participants", "6"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, 6, cfg.MaxCallParticipants)
}

func TestValidate(t *testing.T) {
	t.Run("sad path - bad values", func(t *testing.T) {
		_, err := Parse([]string{"-env", "development", "-db", ":memory:", "-db-driver", "mysql", "-sweep-cron", "every minute", "-max-call-participants", "1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mysql")
		assert.Contains(t, err.Error(), "sweep cron")
		assert.Contains(t, err.Error(), "at least 2")
	})

	t.Run("sad path - production requires secret", func(t *testing.T) {
		t.Setenv("CONVO_JWT_SECRET", "")
		_, err := Parse([]string{"-db", ":memory:"})
		assert.ErrorContains(t, err, "jwt secret")
	})
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTenantResolution(t *testing.T) {
	for _, valid := range []string{"header", "subdomain", "auth-realm"} {
		got, err := ParseTenantResolution(valid)
		require.NoError(t, err)
		assert.Equal(t, TenantResolution(valid), got)
	}

	_, err := ParseTenantResolution("cookie")
	require.Error(t, err)
}

func TestParseAuditRetention(t *testing.T) {
	t.Run("forever", func(t *testing.T) {
		r, err := ParseAuditRetention("forever")
		require.NoError(t, err)
		assert.True(t, r.Forever())
	})

	t.Run("bounded days", func(t *testing.T) {
		r, err := ParseAuditRetention("days:90")
		require.NoError(t, err)
		assert.False(t, r.Forever())
		assert.Equal(t, 90, r.Days)
	})

	t.Run("rejects junk", func(t *testing.T) {
		for _, bad := range []string{"", "days:", "days:0", "days:-1", "days:soon", "weekly"} {
			_, err := ParseAuditRetention(bad)
			assert.Error(t, err, "input %q", bad)
		}
	})
}

func TestParseRecomputeCadence(t *testing.T) {
	_, err := ParseRecomputeCadence("hourly")
	require.Error(t, err)

	got, err := ParseRecomputeCadence("nightly-full")
	require.NoError(t, err)
	assert.Equal(t, RecomputeNightlyFull, got)
}

func TestFromEnvRejectsUnknownEnums(t *testing.T) {
	t.Setenv("WSS_TENANT_RESOLUTION", "guesswork")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, TenantFromAuthRealm, cfg.TenantResolution)
	assert.True(t, cfg.AuditRetention.Forever())
	assert.Equal(t, RecomputeOnTrigger, cfg.RecomputeCadence)
	assert.Equal(t, 4, cfg.ReactorConcurrency)
}

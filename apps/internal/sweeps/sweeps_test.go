package sweeps

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/require"

	jobsservice "github.com/zenGate-Global/schoolhub/domains/jobs/be/service"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{"ENV_KEY": "dev"}}))

	require.Equal(t, 10*time.Minute, cfg.JobTimeout)
	require.Equal(t, 48*time.Hour, cfg.DedupTTL)
	require.Equal(t, "notifications:outbox", cfg.OutboxStream)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	rc := cfg.RunnerConfig(loc)
	require.Equal(t, "0 9 * * *", rc.Schedules[jobsservice.ProcedureSubscriptionExpiry])
	require.Equal(t, "0 8 * * *", rc.Schedules[jobsservice.ProcedurePaymentReminders])
	require.Equal(t, "0 7 * * 1", rc.Schedules[jobsservice.ProcedureAttendanceDigest])
	require.Equal(t, "*/15 * * * *", rc.Schedules[jobsservice.ProcedureAssignCriticalIssues])
}

func TestConfigRequiresEnvKey(t *testing.T) {
	var cfg Config
	require.Error(t, env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}))
}

func TestConfigRejectsUnknownTimezone(t *testing.T) {
	_, err := Config{Timezone: "Mars/Olympus"}.Location()
	require.Error(t, err)
}

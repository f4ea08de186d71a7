package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payroll")
	t.Setenv("STATUTORY_WORK_DAYS_DEFAULT", "22")
	t.Setenv("DEFAULT_PREFECTURE", "大阪府")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/payroll", cfg.DatabaseURL)
	assert.Equal(t, 22, cfg.StatutoryWorkDaysDefault)
	assert.Equal(t, "大阪府", cfg.DefaultPrefecture)
	assert.Equal(t, 160, cfg.MonthlyPrescribedHoursDefault)
}

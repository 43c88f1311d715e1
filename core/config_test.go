package core

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_defaults(t *testing.T) {
	os.Unsetenv("ENV")

	conf, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "DEV", conf.Env)
	assert.True(t, conf.Debug)
	assert.False(t, conf.TestMode)
	assert.Equal(t, "Shule", conf.AppName)
	assert.NotEmpty(t, conf.SecretKey)
	assert.Equal(t, 7*24*time.Hour, conf.Server.JWTExpirationDelta)
	assert.Equal(t, 30*24*time.Hour, conf.Server.JWTRefreshExpirationDelta)
	assert.Equal(t, 3*24*time.Hour, conf.PasswordResetTimeoutDelta)
	assert.Equal(t, ":8000", conf.Server.Address)
	assert.Equal(t, "localhost:5432", conf.Database.Address())
}

func TestNewConfig_envOverrides(t *testing.T) {
	os.Setenv("ENV", "TEST")
	os.Setenv("TEST_SECRETKEY", "from-env")
	os.Setenv("TEST_SERVER_ADDRESS", ":9000")
	os.Setenv("TEST_DATABASE_NAME", "shule_test")
	defer func() {
		os.Unsetenv("ENV")
		os.Unsetenv("TEST_SECRETKEY")
		os.Unsetenv("TEST_SERVER_ADDRESS")
		os.Unsetenv("TEST_DATABASE_NAME")
	}()

	conf, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "TEST", conf.Env)
	assert.True(t, conf.TestMode)
	assert.Equal(t, "from-env", conf.SecretKey)
	assert.Equal(t, ":9000", conf.Server.Address)
	assert.Equal(t, "shule_test", conf.Database.Name)
}

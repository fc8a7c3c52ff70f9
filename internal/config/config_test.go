package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
	t.Setenv("CORS_ORIGINS", "")

	c := Load()
	assert.Equal(t, 30*time.Minute, c.AccessTTL)
	assert.Equal(t, 24*time.Hour, c.RefreshTTL)
	assert.Equal(t, 168*time.Hour, c.RefreshTTLRemember)
	assert.Equal(t, 5, c.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, c.LockoutDuration)
	assert.Equal(t, 10*time.Minute, c.OTPTTL)
	assert.Equal(t, 10, c.SessionLimit)
	assert.Equal(t, 10, c.BackupCodeCount)
	assert.Equal(t, []string{c.FrontendURL}, c.CORSOrigins)
	assert.False(t, c.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "a")
	t.Setenv("REFRESH_TOKEN_SECRET", "b")
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("ACCESS_TTL", "not-a-duration")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	c := Load()
	assert.True(t, c.Production())
	assert.Equal(t, 3, c.LockoutThreshold)
	assert.Equal(t, 30*time.Minute, c.AccessTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
}

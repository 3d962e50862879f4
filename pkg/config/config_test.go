package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 100, cfg.Scheduler.MaxDepth)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Timeout)
	assert.Equal(t, 200, cfg.Scheduler.MaxClasses)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	v.Set("SCHEDULER_TIMEOUT", "not-a-duration")
	v.Set("RESULT_CACHE_TTL", "5m")
	v.Set("ENABLE_RUN_HISTORY", true)

	cfg := fromViper(v)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Timeout, "invalid durations fall back")
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.History.Enabled)
}

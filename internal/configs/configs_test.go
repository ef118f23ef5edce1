package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"S3_BUCKET_NAME":       "chat",
		"S3_ENDPOINT":          "http://localhost:9000/",
		"S3_ACCESS_KEY_ID":     "key",
		"S3_SECRET_ACCESS_KEY": "secret",
	}
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	cfg, err := load(env(baseEnv()))
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 0, cfg.PowDifficulty)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, StorePostgres, cfg.MessageStore)
	assert.Contains(t, cfg.DatabaseDSN, "dmchat")
	assert.Equal(t, "http://localhost:9000/chat", cfg.S3PublicBaseURL)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_ParsesValues(t *testing.T) {
	values := baseEnv()
	values["PORT"] = "8081"
	values["ALLOWED_ORIGINS"] = " http://localhost:5173 , https://chat.example.com,,"
	values["S3_PUBLIC_BASE_URL"] = "https://cdn.example.com/"
	values["MESSAGE_STORE"] = "Memory"
	values["LOG_LEVEL"] = " WARN "

	cfg, err := load(env(values))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173", "https://chat.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://cdn.example.com", cfg.S3PublicBaseURL)
	assert.Equal(t, StoreMemory, cfg.MessageStore)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"bad port", func(m map[string]string) { m["PORT"] = "abc" }},
		{"bad log level", func(m map[string]string) { m["LOG_LEVEL"] = "loud" }},
		{"privileged port", func(m map[string]string) { m["PORT"] = "80" }},
		{"bad difficulty", func(m map[string]string) { m["POW_DIFFICULTY"] = "12" }},
		{"missing bucket", func(m map[string]string) { delete(m, "S3_BUCKET_NAME") }},
		{"unknown store", func(m map[string]string) { m["MESSAGE_STORE"] = "mongo" }},
		{"production without secret", func(m map[string]string) {
			m["ENVIRONMENT"] = "production"
			m["DATABASE_URL"] = "postgres://x"
		}},
		{"production without dsn", func(m map[string]string) {
			m["ENVIRONMENT"] = "production"
			m["JWT_SECRET"] = "s"
		}},
		{"production memory store", func(m map[string]string) {
			m["ENVIRONMENT"] = "production"
			m["JWT_SECRET"] = "s"
			m["MESSAGE_STORE"] = "memory"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := baseEnv()
			tt.mutate(values)
			_, err := load(env(values))
			assert.Error(t, err)
		})
	}
}

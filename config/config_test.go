package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dokbox_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "inbox.meinedokbox.de", cfg.InboundDomain)
	assert.Equal(t, cfg.InboundDomain, cfg.SMTPDomain)
	assert.Equal(t, 15*time.Minute, cfg.UploadConfirmationTTL)
	assert.Equal(t, 10*time.Second, cfg.DuplicateCheckTimeout)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/dokbox_test")
	t.Setenv("INBOUND_DOMAIN", "  Mail.Example.COM ")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("MAX_BATCH_FILES", "5")
	t.Setenv("SECURE_COOKIES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com", cfg.InboundDomain)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5, cfg.MaxBatchFiles)
	assert.True(t, cfg.SecureCookies)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("missing database", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("production without signing key", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/dokbox_test")
		t.Setenv("ENV", "production")
		t.Setenv("MAILGUN_SIGNING_KEY", "")
		_, err := Load()
		assert.ErrorContains(t, err, "MAILGUN_SIGNING_KEY")

		t.Setenv("MAILGUN_SIGNING_KEY", "key-3ax6xnjp29jd6fds4gc373sgvjxteol0")
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.IsDevelopment())
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/dokbox_test")
		t.Setenv("UPLOAD_CONFIRMATION_TTL", "soon")
		_, err := Load()
		assert.ErrorContains(t, err, "UPLOAD_CONFIRMATION_TTL")
	})

	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/dokbox_test")
		t.Setenv("MAX_UPLOAD_SIZE_MB", "lots")
		_, err := Load()
		assert.ErrorContains(t, err, "MAX_UPLOAD_SIZE_MB")
	})

	t.Run("non-positive batch size", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/dokbox_test")
		t.Setenv("MAX_BATCH_FILES", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "MAX_BATCH_FILES")
	})
}

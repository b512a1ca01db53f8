package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TX_MAX_RETRIES", "")
	t.Setenv("LOCK_TIMEOUT", "")
	t.Setenv("SERVER_PORT", "")

	cfg, err := Load("testdata/missing.env")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.TxMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load("testdata/missing.env")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	t.Setenv("LOCK_TIMEOUT", "soon")
	_, err := Load("testdata/missing.env")
	assert.ErrorContains(t, err, "LOCK_TIMEOUT")

	t.Setenv("LOCK_TIMEOUT", "")
	t.Setenv("TX_MAX_RETRIES", "0")
	_, err = Load("testdata/missing.env")
	assert.ErrorContains(t, err, "TX_MAX_RETRIES")

	t.Setenv("TX_MAX_RETRIES", "")
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err = Load("testdata/missing.env")
	assert.ErrorContains(t, err, "STORE_BACKEND")
}

func TestLogError_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", "json", &buf)

	LogError(logger, "app", "PostInvoice", "posting", map[string]int{"invoice_id": 7}, errors.New("insufficient stock"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "app", line["module"])
	assert.Equal(t, "PostInvoice", line["funcName"])
	assert.Equal(t, "insufficient stock", line["msg"])
	assert.Equal(t, "error", line["level"])
	assert.NotNil(t, line["data"])
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := NewLogger("chatty", "text", nil)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

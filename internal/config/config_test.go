package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", DriverMemory)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, "chat.events", cfg.AMQPExchange)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", DriverPostgres)
	t.Setenv("WRITE_TIMEOUT", "2s")
	t.Setenv("WRITE_RATE_BURST", "3")
	t.Setenv("FIREBASE_CREDENTIALS_JSON", "e30=")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 3, cfg.WriteRateBurst)
	assert.Equal(t, []byte("{}"), cfg.FirebaseCredentialsJSON)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", DriverFirestore)
	t.Setenv("FIREBASE_PROJECT_ID", "")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", DriverMemory)
	t.Setenv("WRITE_TIMEOUT", "soon")
	_, err = Load()
	assert.Error(t, err)
}

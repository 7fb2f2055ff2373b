package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GiftList/internal/permission"
)

const sample = `
[server]
port = 9090

[jwt]
secret = "access"

[invite]
secret = "invite"
ttl = "48h"

[limits]
group_child_max_items = 25
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 48*time.Hour, cfg.Invite.TTL)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 25, cfg.Limits.GroupChildMaxItems)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("GIFTLIST_SERVER_PORT", "7070")
	t.Setenv("GIFTLIST_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadConfigFromEnvOnly(t *testing.T) {
	t.Setenv("GIFTLIST_JWT_SECRET", "a")
	t.Setenv("GIFTLIST_INVITE_SECRET", "b")
	t.Setenv("GIFTLIST_DATABASE_DRIVER", "sqlite")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "[server]\nport = 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
	assert.Contains(t, err.Error(), "invite.secret")

	_, err = LoadConfig(writeConfig(t, "[jwt]\nsecret = \"same\"\n[invite]\nsecret = \"same\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestCapsFor(t *testing.T) {
	var limits LimitsConfig
	items, secret := limits.CapsFor(permission.GiftGroupChild)
	assert.Equal(t, 20, items)
	assert.Equal(t, 10, secret)

	limits.GroupChildMaxItems = 5
	limits.BasicListMaxItems = 7
	items, _ = limits.CapsFor(permission.GiftGroupChild)
	assert.Equal(t, 5, items)

	items, secret = limits.CapsFor(permission.BasicList)
	assert.Equal(t, 7, items)
	assert.Zero(t, secret)

	items, secret = limits.CapsFor(permission.GiftGroup)
	assert.Zero(t, items)
	assert.Zero(t, secret)
}

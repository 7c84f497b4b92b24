package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sample = `
telegram:
  token: "123:abc"
logging:
  format: kv
database:
  driver: sqlite
  path: /tmp/nyabot.db
emby:
  url: "http://emby.local:8096/emby/"
  token: secret
  template_user_id: tmpl
notify:
  chats: [100, 200]
dialogue:
  cleanup_delay: 2s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Equal(t, "longpoll", cfg.Telegram.RunMode)
	require.Equal(t, "http://emby.local:8096/emby", cfg.Emby.URL)
	require.Equal(t, []int64{100, 200}, cfg.Notify.Chats)
	require.Equal(t, "127.0.0.1:3000", cfg.HTTP.Listen)
	require.Equal(t, 2*time.Second, cfg.Dialogue.CleanupDelay)
	require.Equal(t, 15*time.Second, cfg.Dialogue.CallTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.Metadata.BatchInterval)
	require.Equal(t, "zh-CN", cfg.Metadata.Language)
	require.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("DISABLED_USERS", "7,8")
	t.Setenv("WEBHOOK_NOTIFY_CHAT", "-1001")
	t.Setenv("EMBY_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.Equal(t, []int64{7, 8}, cfg.Access.DisabledUsers)
	require.Equal(t, []int64{-1001}, cfg.Notify.Chats)
	require.Equal(t, "from-env", cfg.Emby.Token)
}

func TestLoadRequiresEmby(t *testing.T) {
	_, err := Load(writeConfig(t, "telegram:\n  token: x\ndatabase:\n  driver: sqlite\n"))
	require.ErrorContains(t, err, "emby.url")
}

func TestLoadDatabaseSkipsBotSections(t *testing.T) {
	cfg, err := LoadDatabase(writeConfig(t, "database:\n  driver: sqlite\n  path: x.db\n"))
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
}

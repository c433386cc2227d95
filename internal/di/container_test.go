package di

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/config"
	"github.com/tickitapp/tickit-sync/internal/di/providers"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func writeConfig(t *testing.T, driver string) string {
	t.Helper()
	dir := t.TempDir()

	hash, err := auth.HashToken("tks_container")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Database.Driver = driver
	cfg.Database.Path = filepath.Join(dir, "data")
	cfg.Log.Level = "error"
	cfg.AddToken("ci", hash)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, cfg.Save(path))
	return path
}

func TestBootstrap_ServesHealth(t *testing.T) {
	for _, driver := range []string{config.DriverSQLite, config.DriverBadger} {
		t.Run(driver, func(t *testing.T) {
			port := freePort(t)
			injector := NewContainer(providers.Flags{
				ConfigPath: writeConfig(t, driver),
				Port:       port,
				Bind:       "127.0.0.1",
				Version:    "test",
			})
			require.NoError(t, Bootstrap(injector))
			t.Cleanup(func() { _ = injector.Shutdown() })

			cfg := do.MustInvoke[*config.Config](injector)
			assert.Equal(t, port, cfg.Server.Port)
			assert.Equal(t, "127.0.0.1", cfg.Server.Bind)

			keyring := do.MustInvoke[*auth.Keyring](injector)
			name, ok := keyring.Authenticate("tks_container")
			assert.True(t, ok)
			assert.Equal(t, "ci", name)

			resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), `"status":"ok"`)
		})
	}
}

func TestBootstrap_InvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 70000\n"), 0o600))

	injector := NewContainer(providers.Flags{ConfigPath: path})
	t.Cleanup(func() { _ = injector.Shutdown() })

	err := Bootstrap(injector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestBootstrap_PortInUseFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	injector := NewContainer(providers.Flags{
		ConfigPath: writeConfig(t, config.DriverSQLite),
		Port:       ln.Addr().(*net.TCPAddr).Port,
		Bind:       "127.0.0.1",
	})
	t.Cleanup(func() { _ = injector.Shutdown() })

	err = Bootstrap(injector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}

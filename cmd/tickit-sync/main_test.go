package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickitapp/tickit-sync/internal/auth"
	"github.com/tickitapp/tickit-sync/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// tokenFrom pulls the generated token out of the command output.
func tokenFrom(t *testing.T, output string) string {
	t.Helper()
	for _, field := range strings.Fields(output) {
		if strings.HasPrefix(field, auth.TokenPrefix) {
			return field
		}
	}
	t.Fatalf("no token in output:\n%s", output)
	return ""
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tickit-sync dev\n", out)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := run(t, "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created config file: "+path)

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 3030, cfg.Server.Port)
	assert.Empty(t, cfg.Tokens)

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := run(t, "init", "--output", path)
		assert.ErrorContains(t, err, "already exists")
	})

	t.Run("force overwrites", func(t *testing.T) {
		_, err := run(t, "init", "--output", path, "--force")
		assert.NoError(t, err)
	})
}

func TestToken_SavesHashToExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_, err := run(t, "init", "--output", path)
	require.NoError(t, err)

	out, err := run(t, "token", "--name", "laptop", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated API token for 'laptop'")
	assert.Contains(t, out, "cannot be retrieved later")

	token := tokenFrom(t, out)

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, "laptop", cfg.Tokens[0].Name)
	assert.True(t, auth.IsHashed(cfg.Tokens[0].TokenHash))
	assert.NotContains(t, cfg.Tokens[0].TokenHash, token)
	assert.True(t, auth.VerifyToken(cfg.Tokens[0].TokenHash, token))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), token, "plain token must not be written")
}

func TestToken_DuplicateNameIsRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_, err := run(t, "init", "--output", path)
	require.NoError(t, err)

	_, err = run(t, "token", "--name", "phone", "--config", path)
	require.NoError(t, err)
	before, err := config.LoadFrom(path)
	require.NoError(t, err)

	out, err := run(t, "token", "--name", "phone", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Token 'phone' already exists. Use --revoke first to replace it.")

	after, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, before.Tokens, after.Tokens)
}

func TestToken_WithoutConfigPrintsSnippet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	out, err := run(t, "token", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "[[tokens]]")
	assert.Contains(t, out, `name = "default"`)
	assert.Contains(t, out, `token_hash = "$argon2id$`)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file is created")
}

func TestToken_ListAndRevoke(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := run(t, "token", "--list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No config file found")

	_, err = run(t, "init", "--output", path)
	require.NoError(t, err)

	out, err = run(t, "token", "--list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No tokens configured.")

	_, err = run(t, "token", "--name", "tablet", "--config", path)
	require.NoError(t, err)

	out, err = run(t, "token", "--list", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "tablet")
	assert.Contains(t, out, "$argon2id$v=19$m=655...")

	out, err = run(t, "token", "--revoke", "nope", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Token 'nope' not found.")

	out, err = run(t, "token", "--revoke", "tablet", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked token 'tablet'.")

	cfg, err := config.LoadFrom(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Tokens)
}

func TestToken_ListAndRevokeAreExclusive(t *testing.T) {
	_, err := run(t, "token", "--list", "--revoke", "x", "--config", filepath.Join(t.TempDir(), "c.toml"))
	assert.Error(t, err)
}

func TestHashPreview(t *testing.T) {
	assert.Equal(t, "short", hashPreview("short"))
	assert.Equal(t, "01234567890123456789...", hashPreview("0123456789012345678901234"))
}

func TestBackupAndRestore(t *testing.T) {
	dir := t.TempDir()
	srcConfig := filepath.Join(dir, "src.toml")
	dstConfig := filepath.Join(dir, "dst.toml")
	archive := filepath.Join(dir, "backup.zip")

	for _, p := range []struct{ config, db string }{
		{srcConfig, filepath.Join(dir, "src.sqlite")},
		{dstConfig, filepath.Join(dir, "dst.sqlite")},
	} {
		cfg := config.Default()
		cfg.Database.Path = p.db
		require.NoError(t, cfg.Save(p.config))
	}

	out, err := run(t, "backup", "--config", srcConfig, "--output", archive)
	require.NoError(t, err)
	assert.Contains(t, out, "Backup written to "+archive)
	assert.Contains(t, out, "lists:      0")

	out, err = run(t, "restore", archive, "--config", dstConfig, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing written")

	out, err = run(t, "restore", archive, "--config", dstConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored "+archive)
}

func TestRestore_RequiresArchive(t *testing.T) {
	_, err := run(t, "restore")
	assert.Error(t, err)
}

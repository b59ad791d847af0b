package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBlake3Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	a, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.NoError(t, os.WriteFile(path, []byte("hello!"), 0o600))
	c, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestVerifyWithoutManifest(t *testing.T) {
	path := writeConfig(t, devConfig)
	assert.ErrorIs(t, VerifyChecksums(path), ErrNoChecksums)
}

func TestLockThenVerify(t *testing.T) {
	path := writeConfig(t, devConfig)

	manifest, err := Lock(path)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Version)
	assert.Contains(t, manifest.Hashes, "config.yaml")
	assert.NotEmpty(t, manifest.GeneratedAt)

	require.NoError(t, VerifyChecksums(path))
	_, err = Load(path)
	require.NoError(t, err)
}

func TestLoadRejectsTamperedConfig(t *testing.T) {
	path := writeConfig(t, devConfig)
	_, err := Lock(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(devConfig+"\n# edited\n"), 0o600))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestVerifyUnlistedFile(t *testing.T) {
	path := writeConfig(t, devConfig)
	other := filepath.Join(filepath.Dir(path), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte(devConfig), 0o600))
	_, err := Lock(other)
	require.NoError(t, err)

	err = VerifyChecksums(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no hash")
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0o600))
	_, err := LoadChecksums(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported checksums version")
}

package slot

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

const tokenJSON = `{"type":"clevis","keyslots":["1"],"jwe":{"protected":"e30"}}`

func TestDirReader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slot-1.json"), []byte(tokenJSON), 0o600))

	r := &DirReader{Dir: dir}

	got, err := r.ReadToken(context.Background(), "/dev/sda2", 1)
	require.NoError(t, err)
	require.JSONEq(t, tokenJSON, string(got))

	_, err = r.ReadToken(context.Background(), "/dev/sda2", 2)
	require.True(t, IsNotBound(err), "expected ErrNotBound, got %v", err)
}

func TestDirReaderEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "slot-0.json"), nil, 0o600))

	_, err := (&DirReader{Dir: dir}).ReadToken(context.Background(), "dev", 0)
	require.Error(t, err)
	require.False(t, IsNotBound(err))
}

// fakeCryptsetup writes a stub shell script that prints the given JSON
// metadata, standing in for cryptsetup luksDump.
func fakeCryptsetup(t *testing.T, metadata string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub script needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "cryptsetup")
	script := "#!/bin/sh\ncat <<'EOF'\n" + metadata + "\nEOF\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCryptsetupReaderFindsClevisToken(t *testing.T) {
	meta := `{"tokens":{"0":{"type":"luks2-keyring","keyslots":["0"]},"1":` + tokenJSON + `}}`
	r := &CryptsetupReader{Binary: fakeCryptsetup(t, meta)}

	got, err := r.ReadToken(context.Background(), "/dev/sda2", 1)
	require.NoError(t, err)
	require.JSONEq(t, tokenJSON, string(got))
}

func TestCryptsetupReaderSlotWithoutToken(t *testing.T) {
	meta := `{"tokens":{"1":` + tokenJSON + `}}`
	r := &CryptsetupReader{Binary: fakeCryptsetup(t, meta)}

	_, err := r.ReadToken(context.Background(), "/dev/sda2", 7)
	require.True(t, IsNotBound(err), "expected ErrNotBound, got %v", err)
}

func TestCryptsetupReaderCommandFailure(t *testing.T) {
	r := &CryptsetupReader{Binary: "/nonexistent/cryptsetup"}
	_, err := r.ReadToken(context.Background(), "/dev/sda2", 1)
	require.Error(t, err)
}

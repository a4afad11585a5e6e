package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "hunter2")
	require.NoError(t, err)
	require.NotContains(t, string(blob), "my-api-secret")

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, "my-api-secret", got)
}

func TestDecryptWrongPasswordFails(t *testing.T) {
	blob, err := EncryptSecret("my-api-secret", "hunter2")
	require.NoError(t, err)

	_, err = DecryptSecret(blob, "wrong")
	require.Error(t, err)
}

func TestEncryptRequiresPassword(t *testing.T) {
	_, err := EncryptSecret("secret", "")
	require.Error(t, err)
}

func TestResolveSecretPrefersRaw(t *testing.T) {
	got, err := ResolveSecret(SecretConfig{RawSecret: "raw-secret", EncryptedPath: "/does/not/exist"})
	require.NoError(t, err)
	require.Equal(t, "raw-secret", got)
}

func TestResolveSecretFromEncryptedFile(t *testing.T) {
	blob, err := EncryptSecret("file-secret", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := ResolveSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "file-secret", got)
}

func TestResolveSecretEmptyConfigFails(t *testing.T) {
	_, err := ResolveSecret(SecretConfig{})
	require.Error(t, err)
}

package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/relab/solid/crypto/bls12"
	"github.com/relab/solid/crypto/ecdsa"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeys(t *testing.T) {
	dir := t.TempDir()
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, generateKeys(cmd, dir, "v", "ecdsa", 3))

	for _, name := range []string{"v1", "v2", "v3"} {
		key, err := ecdsa.ReadPrivateKeyFile(filepath.Join(dir, name+".key"))
		require.NoError(t, err)
		pub, err := ecdsa.ReadPublicKeyFile(filepath.Join(dir, name+".pub"))
		require.NoError(t, err)
		require.True(t, key.PublicKey.Equal(pub))
		require.Contains(t, out.String(), ecdsa.NewPeer(pub).String())
	}
}

func TestGenerateBLSKeys(t *testing.T) {
	dir := t.TempDir()
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, generateKeys(cmd, dir, "b", "bls12", 2))

	for _, name := range []string{"b1", "b2"} {
		key, err := bls12.ReadPrivateKeyFile(filepath.Join(dir, name+".key"))
		require.NoError(t, err)
		pub, err := bls12.ReadPublicKeyFile(filepath.Join(dir, name+".pub"))
		require.NoError(t, err)
		require.True(t, key.Public().Equal(pub))
		require.Contains(t, out.String(), bls12.NewPeer(pub).String())
	}
}

func TestGenerateKeysRejectsBadInput(t *testing.T) {
	require.Error(t, generateKeys(&cobra.Command{}, t.TempDir(), "v", "ecdsa", 0))
	require.Error(t, generateKeys(&cobra.Command{}, t.TempDir(), "v", "rsa", 1))
}

func TestSetLogLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		packages []string
		wantErr  bool
	}{
		{"global", "debug", nil, false},
		{"packages", "info", []string{"consensus:debug", "replica:warn"}, false},
		{"bad level", "loud", nil, true},
		{"bad package entry", "info", []string{"consensus"}, true},
		{"bad package level", "info", []string{"consensus:loud"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := setLogLevels(tt.level, tt.packages)
			if (err != nil) != tt.wantErr {
				t.Errorf("setLogLevels() error = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
	require.NoError(t, setLogLevels("info", nil))
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/relab/solid/crypto/bls12"
	"github.com/relab/solid/crypto/ecdsa"
	"github.com/spf13/cobra"
)

var (
	keygenDest   string
	keygenCount  int
	keygenPrefix string
	keygenType   string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate validator key pairs.",
	Long: `Generates ECDSA P-256 or BLS12-381 key pairs and writes them as PEM files
named <prefix><n>.key and <prefix><n>.pub to the destination directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateKeys(cmd, keygenDest, keygenPrefix, keygenType, keygenCount)
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().StringVarP(&keygenDest, "dest", "d", ".", "directory to write the keys to")
	keygenCmd.Flags().IntVarP(&keygenCount, "num", "n", 1, "number of key pairs to generate")
	keygenCmd.Flags().StringVarP(&keygenPrefix, "prefix", "p", "validator", "file name prefix")
	keygenCmd.Flags().StringVarP(&keygenType, "type", "t", "ecdsa", "key type: ecdsa or bls12")
}

// writeKeyPair generates one key pair at base and returns the identity it belongs to.
type writeKeyPair func(base string) (fmt.Stringer, error)

func keyWriter(keyType string) (writeKeyPair, error) {
	switch keyType {
	case "ecdsa":
		return func(base string) (fmt.Stringer, error) {
			key, err := ecdsa.GeneratePrivateKey()
			if err != nil {
				return nil, err
			}
			if err := ecdsa.WritePrivateKeyFile(key, base+".key"); err != nil {
				return nil, err
			}
			if err := ecdsa.WritePublicKeyFile(&key.PublicKey, base+".pub"); err != nil {
				return nil, err
			}
			return ecdsa.NewPeer(&key.PublicKey), nil
		}, nil
	case "bls12":
		return func(base string) (fmt.Stringer, error) {
			key, err := bls12.GeneratePrivateKey()
			if err != nil {
				return nil, err
			}
			if err := bls12.WritePrivateKeyFile(key, base+".key"); err != nil {
				return nil, err
			}
			if err := bls12.WritePublicKeyFile(key.Public(), base+".pub"); err != nil {
				return nil, err
			}
			return bls12.NewPeer(key.Public()), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown key type %q", keyType)
	}
}

func generateKeys(cmd *cobra.Command, dest, prefix, keyType string, count int) error {
	if count < 1 {
		return fmt.Errorf("cannot generate %d keys", count)
	}
	write, err := keyWriter(keyType)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	for i := 1; i <= count; i++ {
		base := filepath.Join(dest, fmt.Sprintf("%s%d", prefix, i))
		peer, err := write(base)
		if err != nil {
			return err
		}
		cmd.Printf("%s: %s\n", base, peer)
	}
	return nil
}

package bls12

import (
	"encoding/pem"
	"fmt"
	"os"
)

const (
	// PrivateKeyFileType is the PEM type for a private key.
	PrivateKeyFileType = "BLS12-381 PRIVATE KEY"

	// PublicKeyFileType is the PEM type for a public key.
	PublicKeyFileType = "BLS12-381 PUBLIC KEY"
)

// WritePrivateKeyFile writes a private key to the specified file.
func WritePrivateKeyFile(key *PrivateKey, filePath string) error {
	return writePEM(filePath, 0o600, &pem.Block{Type: PrivateKeyFileType, Bytes: key.Bytes()})
}

// WritePublicKeyFile writes a public key to the specified file.
func WritePublicKeyFile(key *PublicKey, filePath string) error {
	return writePEM(filePath, 0o644, &pem.Block{Type: PublicKeyFileType, Bytes: key.Bytes()})
}

func writePEM(filePath string, perm os.FileMode, b *pem.Block) (err error) {
	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return pem.Encode(f, b)
}

// ReadPrivateKeyFile reads a private key from the specified file.
func ReadPrivateKeyFile(keyFile string) (*PrivateKey, error) {
	b, err := readPEM(keyFile, PrivateKeyFileType)
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBytes(b.Bytes)
}

// ReadPublicKeyFile reads a public key from the specified file.
func ReadPublicKeyFile(keyFile string) (*PublicKey, error) {
	b, err := readPEM(keyFile, PublicKeyFileType)
	if err != nil {
		return nil, err
	}
	return PublicKeyFromBytes(b.Bytes)
}

func readPEM(keyFile, fileType string) (*pem.Block, error) {
	d, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	b, _ := pem.Decode(d)
	if b == nil {
		return nil, fmt.Errorf("failed to decode key in %s", keyFile)
	}
	if b.Type != fileType {
		return nil, fmt.Errorf("file type did not match: got %q, want %q", b.Type, fileType)
	}
	return b, nil
}

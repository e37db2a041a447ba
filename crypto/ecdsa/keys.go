package ecdsa

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const (
	privateKeyFileType = "SOLID PRIVATE KEY"
	publicKeyFileType  = "SOLID PUBLIC KEY"
)

// GeneratePrivateKey returns a new P-256 private key.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// WritePrivateKeyFile writes a private key to the specified file.
func WritePrivateKeyFile(key *ecdsa.PrivateKey, filePath string) error {
	marshalled, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	return writePEM(filePath, 0o600, &pem.Block{Type: privateKeyFileType, Bytes: marshalled})
}

// WritePublicKeyFile writes a public key to the specified file.
func WritePublicKeyFile(key *ecdsa.PublicKey, filePath string) error {
	marshalled, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return err
	}
	return writePEM(filePath, 0o644, &pem.Block{Type: publicKeyFileType, Bytes: marshalled})
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
func ReadPrivateKeyFile(keyFile string) (*ecdsa.PrivateKey, error) {
	b, err := readPEM(keyFile, privateKeyFileType)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParseECPrivateKey(b.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	return key, nil
}

// ReadPublicKeyFile reads a public key from the specified file.
func ReadPublicKeyFile(keyFile string) (*ecdsa.PublicKey, error) {
	b, err := readPEM(keyFile, publicKeyFileType)
	if err != nil {
		return nil, err
	}
	k, err := x509.ParsePKIXPublicKey(b.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	key, ok := k.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("key was of wrong type")
	}
	return key, nil
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

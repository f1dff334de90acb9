package providers

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrVaultDisabled = errors.New("provider key vault is not configured")

// Vault seals provider API keys with XChaCha20-Poly1305. The provider code is bound as associated data.
type Vault struct {
	aead cipher.AEAD
}

// NewVault takes a hex encoded 32 byte key. An empty key yields a nil vault.
func NewVault(hexKey string) (*Vault, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode vault key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return &Vault{aead: aead}, nil
}

func (v *Vault) Seal(plain, ad []byte) ([]byte, error) {
	if v == nil {
		return nil, ErrVaultDisabled
	}
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plain)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return v.aead.Seal(nonce, nonce, plain, ad), nil
}

func (v *Vault) Open(sealed, ad []byte) ([]byte, error) {
	if v == nil {
		return nil, ErrVaultDisabled
	}
	if len(sealed) < v.aead.NonceSize() {
		return nil, errors.New("sealed key too short")
	}
	nonce, body := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, body, ad)
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	return plain, nil
}

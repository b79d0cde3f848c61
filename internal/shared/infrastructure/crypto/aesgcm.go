// Package crypto implements the at-rest encryption applied to
// sensitive playbook fields before they are written to the remote
// store. The embedded store keeps plaintext and never touches this
// package.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

const keySize = 32

// Encrypter seals and opens field values. FieldCodec is its only
// consumer; repositories go through the codec rather than calling an
// encrypter directly.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESEncrypter is an AES-256-GCM Encrypter. Every value is sealed
// under a fresh random nonce carried as a prefix, so equal plaintexts
// never produce equal stored bytes.
type AESEncrypter struct {
	aead cipher.AEAD
}

// NewAESGCMFromBase64Key builds an encrypter from the base64-encoded
// 32-byte key carried in SIDECUE_ENCRYPTION_KEY.
func NewAESGCMFromBase64Key(encodedKey string) (*AESEncrypter, error) {
	if encodedKey == "" {
		return nil, errors.New("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, err
	}
	if len(key) != keySize {
		return nil, errors.New("encryption key must decode to 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESEncrypter{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce||ciphertext.
func (e *AESEncrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt splits the nonce prefix off and opens the remainder.
func (e *AESEncrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext shorter than its nonce")
	}
	return e.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
}

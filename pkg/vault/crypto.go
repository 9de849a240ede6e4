package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt means ciphertext failed to decrypt — wrong key or tampered
// data. Callers MUST surface this explicitly; it must never be mapped to
// empty credentials.
var ErrDecrypt = errors.New("token ciphertext failed to decrypt")

// cipher performs AEAD encrypt/decrypt for the current wire format, with a
// read-only fallback for the legacy Fernet format.
type cipher struct {
	key [32]byte
}

func newCipher(key [32]byte) *cipher {
	return &cipher{key: key}
}

// encrypt produces base64(nonce(12) || tag(16) || ciphertext).
//
// chacha20poly1305.Seal appends the tag after the ciphertext; the spec's
// wire layout wants the tag first, so the bytes are reordered here.
func (c *cipher) encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return "", fmt.Errorf("constructing aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	overhead := aead.Overhead()
	ct, tag := sealed[:len(sealed)-overhead], sealed[len(sealed)-overhead:]

	out := make([]byte, 0, len(nonce)+len(tag)+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// decrypt reverses encrypt: base64-decode, split nonce || tag || ciphertext,
// reorder to ciphertext || tag for Open.
func (c *cipher) decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	aead, err := chacha20poly1305.New(c.key[:])
	if err != nil {
		return "", fmt.Errorf("constructing aead: %w", err)
	}

	nonceSize, overhead := aead.NonceSize(), aead.Overhead()
	if len(raw) < nonceSize+overhead {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+overhead]
	ct := raw[nonceSize+overhead:]

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

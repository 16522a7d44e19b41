// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const RedactedStr = "<redacted>"

// DeriveSecretKey derives a 32-byte AES-256 key from an operator-configured
// passphrase (StrmProxySecret doubles as the metadata-service API key
// encryption key) via HKDF-SHA256.
func DeriveSecretKey(passphrase, salt string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("domain: empty passphrase")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte("anibridge-secret"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncryptSecret encrypts plaintext (e.g. the Sonarr-compatible metadata
// service's API key) with AES-GCM. The result is safe to persist at rest.
func EncryptSecret(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptSecret reverses EncryptSecret.
func DecryptSecret(key []byte, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("domain: malformed ciphertext")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// RedactString replaces a string with redacted placeholder
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}

	return RedactedStr
}

// IsRedactedString checks if a value is the redacted placeholder
func IsRedactedString(s string) bool {
	if s == "" {
		return false
	}
	return s == RedactedStr
}

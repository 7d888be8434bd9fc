package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Layout of an encrypted value: salt | iv | tag | ciphertext, hex encoded
const (
	saltLength = 64
	ivLength   = 16
	tagLength  = 16
	keyLength  = 32

	// DefaultIterations is the PBKDF2 work factor for token encryption
	DefaultIterations = 100000
)

var (
	ErrEmptySecret      = errors.New("encryption secret must not be empty")
	ErrCiphertextLength = errors.New("ciphertext too short")
)

// Cipher encrypts token material at rest with AES-256-GCM under a
// PBKDF2-derived key. Every Encrypt call draws a fresh salt and IV.
type Cipher struct {
	secret     []byte
	iterations int
	rand       io.Reader
}

// NewCipher creates a cipher for the given secret
func NewCipher(secret string) (*Cipher, error) {
	return NewCipherWithIterations(secret, DefaultIterations)
}

// NewCipherWithIterations creates a cipher with a custom PBKDF2 work factor
func NewCipherWithIterations(secret string, iterations int) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Cipher{
		secret:     []byte(secret),
		iterations: iterations,
		rand:       rand.Reader,
	}, nil
}

func (c *Cipher) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, c.iterations, keyLength, sha512.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts a token and returns the hex encoded envelope
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	header := make([]byte, saltLength+ivLength)
	if _, err := io.ReadFull(c.rand, header); err != nil {
		return "", fmt.Errorf("failed to generate salt and iv: %w", err)
	}
	salt, iv := header[:saltLength], header[saltLength:]

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	// Seal appends the tag after the ciphertext; the envelope stores it first
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]

	out := make([]byte, 0, len(header)+len(sealed))
	out = append(out, header...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(data) < saltLength+ivLength+tagLength {
		return "", ErrCiphertextLength
	}

	salt := data[:saltLength]
	iv := data[saltLength : saltLength+ivLength]
	tag := data[saltLength+ivLength : saltLength+ivLength+tagLength]
	ciphertext := data[saltLength+ivLength+tagLength:]

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

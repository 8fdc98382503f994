package cryptoadapter

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/rawblock/idx-consortium-ledger/internal/ledgererr"
)

// kdfSalt and kdfIterations fix the PBKDF2 stretch applied to every
// master-key string before it's used as an AES-256 key. Matching the
// reference implementation's parameters keeps ciphertext produced by
// one deployment readable by another that shares the same master key.
const (
	kdfSalt       = "IDX_CRYPTO_BANKING_SALT"
	kdfIterations = 100000
	kdfKeyLen     = 32 // 256 bits
	macLen        = sha256.Size
)

// Cipher performs authenticated AES-256-CBC encryption: encrypt-then-MAC
// with HMAC-SHA-256, keyed by a PBKDF2-stretched master key. A fresh
// random IV is generated per Encrypt call.
type Cipher struct {
	key []byte
}

// NewCipher derives a 256-bit key from masterKey via PBKDF2-HMAC-SHA256.
func NewCipher(masterKey string) *Cipher {
	key := pbkdf2.Key([]byte(masterKey), []byte(kdfSalt), kdfIterations, kdfKeyLen, sha256.New)
	return &Cipher{key: key}
}

// Encrypt returns base64(iv || ciphertext || hmac-tag).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	iv, err := SecureRandomBytes(aes.BlockSize)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	mac := hmac.New(sha256.New, c.key)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// EncryptString is a convenience wrapper for string plaintexts.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt verifies the HMAC tag before decrypting. Any single-bit
// modification of the ciphertext or tag yields MacMismatch — it never
// returns partial plaintext.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.MacMismatch, "invalid ciphertext encoding", err)
	}
	if len(raw) < aes.BlockSize+macLen {
		return nil, ledgererr.New(ledgererr.MacMismatch, "ciphertext too short")
	}

	iv := raw[:aes.BlockSize]
	tag := raw[len(raw)-macLen:]
	ciphertext := raw[aes.BlockSize : len(raw)-macLen]

	mac := hmac.New(sha256.New, c.key)
	mac.Write(iv)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, tag) {
		return nil, ledgererr.New(ledgererr.MacMismatch, "HMAC verification failed - data has been tampered")
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ledgererr.New(ledgererr.MacMismatch, "ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	padded := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}

// DecryptString is a convenience wrapper returning a string plaintext.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	b, err := c.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ledgererr.New(ledgererr.MacMismatch, "empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, ledgererr.New(ledgererr.MacMismatch, fmt.Sprintf("invalid padding length %d", padLen))
	}
	return data[:len(data)-padLen], nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"finsight/internal/domain"

	"golang.org/x/crypto/hkdf"
)

const (
	Algorithm = "aes-256-gcm"

	minMasterKeyBytes = 32
	derivedKeyBytes   = 32
)

// ErrDecrypt is the only error surfaced for any decryption failure:
// wrong key, corrupted iv/tag/ciphertext, mismatched key version. It
// deliberately carries no detail about which part failed.
var ErrDecrypt = errors.New("failed to decrypt profile data")

// Cipher encrypts profile plaintext under a per-version subkey derived
// from the master key with HKDF-SHA256. A fresh iv is drawn for every
// write, so encrypting identical plaintext twice never yields the same
// ciphertext.
type Cipher struct {
	master  []byte
	version int
}

// New validates the hex-encoded master key at construction: short or
// malformed keys are rejected here, not at first use.
func New(masterHex string, version int) (*Cipher, error) {
	master, err := hex.DecodeString(masterHex)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	if len(master) < minMasterKeyBytes {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", minMasterKeyBytes, len(master))
	}
	if version < 1 {
		return nil, fmt.Errorf("key version must be >= 1, got %d", version)
	}
	return &Cipher{master: master, version: version}, nil
}

func (c *Cipher) Version() int { return c.version }

func (c *Cipher) aead(version int) (cipher.AEAD, error) {
	info := fmt.Sprintf("finsight-profile-key-v%d", version)
	r := hkdf.New(sha256.New, c.master, nil, []byte(info))
	key := make([]byte, derivedKeyBytes)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key v%d: %w", version, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext for the given profile hash. The hash is
// bound as associated data, so a record copied between users fails to
// decrypt. Ciphertext, iv and tag are stored as separate fields.
func (c *Cipher) Encrypt(profileHash string, plaintext []byte) (*domain.EncryptedProfile, error) {
	gcm, err := c.aead(c.version)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, []byte(profileHash))
	tagStart := len(sealed) - gcm.Overhead()

	return &domain.EncryptedProfile{
		ProfileHash: profileHash,
		Ciphertext:  append([]byte(nil), sealed[:tagStart]...),
		IV:          iv,
		Tag:         append([]byte(nil), sealed[tagStart:]...),
		KeyVersion:  c.version,
		Algorithm:   Algorithm,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// Decrypt opens a record using the key version it was written under.
// Every failure maps to ErrDecrypt; no partial plaintext ever leaves
// this function.
func (c *Cipher) Decrypt(rec *domain.EncryptedProfile) ([]byte, error) {
	if rec == nil || rec.Algorithm != Algorithm {
		return nil, ErrDecrypt
	}
	gcm, err := c.aead(rec.KeyVersion)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(rec.IV) != gcm.NonceSize() || len(rec.Tag) != gcm.Overhead() {
		return nil, ErrDecrypt
	}

	sealed := make([]byte, 0, len(rec.Ciphertext)+len(rec.Tag))
	sealed = append(sealed, rec.Ciphertext...)
	sealed = append(sealed, rec.Tag...)

	plaintext, err := gcm.Open(nil, rec.IV, sealed, []byte(rec.ProfileHash))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Rotate re-encrypts a record from the old cipher to the new one. It
// is a pure function: the input record is untouched and the new record
// is produced only after a successful decrypt, so a failed rotation
// leaves nothing half-written. The rotated record decrypts only under
// the new cipher.
func Rotate(oldCipher, newCipher *Cipher, rec *domain.EncryptedProfile) (*domain.EncryptedProfile, error) {
	plaintext, err := oldCipher.Decrypt(rec)
	if err != nil {
		return nil, err
	}
	return newCipher.Encrypt(rec.ProfileHash, plaintext)
}

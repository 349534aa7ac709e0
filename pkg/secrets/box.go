package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	saltSize  = 16
)

// Box encrypts values with NaCl secretbox. Each value gets its own salt, the encryption key
// is derived from the user key and the salt with argon2id.
// Sealed format is base64(nonce | salt | secretbox).
type Box struct {
	key []byte
}

// NewBox makes a box for the user key.
func NewBox(key []byte) (*Box, error) {
	if len(key) == 0 {
		return nil, errors.New("encryption key is empty")
	}
	return &Box{key: key}, nil
}

// Seal encrypts data.
func (b *Box) Seal(data string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	nonce := new([nonceSize]byte)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	out := make([]byte, nonceSize+saltSize)
	copy(out, nonce[:])
	copy(out[nonceSize:], salt)
	sealed := secretbox.Seal(out, []byte(data), nonce, b.derive(salt))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value made by Seal.
func (b *Box) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+saltSize+secretbox.Overhead {
		return "", errors.New("sealed value is too short")
	}
	nonce := new([nonceSize]byte)
	copy(nonce[:], sealed[:nonceSize])
	salt := sealed[nonceSize : nonceSize+saltSize]

	decrypted, ok := secretbox.Open(nil, sealed[nonceSize+saltSize:], nonce, b.derive(salt))
	if !ok {
		return "", errors.New("failed to decrypt")
	}
	return string(decrypted), nil
}

// derive makes a 32 bytes key with argon2id, 1 pass, 64MiB, 4 threads
func (b *Box) derive(salt []byte) *[32]byte {
	res := new([32]byte)
	copy(res[:], argon2.IDKey(b.key, salt, 1, 64*1024, 4, 32))
	return res
}

// Package crypto holds the wallet side of CLOB access: loading the private
// key, EIP-712 order and auth signatures, and L2 request signing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

var ErrNoKey = errors.New("crypto: no private key configured")

// keyFile is the on-disk format of an encrypted wallet key.
type keyFile struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where the wallet key comes from. A raw key wins over a key
// file.
type KeySource struct {
	RawKey   string
	KeyFile  string
	Password string
}

// LoadKey resolves the wallet private key as hex without 0x prefix.
func LoadKey(src KeySource) (string, error) {
	switch {
	case src.RawKey != "":
		k, err := normalizeKey(src.RawKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(k), nil
	case src.KeyFile != "":
		data, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(data, src.Password)
	default:
		return "", ErrNoKey
	}
}

// EncryptKey seals a private key under password (PBKDF2-SHA256, AES-256-GCM)
// and returns the JSON key file contents.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	key, err := normalizeKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := passwordAEAD(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, key, nil)),
	}, "", "  ")
}

// DecryptKey opens a key file produced by EncryptKey.
func DecryptKey(data []byte, password string) (string, error) {
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}

	var salt, nonce, sealed []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", kf.Salt, &salt},
		{"nonce", kf.Nonce, &nonce},
		{"ciphertext", kf.Ciphertext, &sealed},
	} {
		b, err := base64.StdEncoding.DecodeString(f.in)
		if err != nil {
			return "", fmt.Errorf("crypto: decode %s: %w", f.name, err)
		}
		*f.out = b
	}

	gcm, err := passwordAEAD(password, salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: bad nonce length %d", len(nonce))
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt key (wrong password?): %w", err)
	}
	return hex.EncodeToString(plain), nil
}

func passwordAEAD(password string, salt []byte) (cipher.AEAD, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(key))
	}
	return key, nil
}

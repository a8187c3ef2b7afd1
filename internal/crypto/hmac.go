package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// APICreds are the L2 credentials issued by the CLOB for one wallet.
type APICreds struct {
	Key        string
	Secret     string // base64 (URL-safe or standard)
	Passphrase string
}

// Valid reports whether all three parts are present.
func (c APICreds) Valid() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// String keeps secrets out of logs.
func (c APICreds) String() string {
	return "APICreds{key=" + redact(c.Key) + ", secret=" + redact(c.Secret) + "}"
}

// L2Headers returns the headers for an authenticated CLOB request made now.
func (c APICreds) L2Headers(address, method, path, body string) map[string]string {
	return c.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with a caller-supplied unix timestamp.
//
// POLY_SIGNATURE is base64url(HMAC-SHA256(secret, ts+method+path+body)).
func (c APICreds) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	mac := hmac.New(sha256.New, decodeSecret(c.Secret))
	mac.Write([]byte(ts + method + path + body))

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  base64.URLEncoding.EncodeToString(mac.Sum(nil)),
	}
}

// L1Headers returns the headers for the key creation/derivation endpoints.
func L1Headers(address, signature string, unixTS, nonce int64) map[string]string {
	return map[string]string{
		"POLY_ADDRESS":   address,
		"POLY_SIGNATURE": signature,
		"POLY_TIMESTAMP": strconv.FormatInt(unixTS, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}
}

func decodeSecret(secret string) []byte {
	if b, err := base64.URLEncoding.DecodeString(secret); err == nil {
		return b
	}
	if b, err := base64.StdEncoding.DecodeString(secret); err == nil {
		return b
	}
	// Unpadded secrets show up in hand-written env files.
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(secret, "=")); err == nil {
		return b
	}
	return []byte(secret)
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

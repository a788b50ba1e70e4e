package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// APIKeyPrefix makes issued keys recognizable at a glance. The full
// external format ALWR_<48 hex chars> is part of the integrator contract.
const APIKeyPrefix = "ALWR_"

const apiKeyRandomBytes = 24

// GenerateAPIKey returns a fresh raw key value. The raw value is shown to
// the caller exactly once; only its hash is ever persisted.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey returns the sha256 hex digest of a raw key value. API keys
// are long and random, so a fast hash is sufficient and keeps per-request
// verification cheap.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyAPIKey hashes the presented value and compares it to the stored
// digest in constant time. sha256 itself gives no timing guarantee on the
// comparison, hence the explicit subtle compare.
func VerifyAPIKey(raw, storedHash string) bool {
	actual := HashAPIKey(raw)
	if len(actual) != len(storedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(storedHash)) == 1
}

// MaskAPIKey returns a display form that never exposes the middle of the
// key. Inputs shorter than 8 characters get a fixed placeholder.
func MaskAPIKey(raw string) string {
	if len(raw) < 8 {
		return "********"
	}
	return raw[:4] + "..." + raw[len(raw)-4:]
}

// LooksLikeAPIKey reports whether a bearer value has the issued shape,
// letting the gateway reject garbage before touching the store.
func LooksLikeAPIKey(raw string) bool {
	if !strings.HasPrefix(raw, APIKeyPrefix) {
		return false
	}
	body := raw[len(APIKeyPrefix):]
	if len(body) != apiKeyRandomBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

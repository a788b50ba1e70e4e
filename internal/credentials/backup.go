package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
)

const backupCodeBytes = 5

// GenerateBackupCodes produces count one-time recovery codes. Each code
// is removed from the identity's valid set on first use.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, hex.EncodeToString(buf))
	}
	return codes, nil
}

// ConsumeBackupCode matches the submitted code against the valid set.
// On a match it returns the remaining set with that code removed and
// ok=true. Every stored code is compared so runtime does not reveal the
// position of the match.
func ConsumeBackupCode(codes []string, submitted string) ([]string, bool) {
	matched := -1
	for i, c := range codes {
		if len(c) == len(submitted) &&
			subtle.ConstantTimeCompare([]byte(c), []byte(submitted)) == 1 {
			matched = i
		}
	}
	if matched < 0 {
		return codes, false
	}
	remaining := make([]string, 0, len(codes)-1)
	remaining = append(remaining, codes[:matched]...)
	remaining = append(remaining, codes[matched+1:]...)
	return remaining, true
}

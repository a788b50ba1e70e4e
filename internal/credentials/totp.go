package credentials

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "ALWR Registry"

// TOTPEnrollment is returned once at setup time. The secret is handed to
// the user's authenticator app and stored on the identity.
type TOTPEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// GenerateTOTPSecret creates a random base32 secret and the otpauth://
// provisioning URI for the given account label.
func GenerateTOTPSecret(label string) (TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: label,
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}
	return TOTPEnrollment{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// VerifyTOTPCode validates a 6-digit time-step code against the secret,
// allowing one 30s step of clock skew in either direction. Malformed
// input is rejected before any cryptographic work.
func VerifyTOTPCode(secret, code string) bool {
	return VerifyTOTPCodeAt(secret, code, time.Now())
}

// VerifyTOTPCodeAt is VerifyTOTPCode with an explicit evaluation instant.
func VerifyTOTPCodeAt(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

package credentials

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword("correct horse battery staple", hash); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := VerifyPassword("wrong password", hash); err == nil {
		t.Fatal("expected mismatch")
	}
}

func TestVerifyPasswordMalformedHashIsGeneric(t *testing.T) {
	for _, hash := range []string{"", "not-a-bcrypt-hash"} {
		err := VerifyPassword("anything", hash)
		if err != ErrVerification {
			t.Fatalf("hash %q: expected ErrVerification, got %v", hash, err)
		}
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestGenerateAPIKeyFormat(t *testing.T) {
	raw, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(raw, "ALWR_") {
		t.Fatalf("missing prefix: %s", raw)
	}
	if len(raw) != len("ALWR_")+48 {
		t.Fatalf("unexpected length %d", len(raw))
	}
	if !LooksLikeAPIKey(raw) {
		t.Fatalf("generated key fails shape check: %s", raw)
	}
}

func TestVerifyAPIKeyRoundTrip(t *testing.T) {
	raw, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	stored := HashAPIKey(raw)
	if !VerifyAPIKey(raw, stored) {
		t.Fatal("expected verification success")
	}

	// Flip one character of the raw value.
	mutated := []byte(raw)
	if mutated[len(mutated)-1] == 'a' {
		mutated[len(mutated)-1] = 'b'
	} else {
		mutated[len(mutated)-1] = 'a'
	}
	if VerifyAPIKey(string(mutated), stored) {
		t.Fatal("expected verification failure for mutated key")
	}
}

func TestMaskAPIKey(t *testing.T) {
	raw := "ALWR_0123456789abcdef0123456789abcdef0123456789abcdef"
	masked := MaskAPIKey(raw)
	if masked != "ALWR...cdef" {
		t.Fatalf("unexpected mask: %s", masked)
	}
	if strings.Contains(masked, raw[4:len(raw)-4]) {
		t.Fatal("mask leaks middle of key")
	}
	if got := MaskAPIKey("short"); got != "********" {
		t.Fatalf("expected fixed placeholder for short input, got %s", got)
	}
}

func TestLooksLikeAPIKey(t *testing.T) {
	cases := map[string]bool{
		"ALWR_" + strings.Repeat("ab", 24): true,
		"ALWR_" + strings.Repeat("zz", 24): false, // not hex
		"ALWR_abcd":                        false, // too short
		"OTHR_" + strings.Repeat("ab", 24): false, // wrong prefix
		"":                                 false,
	}
	for raw, want := range cases {
		if got := LooksLikeAPIKey(raw); got != want {
			t.Fatalf("LooksLikeAPIKey(%q)=%v, want %v", raw, got, want)
		}
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	enrollment, err := GenerateTOTPSecret("user@example.com")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret: %v", err)
	}
	if enrollment.Secret == "" || !strings.Contains(enrollment.ProvisioningURI, "otpauth://") {
		t.Fatalf("unexpected enrollment: %+v", enrollment)
	}

	now := time.Unix(1_700_000_000, 0)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, now, totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		if !VerifyTOTPCodeAt(enrollment.Secret, code, now.Add(offset)) {
			t.Fatalf("expected code valid at offset %v", offset)
		}
	}
	for _, offset := range []time.Duration{-60 * time.Second, 60 * time.Second} {
		if VerifyTOTPCodeAt(enrollment.Secret, code, now.Add(offset)) {
			t.Fatalf("expected code invalid at offset %v", offset)
		}
	}
}

func TestTOTPRejectsMalformedInput(t *testing.T) {
	enrollment, err := GenerateTOTPSecret("user@example.com")
	if err != nil {
		t.Fatalf("GenerateTOTPSecret: %v", err)
	}
	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		if VerifyTOTPCodeAt(enrollment.Secret, code, time.Now()) {
			t.Fatalf("expected rejection of %q", code)
		}
	}
}

func TestBackupCodesConsumeOnce(t *testing.T) {
	codes, err := GenerateBackupCodes(8)
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(codes) != 8 {
		t.Fatalf("expected 8 codes, got %d", len(codes))
	}

	remaining, ok := ConsumeBackupCode(codes, codes[3])
	if !ok {
		t.Fatal("expected match")
	}
	if len(remaining) != 7 {
		t.Fatalf("expected 7 remaining, got %d", len(remaining))
	}
	if _, ok := ConsumeBackupCode(remaining, codes[3]); ok {
		t.Fatal("consumed code matched a second time")
	}
	if _, ok := ConsumeBackupCode(remaining, "0000000000"); ok {
		t.Fatal("unknown code matched")
	}
}

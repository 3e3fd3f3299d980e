package privacy

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// PrivacyService handles participant credentials and the redaction of
// personal data in logs and exports.
type PrivacyService struct {
	salt []byte
}

// NewService creates a new privacy service. The salt keys phone hashes so
// they cannot be reversed with a dictionary of numbers.
func NewService(salt string) *PrivacyService {
	return &PrivacyService{salt: []byte(salt)}
}

// AnonymizeData returns a keyed SHA-256 digest of data.
func (ps *PrivacyService) AnonymizeData(data string) string {
	mac := hmac.New(sha256.New, ps.salt)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashPhone digests the normalized phone number, so formatting differences
// hash identically.
func (ps *PrivacyService) HashPhone(phone string) string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return ""
	}
	return ps.AnonymizeData(normalized)
}

// NewSecureToken returns a random capability token for self-service links.
func (ps *PrivacyService) NewSecureToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NormalizePhone keeps digits only, converting Arabic-Indic and Persian
// digits to ASCII. A leading + is preserved.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var sb strings.Builder
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r >= '٠' && r <= '٩':
			sb.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			sb.WriteRune('0' + (r - '۰'))
		case unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return ""
		}
	}
	if strings.TrimPrefix(sb.String(), "+") == "" {
		return ""
	}
	return sb.String()
}

// MaskPhone hides all but the first two and last two digits.
func MaskPhone(phone string) string {
	n := NormalizePhone(phone)
	digits := strings.TrimPrefix(n, "+")
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	prefix := ""
	if strings.HasPrefix(n, "+") {
		prefix = "+"
	}
	return prefix + digits[:2] + strings.Repeat("*", len(digits)-4) + digits[len(digits)-2:]
}

// MaskToken shortens a secure token for log lines.
func MaskToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "..."
}

// GetDataRetentionInfo describes how participant data is kept.
func (ps *PrivacyService) GetDataRetentionInfo() map[string]any {
	return map[string]any{
		"survey_data":          "kept until the participant is removed",
		"phone_in_logs":        "masked",
		"phone_anonymization":  "HMAC-SHA-256",
		"pair_cache_retention": "expires with cache TTL; dropped when a survey changes",
		"secure_token_bits":    192,
	}
}

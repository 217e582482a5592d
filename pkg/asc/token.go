package asc

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenLife is the lifetime of every minted token. Apple rejects tokens
// valid for longer than 20 minutes.
const tokenLife = 20 * time.Minute

const audience = "appstoreconnect-v1"

var (
	beginMarkerRe = regexp.MustCompile(`(?i)-{4,6}BEGIN[^-]*-{4,6}`)
	endMarkerRe   = regexp.MustCompile(`(?i)-{4,6}END[^-]*-{4,6}`)
	dashRunRe     = regexp.MustCompile(`^-+|-+$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// GenerateToken mints a fresh ES256 bearer token for the given key. A new
// token is generated per outbound request; nothing is cached.
func GenerateToken(pemContent, keyID, issuerID string) (string, error) {
	normalized, err := NormalizePEM(pemContent)
	if err != nil {
		return "", err
	}

	privateKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(normalized))
	if err != nil {
		return "", fmt.Errorf("%w: parsing EC private key: %v", ErrKeyFormat, err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    issuerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLife)),
		Audience:  jwt.ClaimStrings{audience},
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateKey reports whether the key material parses as an EC private
// key. Diagnostics probe; never returns an error.
func ValidateKey(pemContent string) bool {
	normalized, err := NormalizePEM(pemContent)
	if err != nil {
		return false
	}
	_, err = jwt.ParseECPrivateKeyFromPEM([]byte(normalized))
	return err == nil
}

// NormalizePEM rewrites arbitrarily mangled .p8 key material into
// canonical PEM: escaped newlines become real ones, BEGIN/END markers are
// forced to five dashes, and the base64 body is rewrapped at 64 columns.
func NormalizePEM(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: empty key material", ErrKeyFormat)
	}

	content = strings.ReplaceAll(content, `\n`, "\n")

	beginLoc := beginMarkerRe.FindStringIndex(content)
	if beginLoc == nil {
		return "", fmt.Errorf("%w: missing BEGIN marker; supply the full PEM-formatted key", ErrKeyFormat)
	}
	endLoc := endMarkerRe.FindStringIndex(content)
	if endLoc == nil || endLoc[0] < beginLoc[1] {
		return "", fmt.Errorf("%w: missing END marker; supply the full PEM-formatted key", ErrKeyFormat)
	}

	begin := normalizeMarker(content[beginLoc[0]:beginLoc[1]])
	end := normalizeMarker(content[endLoc[0]:endLoc[1]])

	body := whitespaceRe.ReplaceAllString(content[beginLoc[1]:endLoc[0]], "")
	var lines []string
	for len(body) > 64 {
		lines = append(lines, body[:64])
		body = body[64:]
	}
	if len(body) > 0 {
		lines = append(lines, body)
	}

	return begin + "\n" + strings.Join(lines, "\n") + "\n" + end + "\n", nil
}

func normalizeMarker(marker string) string {
	label := strings.TrimSpace(dashRunRe.ReplaceAllString(marker, ""))
	return "-----" + label + "-----"
}

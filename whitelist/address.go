package whitelist

import (
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/meinedokbox/dokbox/models"
)

// maxAddressLength is the RFC 5321 path limit.
const maxAddressLength = 254

// Normalize trims and lowercases an address. It does not validate.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate normalizes email and checks that it is a single bare
// local@domain address. Display names, angle brackets and lists are
// rejected with models.ErrInvalidFormat.
func Validate(email string) (string, error) {
	normalized := Normalize(email)
	if normalized == "" || len(normalized) > maxAddressLength {
		return "", fmt.Errorf("%q: %w", email, models.ErrInvalidFormat)
	}

	addrs, err := enmime.ParseAddressList(normalized)
	if err != nil || len(addrs) != 1 {
		return "", fmt.Errorf("%q: %w", email, models.ErrInvalidFormat)
	}
	addr := addrs[0]
	if addr.Name != "" || strings.ToLower(addr.Address) != normalized {
		return "", fmt.Errorf("%q: %w", email, models.ErrInvalidFormat)
	}

	at := strings.LastIndex(normalized, "@")
	if at <= 0 {
		return "", fmt.Errorf("%q: %w", email, models.ErrInvalidFormat)
	}
	domain := normalized[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", fmt.Errorf("%q: %w", email, models.ErrInvalidFormat)
	}

	return normalized, nil
}

// SenderAddress extracts the bare address from a header value such as
// `"Jane" <Jane@Example.com>` and normalizes it. Unparseable values are
// normalized as-is so that they simply fail the exact match.
func SenderAddress(header string) string {
	addrs, err := enmime.ParseAddressList(header)
	if err == nil && len(addrs) > 0 {
		return Normalize(addrs[0].Address)
	}
	return Normalize(header)
}

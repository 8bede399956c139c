// Package ekd implements the Entity Key Deriver: a pure function mapping a
// screening identity to a stable 256-bit fingerprint (§4.1).
package ekd

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidInput is returned when display_name is empty after normalization.
var ErrInvalidInput = errors.New("invalid input: display_name is empty after normalization")

// dobLayouts are the full-date, locale-agnostic ISO-parseable forms EKD
// renders into the fingerprint. A bare year is recognized for DOB-compatibility
// purposes (see NormalizeDOBYear) but does not produce a YYYY-MM-DD value, so
// per §3 it normalizes to empty for fingerprinting.
var dobLayouts = []string{
	"2006-01-02",
	"02-01-2006",
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKD)

// Fingerprint derives the stable 256-bit entity key as a hex string.
//
// Fingerprint(n, e, d) = SHA-256(normalize(n) | "|" | lowercase(e) | "|" | normalize(d))
func Fingerprint(displayName, entityType, dob string) (string, error) {
	normName, err := NormalizeName(displayName)
	if err != nil {
		return "", err
	}
	normDOB := NormalizeDOB(dob)
	normType := strings.ToLower(strings.TrimSpace(entityType))

	h := sha256.New()
	h.Write([]byte(normName))
	h.Write([]byte("|"))
	h.Write([]byte(normType))
	h.Write([]byte("|"))
	h.Write([]byte(normDOB))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NormalizeName applies NFKD fold, combining-mark stripping, punctuation
// removal, lowercasing, and whitespace collapse, per §3.
func NormalizeName(name string) (string, error) {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	lastWasSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			b.WriteRune(unicode.ToLower(r))
			lastWasSpace = false
		}
	}

	normalized := strings.TrimSpace(b.String())
	if normalized == "" {
		return "", ErrInvalidInput
	}
	return normalized, nil
}

// NormalizeDOB renders a date-of-birth as YYYY-MM-DD if parseable under any
// recognized form, else returns empty string.
func NormalizeDOB(dob string) string {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return ""
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, dob); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// NormalizeDOBYear extracts a 4-digit year from any recognized DOB form
// (full date or bare year), for the Matcher's year-only DOB compatibility
// check (§4.5). Returns empty if no year can be determined.
func NormalizeDOBYear(dob string) string {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return ""
	}
	if full := NormalizeDOB(dob); full != "" {
		return full[:4]
	}
	if t, err := time.Parse("2006", dob); err == nil {
		return t.Format("2006")
	}
	return ""
}

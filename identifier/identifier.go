// Package identifier validates product codes recovered from barcode
// scans. Codes are ISBN-shaped: 10 characters with a mod-11 weighted
// checksum, or 13 digits with an alternating-weight mod-10 checksum.
package identifier

import "regexp"

// candidatePattern matches runs of 10-17 characters that could spell
// a code once hyphens and spaces are stripped.
var candidatePattern = regexp.MustCompile(`[0-9Xx\- ]{10,17}`)

// IsValidISBN10 reports whether s is a structurally valid 10-character
// code: nine digits plus a digit-or-X check character, weighted sum
// divisible by 11.
func IsValidISBN10(s string) bool {
	if len(s) != 10 {
		return false
	}
	sum := 0
	for i := 0; i < 10; i++ {
		c := s[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c == 'X' && i == 9:
			v = 10
		default:
			return false
		}
		sum += (10 - i) * v
	}
	return sum%11 == 0
}

// IsValidISBN13 reports whether s is a structurally valid 13-digit
// code: alternating 1/3 weights, sum divisible by 10.
func IsValidISBN13(s string) bool {
	if len(s) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 13; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		v := int(c - '0')
		if i%2 == 1 {
			v *= 3
		}
		sum += v
	}
	return sum%10 == 0
}

// Extract scans decoded text for the first structurally valid code.
// Candidates are runs of digits, X/x, hyphens and spaces; each is
// normalized (separators stripped, uppercased) and tested as a
// 13-digit code first, then as a 10-character code. The second return
// is false when no candidate validates; that is an absence signal,
// not an error, and callers treat the raw text as an opaque payload.
func Extract(raw string) (string, bool) {
	for _, candidate := range candidatePattern.FindAllString(raw, -1) {
		code := normalize(candidate)
		if IsValidISBN13(code) {
			return code, true
		}
		if IsValidISBN10(code) {
			return code, true
		}
	}
	return "", false
}

func normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '-' || c == ' ':
		case c == 'x':
			out = append(out, 'X')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

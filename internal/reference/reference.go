// Package reference generates the short human-readable payment reference
// shown to the customer and reused as the order and invoice number.
package reference

import (
	"math/rand/v2"
	"regexp"
)

const (
	digits  = "0123456789"
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Pattern matches a well-formed payment reference: three digits followed by
// three uppercase letters, e.g. 482KXM.
var Pattern = regexp.MustCompile(`^[0-9]{3}[A-Z]{3}$`)

// Generate produces a fresh payment reference. It must be called once per
// checkout attempt; downstream steps reuse the embedded value rather than
// generating again.
func Generate() string {
	buf := make([]byte, 6)
	for i := 0; i < 3; i++ {
		buf[i] = digits[rand.IntN(len(digits))]
	}
	for i := 3; i < 6; i++ {
		buf[i] = letters[rand.IntN(len(letters))]
	}
	return string(buf)
}

// Valid reports whether s looks like a generated reference.
func Valid(s string) bool {
	return Pattern.MatchString(s)
}

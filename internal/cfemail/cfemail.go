// Package cfemail decodes the obfuscated e-mail attribute (data-cfemail) that
// directory pages embed instead of a plaintext mailto link.
//
// The encoding is a hex string whose first byte is an XOR mask applied to every
// following byte. It only hides addresses from naive scrapers.
package cfemail

import (
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidEncoding is returned when the input cannot be decoded.
var ErrInvalidEncoding = errors.New("invalid cfemail encoding")

// Decode reverses the mask-prefixed XOR encoding and returns the plaintext.
func Decode(encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrInvalidEncoding)
	}
	mask := raw[0]
	out := make([]byte, len(raw)-1)
	for i, b := range raw[1:] {
		out[i] = b ^ mask
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: decoded bytes are not utf-8", ErrInvalidEncoding)
	}
	return string(out), nil
}

// Encode produces the attribute value Decode accepts.
func Encode(mask byte, plaintext string) string {
	raw := make([]byte, 0, len(plaintext)+1)
	raw = append(raw, mask)
	for i := 0; i < len(plaintext); i++ {
		raw = append(raw, plaintext[i]^mask)
	}
	return hex.EncodeToString(raw)
}

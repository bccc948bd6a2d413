// Package codec turns frames into transport-safe text and back.
package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"trafficflow/internal/model"
)

// Encode returns the standard base64 text of a raw frame.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Normalize strips whitespace anywhere in the payload and pads it with '=' up to
// a multiple of four. A payload that is already valid is returned unchanged.
func Normalize(payload string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)

	if rem := len(clean) % 4; rem != 0 {
		clean += strings.Repeat("=", 4-rem)
	}
	return clean
}

// Decode normalizes and decodes a payload. Failures wrap model.ErrDecode.
func Decode(payload string) ([]byte, error) {
	clean := Normalize(payload)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty payload", model.ErrDecode)
	}

	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}
	return raw, nil
}

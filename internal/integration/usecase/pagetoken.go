package usecase

import (
	"encoding/base64"
	"strconv"
)

// Cached-listing page tokens are opaque to clients but are really just a row
// offset: the decimal string, URL-safe base64 encoded.

// EncodePageOffset turns a row offset into an opaque page token.
func EncodePageOffset(offset int) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodePageOffset reverses EncodePageOffset. Empty, garbage, and negative
// tokens all decode to offset 0 rather than failing the request.
func DecodePageOffset(token string) int {
	if token == "" {
		return 0
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

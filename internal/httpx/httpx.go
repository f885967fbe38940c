// Package httpx bounds JSON response reads from the registry and the
// companion service. Archive downloads are streamed by the toolchain
// package and do not go through these helpers.
package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize caps JSON API response bodies at 64 MB.
const MaxResponseSize int64 = 64 << 20

// UserAgent is sent on every outbound request.
const UserAgent = "openblock-cli/1.0"

// DecodeResponse reads a JSON response body (up to MaxResponseSize bytes)
// and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// ErrorBody returns a trimmed excerpt of an error response for diagnostics.
// Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4<<10))
	return strings.TrimSpace(string(data))
}

package toolchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// VerifyChecksum reports whether data matches expected. expected is either a
// bare hex digest or ALGORITHM:hexdigest; only the part after the first colon
// is compared, case-insensitively. An empty expected value always verifies.
func VerifyChecksum(data []byte, expected string) bool {
	algo, digest := parseChecksum(expected)
	if digest == "" {
		return true
	}
	h := newHasher(algo)
	h.Write(data)
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), digest)
}

// VerifyFileChecksum is VerifyChecksum over a file's contents.
func VerifyFileChecksum(path, expected string) (bool, error) {
	algo, digest := parseChecksum(expected)
	if digest == "" {
		return true, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	h := newHasher(algo)
	if _, err := io.Copy(h, file); err != nil {
		return false, fmt.Errorf("hash file: %w", err)
	}
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), digest), nil
}

func parseChecksum(expected string) (algo, digest string) {
	expected = strings.TrimSpace(expected)
	if i := strings.IndexByte(expected, ':'); i >= 0 {
		return expected[:i], strings.TrimSpace(expected[i+1:])
	}
	return "", expected
}

// newHasher selects BLAKE3 for a BLAKE3 prefix and SHA-256 otherwise.
func newHasher(algo string) hash.Hash {
	normalized := strings.ToLower(strings.ReplaceAll(algo, "-", ""))
	if normalized == "blake3" {
		return blake3.New()
	}
	return sha256.New()
}

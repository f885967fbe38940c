package toolchain

import "errors"

var (
	ErrToolchainNotFound   = errors.New("toolchain not found in packages index")
	ErrNoVersion           = errors.New("toolchain has no resolvable version")
	ErrUnsupportedPlatform = errors.New("no download available for this platform")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrUnsupportedArchive  = errors.New("unsupported archive format")
	ErrInvalidName         = errors.New("invalid toolchain name")
)

package codec

import "errors"

var (
	// ErrMalformedData is returned when a declared length would overrun the
	// buffer, a presence byte is neither 0 nor 1, or a key blob is shorter
	// than required.
	ErrMalformedData = errors.New("malformed data")

	// ErrEndOfStream is returned when the input ends before a fixed-size
	// field could be read.
	ErrEndOfStream = errors.New("unexpected end of stream")

	// ErrSizeViolation is returned when an account file is smaller than the
	// minimum or larger than MaxAccountFileSize.
	ErrSizeViolation = errors.New("account file size out of bounds")

	// ErrInvalidKeyMaterial is returned when encoding key material whose blobs
	// do not have their fixed sizes.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
)

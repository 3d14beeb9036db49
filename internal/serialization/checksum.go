package serialization

import (
	"crypto/sha256"
	"fmt"
)

// ChecksumSize is the length of the SHA-256 trailer closing a binary state.
const ChecksumSize = sha256.Size

// appendChecksum seals buf with the SHA-256 of its current contents.
func appendChecksum(buf []byte) []byte {
	sum := sha256.Sum256(buf)
	return append(buf, sum[:]...)
}

// verifyChecksum checks the trailer of data and returns the sealed body.
func verifyChecksum(data []byte) ([]byte, error) {
	if len(data) < ChecksumSize {
		return nil, fmt.Errorf("%w: %d bytes, no checksum", ErrTruncated, len(data))
	}
	body, trailer := data[:len(data)-ChecksumSize], data[len(data)-ChecksumSize:]
	if sha256.Sum256(body) != [ChecksumSize]byte(trailer) {
		return nil, ErrChecksumMismatch
	}
	return body, nil
}

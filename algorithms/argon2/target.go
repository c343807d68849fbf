package argon2

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/AGPFMiner/sepominer/fault"
)

//MeetsTarget reports hex(digest) <= target. Both sides are fixed width, so the
//string order is the big-endian numeric order; a width mismatch is an error.
func MeetsTarget(digest []byte, target string) (bool, error) {
	encoded := hex.EncodeToString(digest)
	if len(encoded) != len(target) {
		return false, fmt.Errorf("%w: digest has %d hex chars, target %d", fault.ErrLengthMismatch, len(encoded), len(target))
	}
	return encoded <= strings.ToLower(target), nil
}

//ValidateTarget checks a job target before any hashing starts
func ValidateTarget(target string, keyLength uint32) error {
	if _, err := hex.DecodeString(target); err != nil {
		return fmt.Errorf("%w: %v", fault.ErrMalformedTarget, err)
	}
	if uint64(len(target)) != 2*uint64(keyLength) {
		return fmt.Errorf("%w: target has %d hex chars, key_length %d", fault.ErrLengthMismatch, len(target), keyLength)
	}
	return nil
}

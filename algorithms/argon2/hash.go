//Package argon2 implements the faucet's memory-hard hash and its target check
package argon2

import (
	"fmt"

	xargon2 "golang.org/x/crypto/argon2"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/types"
)

const (
	modeD  = types.Argon2d
	modeI  = types.Argon2i
	modeID = types.Argon2id

	versionLegacy  = types.Argon2Version10
	versionCurrent = types.Argon2Version13
)

// limits enforced by the reference library
const (
	minOutLen      = 4
	maxParallelism = 1<<24 - 1
	// 4 GiB of working memory per call
	MaxMemoryCost = 1 << 22
)

//Validate checks params the same way the reference implementation rejects them
func Validate(p types.Argon2Params) error {
	switch p.Variant {
	case modeD, modeI, modeID:
	default:
		return fmt.Errorf("%w: %d", fault.ErrInvalidVariant, p.Variant)
	}
	switch p.Version {
	case versionLegacy, versionCurrent:
	default:
		return fmt.Errorf("%w: 0x%x", fault.ErrInvalidVersion, p.Version)
	}
	switch {
	case p.TimeCost < 1:
		return fmt.Errorf("%w: time_cost %d", fault.ErrInvalidCost, p.TimeCost)
	case p.Parallelism < 1 || p.Parallelism > maxParallelism:
		return fmt.Errorf("%w: parallelism %d", fault.ErrInvalidCost, p.Parallelism)
	case uint64(p.MemoryCost) < 2*syncPoints*uint64(p.Parallelism):
		return fmt.Errorf("%w: memory_cost %d below %d", fault.ErrInvalidCost, p.MemoryCost, 2*syncPoints*p.Parallelism)
	case p.MemoryCost > MaxMemoryCost:
		return fmt.Errorf("%w: memory_cost %d above %d", fault.ErrInvalidCost, p.MemoryCost, MaxMemoryCost)
	case p.KeyLength < minOutLen:
		return fmt.Errorf("%w: key_length %d", fault.ErrInvalidCost, p.KeyLength)
	}
	return nil
}

//Hash computes argon2(preImage || nonce) with an empty salt.
//The working memory is allocated per call and released on return.
func Hash(preImage, nonce []byte, p types.Argon2Params) ([]byte, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	password := make([]byte, 0, len(preImage)+len(nonce))
	password = append(password, preImage...)
	password = append(password, nonce...)

	var digest []byte
	if p.Version == versionCurrent && p.Parallelism <= 0xff && p.Variant != modeD {
		digest = fastKey(p, password)
	} else {
		digest = deriveKey(p.Variant, p.Version, password, nil, nil, nil, p.TimeCost, p.MemoryCost, p.Parallelism, p.KeyLength)
	}
	if uint32(len(digest)) != p.KeyLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", fault.ErrLengthMismatch, len(digest), p.KeyLength)
	}
	return digest, nil
}

// fastKey covers argon2i and argon2id v1.3 through x/crypto, which has
// assembly block compression on amd64.
func fastKey(p types.Argon2Params, password []byte) []byte {
	if p.Variant == modeI {
		return xargon2.Key(password, nil, p.TimeCost, p.MemoryCost, uint8(p.Parallelism), p.KeyLength)
	}
	return xargon2.IDKey(password, nil, p.TimeCost, p.MemoryCost, uint8(p.Parallelism), p.KeyLength)
}

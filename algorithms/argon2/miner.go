package argon2

import (
	"github.com/AGPFMiner/sepominer/types"
)

//AlgoName is the job algorithm tag served by this package
const AlgoName = "argon2"

func RegenHash(preImage, nonce []byte, params types.Argon2Params) ([]byte, error) {
	return Hash(preImage, nonce, params)
}

func DiffChecker(digest []byte, target string) (bool, error) {
	return MeetsTarget(digest, target)
}

type MiningFuncs struct{}

func (mf *MiningFuncs) RegenHash(preImage, nonce []byte, params types.Argon2Params) ([]byte, error) {
	return RegenHash(preImage, nonce, params)
}

func (mf *MiningFuncs) DiffChecker(digest []byte, target string) (bool, error) {
	return DiffChecker(digest, target)
}

//CheckJob rejects a job whose parameters or target cannot produce a comparable digest
func (mf *MiningFuncs) CheckJob(job *types.Job) error {
	if err := Validate(job.Params); err != nil {
		return err
	}
	return ValidateTarget(job.Target, job.Params.KeyLength)
}

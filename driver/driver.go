package driver

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/mining"
	"github.com/AGPFMiner/sepominer/types"
)

//MiningWork is the engine's private snapshot of one assigned job
type MiningWork struct {
	Job       types.Job
	Funcs     MiningFuncs
	StartedAt time.Time

	generation uint64
	nonce      uint64
	attempts   uint64
}

//nextNonce hands out each counter value exactly once across all workers
func (w *MiningWork) nextNonce() uint64 {
	return atomic.AddUint64(&w.nonce, 1) - 1
}

func (w *MiningWork) Attempts() uint64 {
	return atomic.LoadUint64(&w.attempts)
}

//FormatNonce renders a nonce counter in its wire form, 16 lowercase hex digits
func FormatNonce(n uint64) string {
	return fmt.Sprintf("%016x", n)
}

func ParseNonce(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("nonce %q: want 16 hex digits", s)
	}
	return strconv.ParseUint(s, 16, 64)
}

type MiningFuncs interface {
	RegenHash(preImage, nonce []byte, params types.Argon2Params) ([]byte, error)
	DiffChecker(digest []byte, target string) (bool, error)
}

//JobChecker is implemented by MiningFuncs that can reject a job before hashing
type JobChecker interface {
	CheckJob(job *types.Job) error
}

type EventKind int

const (
	ShareFound EventKind = iota + 1
	VerifyDone
	JobFailed
)

func (k EventKind) String() string {
	switch k {
	case ShareFound:
		return "share-found"
	case VerifyDone:
		return "verify-done"
	case JobFailed:
		return "job-failed"
	}
	return "unknown"
}

//Event is what the engine reports back to its client
type Event struct {
	Kind  EventKind
	JobID string
	Nonce string
	// Digest is set for found shares and answered verifies
	Digest   []byte
	Hashrate uint64
	ShareID  string
	Result   string
	Err      error
}

type Driver interface {
	Start()
	Stop()
	GetDriverStats() types.DriverStates
	RegisterMiningFuncs(string, MiningFuncs)
	Assign(job *types.Job)
	Verify(req *types.VerifyRequest)
	Events() <-chan Event
	HashRateReport() mining.HashRateReport
}

//VerifyPolicy decides what a verify response reports
type VerifyPolicy interface {
	VerifyResult(req *types.VerifyRequest, digest []byte, err error) string
}

const (
	VerifyValid   = "valid"
	VerifyInvalid = "invalid"
)

//StatusPolicy reports whether recomputation succeeded with the requested output length
type StatusPolicy struct{}

func (StatusPolicy) VerifyResult(req *types.VerifyRequest, digest []byte, err error) string {
	if err != nil || uint32(len(digest)) != req.Params.KeyLength {
		return VerifyInvalid
	}
	return VerifyValid
}

//DigestPolicy reports the recomputed digest so the server can judge it
type DigestPolicy struct{}

func (DigestPolicy) VerifyResult(req *types.VerifyRequest, digest []byte, err error) string {
	if err != nil {
		return VerifyInvalid
	}
	return hex.EncodeToString(digest)
}

func PolicyByName(name string) (VerifyPolicy, error) {
	switch name {
	case "", "status":
		return StatusPolicy{}, nil
	case "digest":
		return DigestPolicy{}, nil
	}
	return nil, fault.Errorf(fault.Config, "verify-policy", "unknown policy %q", name)
}

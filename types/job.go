package types

import "fmt"

//Argon2 variant tags as sent in the "type" field
const (
	Argon2d  uint8 = 0
	Argon2i  uint8 = 1
	Argon2id uint8 = 2
)

//Argon2 versions
const (
	Argon2Version10 uint32 = 0x10
	Argon2Version13 uint32 = 0x13
)

//Argon2Params is the cost and variant configuration attached to a job or verify request
type Argon2Params struct {
	Variant     uint8  `json:"type" mapstructure:"type"`
	Version     uint32 `json:"version" mapstructure:"version"`
	TimeCost    uint32 `json:"time_cost" mapstructure:"time_cost"`
	MemoryCost  uint32 `json:"memory_cost" mapstructure:"memory_cost"`
	Parallelism uint32 `json:"parallelism" mapstructure:"parallelism"`
	KeyLength   uint32 `json:"key_length" mapstructure:"key_length"`
}

func (p Argon2Params) String() string {
	return fmt.Sprintf("type=%d v=0x%x t=%d m=%d p=%d len=%d",
		p.Variant, p.Version, p.TimeCost, p.MemoryCost, p.Parallelism, p.KeyLength)
}

//Job is the current mining assignment; a newer job replaces it
type Job struct {
	ID        string
	PreImage  []byte
	Target    string
	Algorithm string
	Params    Argon2Params
}

//VerifyRequest asks for one recomputation outside normal mining order
type VerifyRequest struct {
	ShareID  string
	Nonce    string
	PreImage []byte
	Params   Argon2Params
}

type ShareStatus string

const (
	ShareFound     ShareStatus = "found"
	ShareSubmitted ShareStatus = "submitted"
	ShareValid     ShareStatus = "valid"
	ShareInvalid   ShareStatus = "invalid"
	ShareDuplicate ShareStatus = "duplicate"
	ShareStale     ShareStatus = "stale"
)

//Terminal reports whether the server has adjudicated the share
func (s ShareStatus) Terminal() bool {
	switch s {
	case ShareValid, ShareInvalid, ShareDuplicate, ShareStale:
		return true
	}
	return false
}

//ParseShareStatus accepts only the statuses a result message may carry
func ParseShareStatus(s string) (ShareStatus, bool) {
	st := ShareStatus(s)
	return st, st.Terminal()
}

type Share struct {
	ID     string      `json:"shareId"`
	JobID  string      `json:"jobId"`
	Nonce  string      `json:"nonce"`
	Status ShareStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

//Session lives for one connection and is owned by the faucet client
type Session struct {
	ID            string  `json:"session"`
	Wallet        string  `json:"wallet"`
	TargetAddr    string  `json:"targetAddr"`
	HashrateLimit *uint64 `json:"hashrateLimit,omitempty"`
	Difficulty    string  `json:"difficulty"`
	Claimable     string  `json:"claimable"`
	Balance       string  `json:"balance,omitempty"`
}

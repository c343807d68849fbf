package types

//Pool describes the faucet endpoints a session is opened against
type Pool struct {
	SessionURL string `json:"sessionUrl"`
	SocketURL  string `json:"socketUrl"`
	Wallet     string `json:"wallet"`
	Algo       string `json:"algo"`
}

type PoolConnectionStates int

const (
	Disconnected PoolConnectionStates = iota + 1
	Bootstrapping
	Connected
	Active
	Closing
)

func (s PoolConnectionStates) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Bootstrapping:
		return "bootstrapping"
	case Connected:
		return "connected"
	case Active:
		return "active"
	case Closing:
		return "closing"
	}
	return "unknown"
}

type PoolStates struct {
	Status       PoolConnectionStates `json:"status"`
	State        string               `json:"state"`
	Wallet       string               `json:"wallet"`
	PoolAddr     string               `json:"pooladdr"`
	Algo         string               `json:"algo"`
	Session      Session              `json:"session"`
	Accept       int32                `json:"accept"`
	Reject       int32                `json:"reject"`
	Stale        int32                `json:"stale"`
	Discard      int32                `json:"discard"`
	Unmatched    int32                `json:"unmatched"`
	LastAccepted int64                `json:"lastaccepted"`
	Active       bool                 `json:"active"`
}

type EngineStatus int

const (
	Idle EngineStatus = iota + 1
	Searching
	PausedForVerify
	Stopped
)

func (s EngineStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case PausedForVerify:
		return "paused-for-verify"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

type DriverStates struct {
	DriverName  string       `json:"name"`
	Status      EngineStatus `json:"status"`
	State       string       `json:"state"`
	Workers     int          `json:"workers"`
	JobID       string       `json:"jobId"`
	JobAttempts uint64       `json:"jobAttempts"`
	TotalHashes uint64       `json:"totalHashes"`
	Verified    uint64       `json:"verified"`
	Hashrate    [3]float64   `json:"hashrate"`
	Algo        string       `json:"algo"`
}

type MinerStatus struct {
	Devs      []*DriverStates `json:"devs"`
	MinerDown bool            `json:"minerDown"`
	MinerUp   bool            `json:"minerUp"`
	Pools     []*PoolStates   `json:"pools"`
	Time      int64           `json:"time"`
}

type Status struct {
	Status *MinerStatus `json:"status"`
}

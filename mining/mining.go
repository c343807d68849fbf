package mining

import (
	"time"

	"github.com/AGPFMiner/sepominer/statistics"

	"go.uber.org/zap"
)

//HashRateReport is produced by the engine for logs and the status API
type HashRateReport struct {
	JobID       string
	Attempts    uint64
	TotalHashes uint64
	HashRate    [3]float64
	Verified    uint64
}

type MinerArgs struct {
	Workers int
	// hash calls a worker makes between control checks
	Checkpoint       int
	VerifyPolicy     string
	ProgressInterval time.Duration
	Metrics          *statistics.Metrics
	Logger           *zap.Logger
}

//WithDefaults fills zero values
func (a MinerArgs) WithDefaults(workers int) MinerArgs {
	if a.Workers < 1 {
		a.Workers = workers
	}
	if a.Checkpoint < 1 {
		a.Checkpoint = 1
	}
	if a.ProgressInterval <= 0 {
		a.ProgressInterval = 30 * time.Second
	}
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	return a
}

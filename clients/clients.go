//Package clients provides the contract between work providers and the miner and some common bookkeeping
package clients

import (
	"context"
	"sync"

	"github.com/AGPFMiner/sepominer/types"
)

//DeprecatedJobCall is a function that can be registered on a client to be executed when
// a job is replaced and its outstanding work abandoned
type DeprecatedJobCall func(jobid string)

// Client defines the interface for a client towards a work provider
type Client interface {
	//Run serves one session and returns when it ends
	Run(ctx context.Context) error
	AlgoName() (algo string)
	PoolConnectionStates() (stats types.PoolConnectionStates)
	GetPoolStats() (stats types.PoolStates)
	SetDeprecatedJobCall(call DeprecatedJobCall)
}

//BaseClient tracks the jobs handed to a driver so they can be deprecated together
type BaseClient struct {
	mu              sync.Mutex
	outstandingJobs map[string]struct{}

	deprecatedJobCall DeprecatedJobCall
}

//DeprecateOutstandingJobs forgets every outstanding job, runs the registered call for each
// and returns how many there were
func (sc *BaseClient) DeprecateOutstandingJobs() int {
	sc.mu.Lock()
	jobs := sc.outstandingJobs
	sc.outstandingJobs = make(map[string]struct{})
	call := sc.deprecatedJobCall
	sc.mu.Unlock()

	if call != nil {
		for jobid := range jobs {
			call(jobid)
		}
	}
	return len(jobs)
}

// AddJobToDeprecate add the jobid to the list of jobs that should be deprecated when the times comes
func (sc *BaseClient) AddJobToDeprecate(jobid string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.outstandingJobs == nil {
		sc.outstandingJobs = make(map[string]struct{})
	}
	sc.outstandingJobs[jobid] = struct{}{}
}

//IsOutstanding reports whether jobid has been added and not yet deprecated
func (sc *BaseClient) IsOutstanding(jobid string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, ok := sc.outstandingJobs[jobid]
	return ok
}

//SetDeprecatedJobCall sets the function to be called when the previous jobs should be abandoned
func (sc *BaseClient) SetDeprecatedJobCall(call DeprecatedJobCall) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.deprecatedJobCall = call
}

package driver

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/mining"
	"github.com/AGPFMiner/sepominer/statistics"
	"github.com/AGPFMiner/sepominer/types"
)

const eventBuffer = 64

type pendingVerify struct {
	req      *types.VerifyRequest
	err      error
	received time.Time
}

//CPU searches nonces on a pool of goroutines with at most one hash call in flight per worker.
//Workers look at the control state every checkpoint hash calls.
type CPU struct {
	workers    int
	checkpoint int
	policy     VerifyPolicy
	metrics    *statistics.Metrics
	logger     *zap.Logger
	progress   *rate.Limiter

	MiningFuncs map[string]MiningFuncs
	verifyFuncs MiningFuncs

	mu         sync.Mutex
	work       *MiningWork
	generation uint64
	verifies   []pendingVerify
	verifying  int
	started    bool
	stopped    bool
	wake       chan struct{}
	hr         statistics.HashRate
	hrGen      uint64
	hrLast     uint64

	totalHashes uint64
	verified    uint64

	outMu     sync.Mutex
	outbox    []Event
	outNotify chan struct{}
	events    chan Event

	verifyNotify chan struct{}
	driverQuit   chan struct{}
	wg           sync.WaitGroup
}

func NewCPU(args mining.MinerArgs) *CPU {
	cpu := &CPU{}
	cpu.Init(args)
	return cpu
}

func (cpu *CPU) Init(args mining.MinerArgs) {
	args = args.WithDefaults(runtime.NumCPU())
	policy, err := PolicyByName(args.VerifyPolicy)
	if err != nil {
		args.Logger.Warn("Falling back to status verify policy", zap.Error(err))
		policy = StatusPolicy{}
	}

	cpu.workers = args.Workers
	cpu.checkpoint = args.Checkpoint
	cpu.policy = policy
	cpu.metrics = args.Metrics
	cpu.logger = args.Logger.With(zap.String("driver", "cpu"))
	cpu.progress = rate.NewLimiter(rate.Every(args.ProgressInterval), 1)

	cpu.MiningFuncs = make(map[string]MiningFuncs)
	cpu.wake = make(chan struct{})
	cpu.outNotify = make(chan struct{}, 1)
	cpu.events = make(chan Event, eventBuffer)
	cpu.verifyNotify = make(chan struct{}, 1)
	cpu.driverQuit = make(chan struct{})
}

//SetVerifyPolicy swaps what verify responses report
func (cpu *CPU) SetVerifyPolicy(policy VerifyPolicy) {
	cpu.mu.Lock()
	cpu.policy = policy
	cpu.mu.Unlock()
}

//RegisterMiningFuncs binds an algorithm tag; the first one registered also serves verify requests
func (cpu *CPU) RegisterMiningFuncs(algo string, mf MiningFuncs) {
	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	cpu.MiningFuncs[algo] = mf
	if cpu.verifyFuncs == nil {
		cpu.verifyFuncs = mf
	}
}

func (cpu *CPU) Events() <-chan Event {
	return cpu.events
}

func (cpu *CPU) Start() {
	cpu.mu.Lock()
	if cpu.started || cpu.stopped {
		cpu.mu.Unlock()
		return
	}
	cpu.started = true
	cpu.mu.Unlock()

	cpu.wg.Add(cpu.workers + 3)
	for i := 0; i < cpu.workers; i++ {
		go cpu.worker()
	}
	go cpu.verifier()
	go cpu.pump()
	go cpu.nonceStatistic()
	cpu.logger.Info("Starting CPU driver", zap.Int("workers", cpu.workers), zap.Int("checkpoint", cpu.checkpoint))
}

//Stop waits for in-flight hash calls to return; their results are dropped and Events is closed
func (cpu *CPU) Stop() {
	cpu.mu.Lock()
	if cpu.stopped {
		cpu.mu.Unlock()
		return
	}
	cpu.stopped = true
	cpu.work = nil
	cpu.verifies = nil
	close(cpu.driverQuit)
	cpu.broadcastLocked()
	cpu.mu.Unlock()

	cpu.wg.Wait()
	close(cpu.events)
	cpu.logger.Info("CPU driver stopped", zap.Uint64("hashes", atomic.LoadUint64(&cpu.totalHashes)))
}

//Assign replaces the current job and returns without waiting for in-flight hashes
func (cpu *CPU) Assign(job *types.Job) {
	if job == nil {
		return
	}
	snapshot := &types.Job{}
	err := copier.CopyWithOption(snapshot, job, copier.Option{DeepCopy: true})

	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	if cpu.stopped {
		return
	}
	funcs, ok := cpu.MiningFuncs[snapshot.Algorithm]
	if err == nil && !ok {
		err = fmt.Errorf("%w: %q", fault.ErrUnknownAlgorithm, snapshot.Algorithm)
	}
	if checker, isChecker := funcs.(JobChecker); err == nil && isChecker {
		err = checker.CheckJob(snapshot)
	}

	if prev := cpu.work; prev != nil {
		cpu.metrics.Job("abandoned")
		cpu.logger.Debug("Abandoning job", zap.String("job", prev.Job.ID), zap.Uint64("attempts", prev.Attempts()))
	}
	cpu.generation++
	cpu.hr.Reset()
	cpu.hrGen, cpu.hrLast = cpu.generation, 0

	if err != nil {
		cpu.work = nil
		cpu.abortLocked(snapshot.ID, err)
		return
	}
	cpu.work = &MiningWork{
		Job:        *snapshot,
		Funcs:      funcs,
		StartedAt:  time.Now(),
		generation: cpu.generation,
	}
	cpu.metrics.Job("assigned")
	cpu.logger.Info("New job",
		zap.String("job", snapshot.ID),
		zap.String("target", snapshot.Target),
		zap.Stringer("argon2", snapshot.Params))
	cpu.broadcastLocked()
}

//Verify queues a recomputation that runs ahead of any search; each request yields one VerifyDone
func (cpu *CPU) Verify(req *types.VerifyRequest) {
	if req == nil {
		return
	}
	snapshot := &types.VerifyRequest{}
	err := copier.CopyWithOption(snapshot, req, copier.Option{DeepCopy: true})
	if err != nil {
		snapshot = req
	}

	cpu.mu.Lock()
	if cpu.stopped {
		cpu.mu.Unlock()
		return
	}
	cpu.verifies = append(cpu.verifies, pendingVerify{req: snapshot, err: err, received: time.Now()})
	cpu.verifying++
	cpu.mu.Unlock()

	select {
	case cpu.verifyNotify <- struct{}{}:
	default:
	}
}

func (cpu *CPU) Status() types.EngineStatus {
	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	return cpu.statusLocked()
}

func (cpu *CPU) statusLocked() types.EngineStatus {
	switch {
	case cpu.stopped:
		return types.Stopped
	case cpu.verifying > 0:
		return types.PausedForVerify
	case cpu.work != nil:
		return types.Searching
	}
	return types.Idle
}

func (cpu *CPU) HashRateReport() mining.HashRateReport {
	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	return cpu.reportLocked()
}

func (cpu *CPU) reportLocked() (report mining.HashRateReport) {
	report.TotalHashes = atomic.LoadUint64(&cpu.totalHashes)
	report.Verified = atomic.LoadUint64(&cpu.verified)
	if w := cpu.work; w != nil {
		report.JobID = w.Job.ID
		report.Attempts = w.Attempts()
	}
	report.HashRate = [3]float64{cpu.hr.Average(60), cpu.hr.Average(300), cpu.hr.Average(3600)}
	return
}

func (cpu *CPU) GetDriverStats() (stats types.DriverStates) {
	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	report := cpu.reportLocked()
	stats.DriverName = "CPU"
	stats.Status = cpu.statusLocked()
	stats.State = stats.Status.String()
	stats.Workers = cpu.workers
	stats.JobID = report.JobID
	stats.JobAttempts = report.Attempts
	stats.TotalHashes = report.TotalHashes
	stats.Verified = report.Verified
	stats.Hashrate = report.HashRate
	if cpu.work != nil {
		stats.Algo = cpu.work.Job.Algorithm
	}
	return
}

func (cpu *CPU) broadcastLocked() {
	close(cpu.wake)
	cpu.wake = make(chan struct{})
}

// currentRateLocked falls back to the job average until the first sample lands
func (cpu *CPU) currentRateLocked() float64 {
	if avg := cpu.hr.Average(60); avg > 0 {
		return avg
	}
	if w := cpu.work; w != nil {
		if elapsed := time.Since(w.StartedAt).Seconds(); elapsed > 0 {
			return float64(w.Attempts()) / elapsed
		}
	}
	return 0
}

func (cpu *CPU) abortLocked(jobID string, err error) {
	cpu.metrics.Job("failed")
	cpu.logger.Error("Job aborted", zap.String("job", jobID), zap.Error(err))
	cpu.emitLocked(Event{Kind: JobFailed, JobID: jobID, Err: err})
}

func (cpu *CPU) emitLocked(ev Event) {
	cpu.outMu.Lock()
	cpu.outbox = append(cpu.outbox, ev)
	cpu.outMu.Unlock()
	select {
	case cpu.outNotify <- struct{}{}:
	default:
	}
}

// nextWork returns the work to hash, or the channel to park on.
// Both nil means the driver stopped.
func (cpu *CPU) nextWork() (*MiningWork, <-chan struct{}) {
	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	switch {
	case cpu.stopped:
		return nil, nil
	case cpu.work == nil || cpu.verifying > 0:
		return nil, cpu.wake
	}
	return cpu.work, nil
}

func (cpu *CPU) worker() {
	defer cpu.wg.Done()
	for {
		work, wake := cpu.nextWork()
		if work == nil {
			if wake == nil {
				return
			}
			select {
			case <-wake:
			case <-cpu.driverQuit:
				return
			}
			continue
		}
		for i := 0; i < cpu.checkpoint; i++ {
			if !cpu.attempt(work) {
				break
			}
		}
	}
}

// attempt hashes one nonce and reports whether w is still the current work.
// The result only counts if w was not replaced while the hash ran.
func (cpu *CPU) attempt(w *MiningWork) bool {
	nonce := FormatNonce(w.nextNonce())
	digest, err := w.Funcs.RegenHash(w.Job.PreImage, []byte(nonce), w.Job.Params)
	meets := false
	if err == nil {
		meets, err = w.Funcs.DiffChecker(digest, w.Job.Target)
	}

	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	if cpu.stopped || cpu.work != w {
		return false
	}
	if err != nil {
		cpu.work = nil
		cpu.abortLocked(w.Job.ID, err)
		return false
	}
	atomic.AddUint64(&w.attempts, 1)
	atomic.AddUint64(&cpu.totalHashes, 1)
	cpu.metrics.Hash()
	if meets {
		cpu.metrics.Share(string(types.ShareFound))
		cpu.logger.Info("Share found", zap.String("job", w.Job.ID), zap.String("nonce", nonce))
		cpu.emitLocked(Event{
			Kind:     ShareFound,
			JobID:    w.Job.ID,
			Nonce:    nonce,
			Digest:   digest,
			Hashrate: uint64(cpu.currentRateLocked()),
		})
	}
	return true
}

func (cpu *CPU) verifier() {
	defer cpu.wg.Done()
	for {
		select {
		case <-cpu.driverQuit:
			return
		case <-cpu.verifyNotify:
		}
		for cpu.serveVerify() {
		}
	}
}

func (cpu *CPU) serveVerify() bool {
	cpu.mu.Lock()
	if cpu.stopped || len(cpu.verifies) == 0 {
		cpu.mu.Unlock()
		return false
	}
	pv := cpu.verifies[0]
	cpu.verifies = cpu.verifies[1:]
	funcs, policy := cpu.verifyFuncs, cpu.policy
	cpu.mu.Unlock()

	var digest []byte
	err := pv.err
	if err == nil && funcs == nil {
		err = fault.ErrUnknownAlgorithm
	}
	if err == nil {
		digest, err = funcs.RegenHash(pv.req.PreImage, []byte(pv.req.Nonce), pv.req.Params)
	}
	result := policy.VerifyResult(pv.req, digest, err)

	cpu.mu.Lock()
	defer cpu.mu.Unlock()
	cpu.verifying--
	if cpu.stopped {
		return false
	}
	atomic.AddUint64(&cpu.verified, 1)
	cpu.metrics.Verify(time.Since(pv.received).Seconds())
	if err != nil {
		cpu.logger.Warn("Verify recomputation failed", zap.String("share", pv.req.ShareID), zap.Error(err))
	}
	cpu.emitLocked(Event{
		Kind:    VerifyDone,
		ShareID: pv.req.ShareID,
		Nonce:   pv.req.Nonce,
		Digest:  digest,
		Result:  result,
		Err:     err,
	})
	if cpu.verifying == 0 {
		cpu.broadcastLocked()
	}
	return true
}

// pump delivers queued events in order so emitters never block on the consumer
func (cpu *CPU) pump() {
	defer cpu.wg.Done()
	for {
		select {
		case <-cpu.driverQuit:
			return
		case <-cpu.outNotify:
		}
		for {
			cpu.outMu.Lock()
			if len(cpu.outbox) == 0 {
				cpu.outMu.Unlock()
				break
			}
			ev := cpu.outbox[0]
			cpu.outbox = cpu.outbox[1:]
			cpu.outMu.Unlock()

			select {
			case cpu.events <- ev:
			case <-cpu.driverQuit:
				return
			}
		}
	}
}

func (cpu *CPU) nonceStatistic() {
	defer cpu.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-cpu.driverQuit:
			return
		case <-ticker.C:
		}

		cpu.mu.Lock()
		w := cpu.work
		if w != nil {
			if w.generation != cpu.hrGen {
				cpu.hrGen, cpu.hrLast = w.generation, 0
			}
			attempts := w.Attempts()
			cpu.hr.Add(float64(attempts - cpu.hrLast))
			cpu.hrLast = attempts
		}
		current := cpu.currentRateLocked()
		report := cpu.reportLocked()
		cpu.mu.Unlock()

		cpu.metrics.SetHashrate(current)
		if w != nil && cpu.progress.Allow() {
			cpu.logger.Info("Hashrate",
				zap.String("job", report.JobID),
				zap.Uint64("attempts", report.Attempts),
				zap.Float64("1m", report.HashRate[0]),
				zap.Float64("5m", report.HashRate[1]),
				zap.Float64("1h", report.HashRate[2]))
		}
	}
}

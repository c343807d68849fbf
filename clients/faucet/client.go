//Package faucet implements the client side of the pk910 proof-of-work faucet protocol
package faucet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AGPFMiner/sepominer/algorithms/argon2"
	"github.com/AGPFMiner/sepominer/clients"
	"github.com/AGPFMiner/sepominer/driver"
	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/statistics"
	"github.com/AGPFMiner/sepominer/types"
)

const defaultShareTTL = 10 * time.Minute

type Config struct {
	Pool         types.Pool
	MinerVersion string
	CaptchaToken string
	PingInterval time.Duration
	ShareTTL     time.Duration
	Bootstrapper Bootstrapper
	Dialer       Dialer
	Metrics      *statistics.Metrics
	Logger       *zap.Logger
}

//Client runs one faucet session: bootstrap, connect, send start, then
//translate between wire messages and the mining driver until the connection ends.
//A Client and its driver are used for a single Run.
type Client struct {
	clients.BaseClient

	cfg     Config
	engine  driver.Driver
	tracker *ShareTracker
	logger  *zap.Logger
	metrics *statistics.Metrics

	mu        sync.Mutex
	state     types.PoolConnectionStates
	activated bool
	session   types.Session
	stats     types.PoolStates
}

func NewClient(cfg Config, engine driver.Driver) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ShareTTL <= 0 {
		cfg.ShareTTL = defaultShareTTL
	}
	if cfg.Pool.Algo == "" {
		cfg.Pool.Algo = argon2.AlgoName
	}
	if cfg.Bootstrapper == nil {
		cfg.Bootstrapper = &HTTPBootstrapper{URL: cfg.Pool.SessionURL}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &WebsocketDialer{}
	}
	return &Client{
		cfg:     cfg,
		engine:  engine,
		tracker: NewShareTracker(cfg.ShareTTL),
		logger:  cfg.Logger.With(zap.String("pool", cfg.Pool.SocketURL)),
		metrics: cfg.Metrics,
		state:   types.Disconnected,
		session: types.Session{Wallet: cfg.Pool.Wallet},
	}
}

func (c *Client) AlgoName() string {
	return c.cfg.Pool.Algo
}

func (c *Client) PoolConnectionStates() types.PoolConnectionStates {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

//Activated reports whether the session ever got past the start message
func (c *Client) Activated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activated
}

func (c *Client) Session() types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) GetPoolStats() (stats types.PoolStates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats = c.stats
	stats.Status = c.state
	stats.State = c.state.String()
	stats.Wallet = c.cfg.Pool.Wallet
	stats.PoolAddr = c.cfg.Pool.SocketURL
	stats.Algo = c.cfg.Pool.Algo
	stats.Session = c.session
	stats.Active = c.state == types.Active
	return
}

func (c *Client) setState(state types.PoolConnectionStates) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	if state == types.Active {
		c.activated = true
	}
	c.mu.Unlock()
	if prev != state {
		c.logger.Debug("Connection state", zap.Stringer("from", prev), zap.Stringer("to", state))
	}
}

//Run returns nil when ctx is cancelled; any other return is fatal for the session
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(types.Disconnected)

	c.setState(types.Bootstrapping)
	sessionID, err := c.cfg.Bootstrapper.StartSession(ctx, c.cfg.Pool.Wallet, c.cfg.CaptchaToken)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session.ID = sessionID
	c.mu.Unlock()
	c.logger.Info("Session created", zap.String("session", sessionID))

	socketURL, err := SocketURL(c.cfg.Pool.SocketURL, sessionID)
	if err != nil {
		return err
	}
	tr, err := c.cfg.Dialer.Dial(ctx, socketURL)
	if err != nil {
		return fault.Wrap(fault.Transport, "dial", err)
	}
	defer tr.Close()
	c.setState(types.Connected)

	err = c.send(tr, StartMessage{Wallet: c.cfg.Pool.Wallet, MinerVersion: c.cfg.MinerVersion})
	if err != nil {
		return err
	}
	c.setState(types.Active)
	c.logger.Info("Started mining", zap.String("wallet", c.cfg.Pool.Wallet))

	c.engine.Start()
	defer func() {
		c.setState(types.Closing)
		c.engine.Stop()
		c.DeprecateOutstandingJobs()
	}()
	return c.serve(ctx, tr)
}

func (c *Client) serve(ctx context.Context, tr Transport) error {
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan Frame)

	g.Go(func() error {
		for {
			f, err := tr.Receive()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fault.Wrap(fault.Transport, "receive", err)
			}
			select {
			case frames <- f:
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		// closing unblocks the reader
		defer tr.Close()
		return c.dispatch(gctx, tr, frames)
	})
	return g.Wait()
}

func (c *Client) dispatch(ctx context.Context, tr Transport, frames <-chan Frame) error {
	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	events := c.engine.Events()

	for {
		select {
		case <-ctx.Done():
			c.setState(types.Closing)
			if err := tr.Send(Frame{Kind: CloseFrame}); err != nil {
				c.logger.Debug("Close frame not sent", zap.Error(err))
			}
			return nil
		case f := <-frames:
			if err := c.handleFrame(tr, f); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := c.handleEvent(tr, ev); err != nil {
				return err
			}
		case <-ping:
			if err := c.send(tr, PingMessage{}); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handleFrame(tr Transport, f Frame) error {
	switch f.Kind {
	case TextFrame:
		msg, err := ParseServerMessage(f.Data)
		if err != nil {
			c.metrics.Message("in", "rejected")
			c.logger.Warn("Rejected message", zap.ByteString("data", truncate(f.Data, 512)), zap.Error(err))
			return nil
		}
		c.metrics.Message("in", msg.Action())
		c.handleMessage(msg)
	case BinaryFrame:
		c.logger.Warn("Received unexpected binary message", zap.Int("size", len(f.Data)))
	case PingFrame:
		if err := tr.Send(Frame{Kind: PongFrame, Data: f.Data}); err != nil {
			return fault.Wrap(fault.Transport, "pong", err)
		}
	case PongFrame:
		c.logger.Debug("Pong")
	case CloseFrame:
		c.setState(types.Closing)
		c.logger.Info("Server closed connection", zap.ByteString("reason", f.Data))
		return fault.ErrConnectionClosed
	}
	return nil
}

func (c *Client) handleMessage(msg ServerMessage) {
	switch m := msg.(type) {
	case *InitMessage:
		c.mu.Lock()
		c.session.ID = m.Session
		c.session.TargetAddr = m.TargetAddr
		c.session.HashrateLimit = m.Hashrate
		c.session.Difficulty = m.Difficulty
		c.session.Claimable = m.Claimable
		c.mu.Unlock()
		c.logger.Info("Init",
			zap.String("session", m.Session),
			zap.String("targetAddr", m.TargetAddr),
			zap.String("difficulty", m.Difficulty),
			zap.String("claimable", m.Claimable))
	case *JobMessage:
		if n := c.DeprecateOutstandingJobs(); n > 0 {
			c.mu.Lock()
			c.stats.Discard += int32(n)
			c.mu.Unlock()
		}
		c.AddJobToDeprecate(m.ID)
		c.engine.Assign(m.Job())
	case *VerifyMessage:
		c.logger.Debug("Verify", zap.String("share", m.ShareID), zap.String("nonce", m.Nonce))
		c.engine.Verify(m.Request())
	case *ResultMessage:
		c.handleResult(m)
	case *UpdateMessage:
		c.mu.Lock()
		if m.Session != "" {
			c.session.ID = m.Session
		}
		c.session.Claimable = m.Claimable
		c.mu.Unlock()
		c.logger.Info("Update", zap.String("claimable", m.Claimable))
	}
}

func (c *Client) handleResult(m *ResultMessage) {
	status := m.ShareStatus()
	reason := ""
	if m.ErrorMessage != nil {
		reason = *m.ErrorMessage
	}
	if m.ErrorCode != nil {
		reason = *m.ErrorCode + ": " + reason
	}
	share, known := c.tracker.Resolve(m.ShareID, status, reason)
	c.metrics.Share(string(status))

	c.mu.Lock()
	switch status {
	case types.ShareValid:
		c.stats.Accept++
		c.stats.LastAccepted = time.Now().Unix()
	case types.ShareInvalid, types.ShareDuplicate:
		c.stats.Reject++
	case types.ShareStale:
		c.stats.Stale++
	}
	if !known {
		c.stats.Unmatched++
	}
	if m.Balance != nil {
		c.session.Balance = *m.Balance
	}
	c.mu.Unlock()

	fields := []zap.Field{zap.String("share", m.ShareID), zap.String("status", string(status))}
	if known {
		fields = append(fields, zap.String("job", share.JobID), zap.String("nonce", share.Nonce))
	}
	if m.Balance != nil {
		fields = append(fields, zap.String("balance", *m.Balance))
	}
	switch {
	case !known:
		c.logger.Warn("Result for unknown share", fields...)
	case status == types.ShareValid:
		c.logger.Info("Share accepted", fields...)
	default:
		c.logger.Warn("Share rejected", append(fields, zap.String("reason", reason))...)
	}
}

func (c *Client) handleEvent(tr Transport, ev driver.Event) error {
	switch ev.Kind {
	case driver.ShareFound:
		share := types.Share{ID: uuid.NewString(), JobID: ev.JobID, Nonce: ev.Nonce}
		c.tracker.Submitted(share)
		msg := SubmitMessage{ShareID: share.ID, Nonce: share.Nonce}
		if ev.Hashrate > 0 {
			hashrate := ev.Hashrate
			msg.Hashrate = &hashrate
		}
		c.metrics.Share(string(types.ShareSubmitted))
		return c.send(tr, msg)
	case driver.VerifyDone:
		return c.send(tr, VerifyResultMessage{ShareID: ev.ShareID, Result: ev.Result})
	case driver.JobFailed:
		c.logger.Warn("Job dropped, waiting for the next one", zap.String("job", ev.JobID), zap.Error(ev.Err))
	}
	return nil
}

func (c *Client) send(tr Transport, m ClientMessage) error {
	data, err := EncodeClientMessage(m)
	if err != nil {
		return fault.Wrap(fault.Transport, "encode "+m.Action(), err)
	}
	if err := tr.Send(Frame{Kind: TextFrame, Data: data}); err != nil {
		return fault.Wrap(fault.Transport, "send "+m.Action(), err)
	}
	c.metrics.Message("out", m.Action())
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

package miner

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AGPFMiner/sepominer/algorithms/argon2"
	"github.com/AGPFMiner/sepominer/clients"
	"github.com/AGPFMiner/sepominer/clients/faucet"
	"github.com/AGPFMiner/sepominer/driver"
	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/mining"
	"github.com/AGPFMiner/sepominer/statistics"
	"github.com/AGPFMiner/sepominer/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBackoff = time.Minute

var atom = zap.NewAtomicLevel()

func selectZapLevel(loglevel string) zapcore.Level {
	var level zapcore.Level
	switch loglevel {
	case "debug":
		level = zap.DebugLevel
	case "info":
		level = zap.InfoLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}
	return level
}

func initLogger(loglevel string) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		atom,
	))
	atom.SetLevel(selectZapLevel(loglevel))
	return logger
}

//Miner do everything
type Miner struct {
	Wallet                string
	SessionURL, SocketURL string
	MinerVersion          string

	Workers, Checkpoint int
	PingInterval        time.Duration
	VerifyPolicy        string

	Reconnect        bool
	ReconnectMax     int
	ReconnectBackoff time.Duration

	CaptchaToken, CaptchaTokenFile string
	CaptchaRequired                bool

	WebEnable bool
	WebListen string

	LogLevel string

	// nil means HTTP bootstrap and websocket dial
	Bootstrapper faucet.Bootstrapper
	Dialer       faucet.Dialer
	// nil means a JSON logger on stdout
	Logger *zap.Logger

	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *statistics.Metrics

	mu       sync.Mutex
	driver   driver.Driver
	client   clients.Client
	sessions int
}

func (m *Miner) init() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logger != nil {
		return
	}
	m.logger = m.Logger
	if m.logger == nil {
		m.logger = initLogger(m.LogLevel)
	}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewGoCollector())
	m.metrics = statistics.NewMetrics(m.registry)
}

//Reload applies settings that can change while mining
func (m *Miner) Reload(loglevel string) {
	m.mu.Lock()
	m.LogLevel = loglevel
	logger := m.logger
	m.mu.Unlock()
	atom.SetLevel(selectZapLevel(loglevel))
	if logger != nil {
		logger.Info("Reloaded config", zap.String("level", loglevel))
	}
}

func (m *Miner) captchaToken() (string, error) {
	token, err := faucet.LoadCaptchaToken(func(key string) string {
		switch key {
		case faucet.CaptchaTokenEnv:
			return m.CaptchaToken
		case faucet.CaptchaTokenFileEnv:
			return m.CaptchaTokenFile
		}
		return ""
	})
	if errors.Is(err, fault.ErrMissingCaptchaToken) && !m.CaptchaRequired {
		return "", nil
	}
	return token, err
}

//MinerMain runs sessions until ctx is cancelled or a session fails for good
func (m *Miner) MinerMain(ctx context.Context) error {
	m.init()
	defer m.logger.Sync()

	if m.Wallet == "" {
		return fault.ErrMissingWallet
	}
	if _, err := driver.PolicyByName(m.VerifyPolicy); err != nil {
		return err
	}
	token, err := m.captchaToken()
	if err != nil {
		return err
	}

	if m.WebEnable {
		srv := &http.Server{Addr: m.WebListen, Handler: m.Router()}
		go func() {
			m.logger.Info("Status API listening", zap.String("addr", m.WebListen))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.logger.Error("Status API stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				m.logger.Debug("Status API shutdown", zap.Error(err))
			}
		}()
	}

	return m.runSessions(ctx, token)
}

func (m *Miner) runSessions(ctx context.Context, token string) error {
	backoff := m.ReconnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	failures := 0
	for {
		activated, err := m.runSession(ctx, token)
		if ctx.Err() != nil {
			m.logger.Info("Miner stopped")
			return nil
		}
		if err == nil {
			return nil
		}
		if !m.Reconnect {
			return err
		}
		if activated {
			failures = 0
			backoff = m.ReconnectBackoff
			if backoff <= 0 {
				backoff = time.Second
			}
		}
		failures++
		if failures > m.ReconnectMax {
			m.logger.Error("Giving up", zap.Int("failures", failures-1), zap.Error(err))
			return err
		}
		m.logger.Warn("Session ended, reconnecting",
			zap.Error(err), zap.Int("attempt", failures), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

//runSession mines one faucet session with a fresh engine
func (m *Miner) runSession(ctx context.Context, token string) (bool, error) {
	engine := driver.NewCPU(mining.MinerArgs{
		Workers:      m.Workers,
		Checkpoint:   m.Checkpoint,
		VerifyPolicy: m.VerifyPolicy,
		Metrics:      m.metrics,
		Logger:       m.logger,
	})
	engine.RegisterMiningFuncs(argon2.AlgoName, &argon2.MiningFuncs{})

	client := faucet.NewClient(faucet.Config{
		Pool: types.Pool{
			SessionURL: m.SessionURL,
			SocketURL:  m.SocketURL,
			Wallet:     m.Wallet,
			Algo:       argon2.AlgoName,
		},
		MinerVersion: m.MinerVersion,
		CaptchaToken: token,
		PingInterval: m.PingInterval,
		Bootstrapper: m.Bootstrapper,
		Dialer:       m.Dialer,
		Metrics:      m.metrics,
		Logger:       m.logger,
	}, engine)
	client.SetDeprecatedJobCall(func(jobid string) {
		m.logger.Debug("Job replaced", zap.String("job", jobid))
	})

	m.mu.Lock()
	m.driver = engine
	m.client = client
	m.sessions++
	m.mu.Unlock()

	err := client.Run(ctx)
	return client.Activated(), err
}

func (m *Miner) current() (driver.Driver, clients.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driver, m.client
}

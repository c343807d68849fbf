package miner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/types"
)

func TestSelectZapLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zap.DebugLevel,
		"info":  zap.InfoLevel,
		"warn":  zap.WarnLevel,
		"error": zap.ErrorLevel,
		"":      zap.InfoLevel,
		"loud":  zap.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, selectZapLevel(in), in)
	}
}

func TestReloadSetsLevel(t *testing.T) {
	m := &Miner{Logger: zap.NewNop()}
	m.Reload("error")
	assert.Equal(t, zap.ErrorLevel, atom.Level())
	m.Reload("debug")
	assert.Equal(t, zap.DebugLevel, atom.Level())
	assert.Equal(t, "debug", m.LogLevel)
}

func TestReloadDuringStartup(t *testing.T) {
	m := &Miner{Logger: zap.NewNop()}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			m.Reload("info")
		}
	}()
	assert.Equal(t, fault.ErrMissingWallet, m.MinerMain(context.Background()))
	<-done
	assert.Equal(t, "info", m.LogLevel)
}

func TestMissingWallet(t *testing.T) {
	m := &Miner{Logger: zap.NewNop()}
	err := m.MinerMain(context.Background())
	assert.Equal(t, fault.ErrMissingWallet, err)
	assert.Equal(t, fault.Config, fault.KindOf(err))
}

func TestUnknownVerifyPolicy(t *testing.T) {
	m := &Miner{Logger: zap.NewNop(), Wallet: "0xwallet", VerifyPolicy: "maybe"}
	err := m.MinerMain(context.Background())
	assert.Equal(t, fault.Config, fault.KindOf(err))
}

func TestCaptchaToken(t *testing.T) {
	m := &Miner{}
	token, err := m.captchaToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	m.CaptchaRequired = true
	_, err = m.captchaToken()
	assert.Equal(t, fault.ErrMissingCaptchaToken, err)

	m.CaptchaToken = "tok"
	token, err = m.captchaToken()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

type countingBootstrapper struct {
	calls int32
	err   error
}

func (b *countingBootstrapper) StartSession(ctx context.Context, wallet, captchaToken string) (string, error) {
	atomic.AddInt32(&b.calls, 1)
	return "", b.err
}

func TestNoReconnectStopsOnFirstFailure(t *testing.T) {
	boot := &countingBootstrapper{err: fault.Wrap(fault.Bootstrap, "start session", fault.ErrMissingSession)}
	m := &Miner{Logger: zap.NewNop(), Wallet: "0xwallet", Workers: 1, Bootstrapper: boot}

	err := m.MinerMain(context.Background())
	assert.True(t, errors.Is(err, fault.ErrMissingSession))
	assert.Equal(t, int32(1), atomic.LoadInt32(&boot.calls))
}

func TestReconnectGivesUp(t *testing.T) {
	boot := &countingBootstrapper{err: fault.Wrap(fault.Bootstrap, "start session", fault.ErrMissingSession)}
	m := &Miner{
		Logger:           zap.NewNop(),
		Wallet:           "0xwallet",
		Workers:          1,
		Bootstrapper:     boot,
		Reconnect:        true,
		ReconnectMax:     2,
		ReconnectBackoff: time.Millisecond,
	}

	err := m.MinerMain(context.Background())
	assert.Equal(t, fault.Bootstrap, fault.KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&boot.calls))
}

func TestReconnectStopsOnCancel(t *testing.T) {
	boot := &countingBootstrapper{err: fault.Wrap(fault.Bootstrap, "start session", fault.ErrMissingSession)}
	m := &Miner{
		Logger:           zap.NewNop(),
		Wallet:           "0xwallet",
		Workers:          1,
		Bootstrapper:     boot,
		Reconnect:        true,
		ReconnectMax:     100,
		ReconnectBackoff: time.Hour,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.MinerMain(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&boot.calls))
}

func rpcCall(t *testing.T, srv *httptest.Server, method string, result interface{}) {
	body := `{"method":"` + method + `","params":[{"Who":"test"}],"id":1}`
	resp, err := http.Post(srv.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply struct {
		Result json.RawMessage `json:"result"`
		Error  interface{}     `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	require.Nil(t, reply.Error)
	require.NoError(t, json.Unmarshal(reply.Result, result))
}

func TestStatusAPIBeforeSession(t *testing.T) {
	m := &Miner{Logger: zap.NewNop(), Wallet: "0xwallet", SocketURL: "wss://faucet.test/ws"}
	srv := httptest.NewServer(m.Router())
	defer srv.Close()

	var pool PoolRPCReply
	rpcCall(t, srv, "miner.GetPoolStats", &pool)
	require.NotNil(t, pool.Pool)
	assert.Equal(t, "disconnected", pool.Pool.State)
	assert.Equal(t, "0xwallet", pool.Pool.Wallet)
	assert.Zero(t, pool.Sessions)

	var engine EngineRPCReply
	rpcCall(t, srv, "miner.GetEngineStats", &engine)
	require.NotNil(t, engine.Engine)
	assert.Equal(t, types.Idle, engine.Engine.Status)

	resp, err := http.Get(srv.URL + "/sepominer/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var status types.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	t.Log(spew.Sdump(status))
	assert.True(t, status.Status.MinerDown)
	assert.Len(t, status.Status.Pools, 1)
	assert.Len(t, status.Status.Devs, 1)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

//faucetServer plays the faucet: it hands out a session, sends one easy job and a verify,
//then records what the miner answers
type faucetServer struct {
	submits  chan map[string]interface{}
	verifies chan map[string]interface{}
}

func (fs *faucetServer) sessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"data":{"session":"sess-e2e"}}`))
}

func (fs *faucetServer) socket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var start map[string]interface{}
	if err := conn.ReadJSON(&start); err != nil || start["action"] != "start" {
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"init","session":"sess-e2e","claimable":"0"}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"job","id":"job-1","preImage":"e2e","target":"00ffffff","algorithm":"argon2",
		"argon2":{"type":0,"version":19,"time_cost":1,"memory_cost":8,"parallelism":1,"key_length":4}}`))

	answered := false
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg["action"] {
		case "submit":
			select {
			case fs.submits <- msg:
			default:
			}
			if !answered {
				answered = true
				conn.WriteJSON(map[string]string{"action": "result", "shareId": msg["shareId"].(string), "status": "valid", "balance": "7"})
				conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"verify","shareId":"remote-1","nonce":"0000000000000000","preImage":"e2e",
					"argon2":{"type":0,"version":19,"time_cost":1,"memory_cost":8,"parallelism":1,"key_length":4}}`))
			}
		case "verify":
			select {
			case fs.verifies <- msg:
			default:
			}
		}
	}
}

func TestMinerSession(t *testing.T) {
	fs := &faucetServer{submits: make(chan map[string]interface{}, 1), verifies: make(chan map[string]interface{}, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/startSession", fs.sessions)
	mux.HandleFunc("/ws/pow", fs.socket)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := &Miner{
		Logger:     zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)),
		Wallet:     "0xwallet",
		SessionURL: srv.URL + "/api/startSession",
		SocketURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pow",
		Workers:    2,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.MinerMain(ctx) }()

	select {
	case msg := <-fs.submits:
		assert.Len(t, msg["nonce"], 16)
	case <-time.After(10 * time.Second):
		t.Fatal("no share submitted")
	}
	select {
	case msg := <-fs.verifies:
		assert.Equal(t, "remote-1", msg["shareId"])
		assert.Equal(t, "valid", msg["result"])
	case <-time.After(10 * time.Second):
		t.Fatal("verify not answered")
	}
	assert.Eventually(t, func() bool { return m.poolStats().Accept >= 1 }, 5*time.Second, 10*time.Millisecond)
	pool := m.poolStats()
	assert.Equal(t, "sess-e2e", pool.Session.ID)
	assert.Equal(t, "7", pool.Session.Balance)
	assert.True(t, pool.Active)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("miner did not stop")
	}
	assert.Equal(t, types.Disconnected, m.poolStats().Status)
}

package miner

import (
	j "encoding/json"
	"net/http"
	"time"

	"github.com/AGPFMiner/sepominer/types"

	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//Router serves the status API
func (m *Miner) Router() *mux.Router {
	m.init()
	s := rpc.NewServer()
	s.RegisterCodec(json.NewCodec(), "application/json")
	s.RegisterCodec(json.NewCodec(), "application/json;charset=UTF-8")
	s.RegisterService(m, "miner")

	r := mux.NewRouter()
	r.Handle("/rpc", s)
	r.HandleFunc("/sepominer/status", m.GetMinerStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}

type MinerRPCArgs struct {
	Who string
}

type PoolRPCReply struct {
	Pool     *types.PoolStates
	Sessions int
}

type EngineRPCReply struct {
	Engine *types.DriverStates
}

func (m *Miner) poolStats() *types.PoolStates {
	_, client := m.current()
	if client == nil {
		return &types.PoolStates{
			Status:   types.Disconnected,
			State:    types.Disconnected.String(),
			Wallet:   m.Wallet,
			PoolAddr: m.SocketURL,
		}
	}
	stats := client.GetPoolStats()
	return &stats
}

func (m *Miner) engineStats() *types.DriverStates {
	drv, _ := m.current()
	if drv == nil {
		return &types.DriverStates{Status: types.Idle, State: types.Idle.String()}
	}
	stats := drv.GetDriverStats()
	return &stats
}

func (m *Miner) GetPoolStats(r *http.Request, args *MinerRPCArgs, reply *PoolRPCReply) error {
	reply.Pool = m.poolStats()
	m.mu.Lock()
	reply.Sessions = m.sessions
	m.mu.Unlock()
	return nil
}

func (m *Miner) GetEngineStats(r *http.Request, args *MinerRPCArgs, reply *EngineRPCReply) error {
	reply.Engine = m.engineStats()
	return nil
}

func (m *Miner) GetMinerStatus(w http.ResponseWriter, r *http.Request) {
	pool := m.poolStats()
	data := &types.Status{
		Status: &types.MinerStatus{
			Devs:      []*types.DriverStates{m.engineStats()},
			Pools:     []*types.PoolStates{pool},
			MinerUp:   pool.Active,
			MinerDown: !pool.Active,
			Time:      time.Now().Unix(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	j.NewEncoder(w).Encode(data)
}

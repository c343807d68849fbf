package faucet

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/types"
)

func TestParseJob(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"action":"job","id":"j1","preImage":"abc","target":"0fff",
		"algorithm":"argon2","argon2":{"type":"0","version":19,"time_cost":"1","memory_cost":8,"parallelism":1,"key_length":2}}`))
	require.NoError(t, err)
	t.Log(spew.Sdump(msg))

	job, ok := msg.(*JobMessage)
	require.True(t, ok)
	assert.Equal(t, &types.Job{
		ID:        "j1",
		PreImage:  []byte("abc"),
		Target:    "0fff",
		Algorithm: "argon2",
		Params: types.Argon2Params{
			Variant: types.Argon2d, Version: types.Argon2Version13,
			TimeCost: 1, MemoryCost: 8, Parallelism: 1, KeyLength: 2,
		},
	}, job.Job())
}

func TestParseVerify(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"action":"verify","shareId":"s1","nonce":"000000000000002a","preImage":"p",
		"argon2":{"type":2,"version":16,"time_cost":2,"memory_cost":16,"parallelism":2,"key_length":32}}`))
	require.NoError(t, err)

	req := msg.(*VerifyMessage).Request()
	assert.Equal(t, "s1", req.ShareID)
	assert.Equal(t, "000000000000002a", req.Nonce)
	assert.Equal(t, []byte("p"), req.PreImage)
	assert.Equal(t, uint8(types.Argon2id), req.Params.Variant)
	assert.Equal(t, uint32(types.Argon2Version10), req.Params.Version)
	assert.Equal(t, uint32(32), req.Params.KeyLength)
}

func TestParseInitAndUpdate(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"action":"init","session":"abc","targetAddr":"0x01",
		"difficulty":"123456789012345678901234567890","claimable":"0"}`))
	require.NoError(t, err)
	im := msg.(*InitMessage)
	assert.Equal(t, "abc", im.Session)
	assert.Equal(t, "123456789012345678901234567890", im.Difficulty)
	assert.Nil(t, im.Hashrate)

	msg, err = ParseServerMessage([]byte(`{"action":"init","session":"abc","hashrate":"500"}`))
	require.NoError(t, err)
	require.NotNil(t, msg.(*InitMessage).Hashrate)
	assert.Equal(t, uint64(500), *msg.(*InitMessage).Hashrate)

	msg, err = ParseServerMessage([]byte(`{"action":"update","claimable":"1000000000000000000"}`))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", msg.(*UpdateMessage).Claimable)
	assert.Empty(t, msg.(*UpdateMessage).Session)
}

func TestParseResult(t *testing.T) {
	msg, err := ParseServerMessage([]byte(`{"action":"result","shareId":"s1","status":"stale","errorCode":"E1","balance":"42"}`))
	require.NoError(t, err)
	res := msg.(*ResultMessage)
	assert.Equal(t, types.ShareStale, res.ShareStatus())
	require.NotNil(t, res.ErrorCode)
	assert.Equal(t, "E1", *res.ErrorCode)
	assert.Nil(t, res.ErrorMessage)
	require.NotNil(t, res.Balance)
	assert.Equal(t, "42", *res.Balance)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{"action":`, fault.ErrMalformedMessage},
		{"no action", `{"id":"x"}`, fault.ErrUnknownAction},
		{"unknown action", `{"action":"reward"}`, fault.ErrUnknownAction},
		{"job without id", `{"action":"job","target":"00"}`, fault.ErrMalformedMessage},
		{"job without target", `{"action":"job","id":"j"}`, fault.ErrMalformedMessage},
		{"verify without nonce", `{"action":"verify","shareId":"s"}`, fault.ErrMalformedMessage},
		{"result without share", `{"action":"result","status":"valid"}`, fault.ErrMalformedMessage},
		{"result bad status", `{"action":"result","shareId":"s","status":"maybe"}`, fault.ErrUnknownShareStatus},
		{"bad number", `{"action":"job","id":"j","target":"00","argon2":{"time_cost":"many"}}`, fault.ErrMalformedMessage},
		{"init without session", `{"action":"init"}`, fault.ErrMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseServerMessage([]byte(tt.data))
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, fault.Decode, fault.KindOf(err))
			assert.False(t, fault.Fatal(err))
		})
	}
}

func TestEncodeClientMessages(t *testing.T) {
	rate := uint64(1234)
	tests := []struct {
		msg  ClientMessage
		want map[string]interface{}
	}{
		{StartMessage{Wallet: "0xabc", MinerVersion: "1.0"},
			map[string]interface{}{"action": "start", "wallet": "0xabc", "minerVersion": "1.0"}},
		{SubmitMessage{ShareID: "s", Nonce: "0000000000000001"},
			map[string]interface{}{"action": "submit", "shareId": "s", "nonce": "0000000000000001"}},
		{SubmitMessage{ShareID: "s", Nonce: "0000000000000001", Hashrate: &rate},
			map[string]interface{}{"action": "submit", "shareId": "s", "nonce": "0000000000000001", "hashrate": float64(1234)}},
		{VerifyResultMessage{ShareID: "s", Result: "valid"},
			map[string]interface{}{"action": "verify", "shareId": "s", "result": "valid"}},
		{PingMessage{}, map[string]interface{}{"action": "ping"}},
	}
	for _, tt := range tests {
		data, err := EncodeClientMessage(tt.msg)
		require.NoError(t, err)
		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, tt.want, got, string(data))
	}
}

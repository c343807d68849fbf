package faucet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/types"
)

// Server to client actions
const (
	ActionInit   = "init"
	ActionJob    = "job"
	ActionVerify = "verify"
	ActionResult = "result"
	ActionUpdate = "update"
)

// Client to server actions
const (
	ActionStart  = "start"
	ActionSubmit = "submit"
	ActionPing   = "ping"
)

//ServerMessage is one of the inbound message types below; the set is closed
type ServerMessage interface {
	Action() string
	validate() error
}

type InitMessage struct {
	Session    string  `mapstructure:"session"`
	TargetAddr string  `mapstructure:"targetAddr"`
	Hashrate   *uint64 `mapstructure:"hashrate"`
	Difficulty string  `mapstructure:"difficulty"`
	Claimable  string  `mapstructure:"claimable"`
}

type JobMessage struct {
	ID        string             `mapstructure:"id"`
	PreImage  string             `mapstructure:"preImage"`
	Target    string             `mapstructure:"target"`
	Algorithm string             `mapstructure:"algorithm"`
	Argon2    types.Argon2Params `mapstructure:"argon2"`
}

type VerifyMessage struct {
	ShareID  string             `mapstructure:"shareId"`
	Nonce    string             `mapstructure:"nonce"`
	PreImage string             `mapstructure:"preImage"`
	Argon2   types.Argon2Params `mapstructure:"argon2"`
}

type ResultMessage struct {
	ShareID      string  `mapstructure:"shareId"`
	Status       string  `mapstructure:"status"`
	ErrorCode    *string `mapstructure:"errorCode"`
	ErrorMessage *string `mapstructure:"errorMessage"`
	Balance      *string `mapstructure:"balance"`
}

type UpdateMessage struct {
	Session   string `mapstructure:"session"`
	Claimable string `mapstructure:"claimable"`
}

func (*InitMessage) Action() string   { return ActionInit }
func (*JobMessage) Action() string    { return ActionJob }
func (*VerifyMessage) Action() string { return ActionVerify }
func (*ResultMessage) Action() string { return ActionResult }
func (*UpdateMessage) Action() string { return ActionUpdate }

func (m *InitMessage) validate() error {
	return requireField("session", m.Session)
}

func (m *JobMessage) validate() error {
	if err := requireField("id", m.ID); err != nil {
		return err
	}
	return requireField("target", m.Target)
}

func (m *VerifyMessage) validate() error {
	if err := requireField("shareId", m.ShareID); err != nil {
		return err
	}
	return requireField("nonce", m.Nonce)
}

func (m *ResultMessage) validate() error {
	if err := requireField("shareId", m.ShareID); err != nil {
		return err
	}
	if _, ok := types.ParseShareStatus(m.Status); !ok {
		return fmt.Errorf("%w: %q", fault.ErrUnknownShareStatus, m.Status)
	}
	return nil
}

func (m *UpdateMessage) validate() error {
	return nil
}

//Job builds the engine's view; pre-image bytes are the string as received
func (m *JobMessage) Job() *types.Job {
	return &types.Job{
		ID:        m.ID,
		PreImage:  []byte(m.PreImage),
		Target:    m.Target,
		Algorithm: m.Algorithm,
		Params:    m.Argon2,
	}
}

func (m *VerifyMessage) Request() *types.VerifyRequest {
	return &types.VerifyRequest{
		ShareID:  m.ShareID,
		Nonce:    m.Nonce,
		PreImage: []byte(m.PreImage),
		Params:   m.Argon2,
	}
}

func (m *ResultMessage) ShareStatus() types.ShareStatus {
	st, _ := types.ParseShareStatus(m.Status)
	return st
}

func requireField(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: missing %s", fault.ErrMalformedMessage, field)
	}
	return nil
}

//ParseServerMessage decodes one text frame. Numbers may arrive as JSON numbers
//or numeric strings; difficulty and balances keep their exact digits.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fault.Wrap(fault.Decode, "parse message", fmt.Errorf("%w: %v", fault.ErrMalformedMessage, err))
	}

	action, _ := raw["action"].(string)
	var msg ServerMessage
	switch action {
	case ActionInit:
		msg = &InitMessage{}
	case ActionJob:
		msg = &JobMessage{}
	case ActionVerify:
		msg = &VerifyMessage{}
	case ActionResult:
		msg = &ResultMessage{}
	case ActionUpdate:
		msg = &UpdateMessage{}
	default:
		return nil, fault.Wrap(fault.Decode, "parse message", fmt.Errorf("%w: %q", fault.ErrUnknownAction, action))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           msg,
	})
	if err != nil {
		return nil, fault.Wrap(fault.Decode, "parse "+action, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fault.Wrap(fault.Decode, "parse "+action, fmt.Errorf("%w: %v", fault.ErrMalformedMessage, err))
	}
	if err := msg.validate(); err != nil {
		return nil, fault.Wrap(fault.Decode, "parse "+action, err)
	}
	return msg, nil
}

//ClientMessage is one of the outbound message types below
type ClientMessage interface {
	Action() string
}

type StartMessage struct {
	Wallet       string `json:"wallet"`
	MinerVersion string `json:"minerVersion"`
}

type SubmitMessage struct {
	ShareID  string  `json:"shareId"`
	Nonce    string  `json:"nonce"`
	Hashrate *uint64 `json:"hashrate,omitempty"`
}

type VerifyResultMessage struct {
	ShareID string `json:"shareId"`
	Result  string `json:"result"`
}

type PingMessage struct{}

func (StartMessage) Action() string        { return ActionStart }
func (SubmitMessage) Action() string       { return ActionSubmit }
func (VerifyResultMessage) Action() string { return ActionVerify }
func (PingMessage) Action() string         { return ActionPing }

func (m StartMessage) MarshalJSON() ([]byte, error) {
	type fields StartMessage
	return json.Marshal(struct {
		Action string `json:"action"`
		fields
	}{m.Action(), fields(m)})
}

func (m SubmitMessage) MarshalJSON() ([]byte, error) {
	type fields SubmitMessage
	return json.Marshal(struct {
		Action string `json:"action"`
		fields
	}{m.Action(), fields(m)})
}

func (m VerifyResultMessage) MarshalJSON() ([]byte, error) {
	type fields VerifyResultMessage
	return json.Marshal(struct {
		Action string `json:"action"`
		fields
	}{m.Action(), fields(m)})
}

func (m PingMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action string `json:"action"`
	}{m.Action()})
}

func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	return json.Marshal(m)
}

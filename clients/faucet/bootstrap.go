package faucet

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/AGPFMiner/sepominer/fault"
)

type Bootstrapper interface {
	StartSession(ctx context.Context, wallet, captchaToken string) (session string, err error)
}

//HTTPBootstrapper opens a faucet session with a JSON POST
type HTTPBootstrapper struct {
	URL    string
	Client *http.Client
}

type startSessionRequest struct {
	Addr         string `json:"addr"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type startSessionReply struct {
	Session string `json:"session"`
	Data    *struct {
		Session string `json:"session"`
	} `json:"data"`
}

func (b *HTTPBootstrapper) StartSession(ctx context.Context, wallet, captchaToken string) (string, error) {
	const op = "start session"
	client := b.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	payload, err := json.Marshal(startSessionRequest{Addr: wallet, CaptchaToken: captchaToken})
	if err != nil {
		return "", fault.Wrap(fault.Bootstrap, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fault.Wrap(fault.Bootstrap, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fault.Wrap(fault.Bootstrap, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
	if err != nil {
		return "", fault.Wrap(fault.Bootstrap, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > 256 {
			body = body[:256]
		}
		return "", fault.Errorf(fault.Bootstrap, op, "status %d: %s", resp.StatusCode, body)
	}

	var reply startSessionReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fault.Wrap(fault.Bootstrap, op, err)
	}
	session := reply.Session
	if session == "" && reply.Data != nil {
		session = reply.Data.Session
	}
	if session == "" {
		return "", fault.Wrap(fault.Bootstrap, op, fault.ErrMissingSession)
	}
	return session, nil
}

package faucet

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AGPFMiner/sepominer/fault"
)

type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
	PingFrame
	PongFrame
	CloseFrame
)

type Frame struct {
	Kind FrameKind
	Data []byte
}

//Transport carries frames for one connection. Receive is called from a single goroutine,
//Send from another; Close may be called from anywhere and more than once.
type Transport interface {
	Receive() (Frame, error)
	Send(Frame) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, rawurl string) (Transport, error)
}

//SocketURL appends the session id to the websocket endpoint
func SocketURL(base, session string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fault.Wrap(fault.Config, "socket url", err)
	}
	q := u.Query()
	q.Set("session", session)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	frameBuffer    = 16
)

type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d *WebsocketDialer) Dial(ctx context.Context, rawurl string) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, rawurl, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fault.Errorf(fault.Transport, "dial", "handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, fault.Wrap(fault.Transport, "dial", err)
	}
	return newWebsocketTransport(conn), nil
}

type websocketTransport struct {
	conn   *websocket.Conn
	frames chan Frame
	err    error
	once   sync.Once
	closed chan struct{}
}

func newWebsocketTransport(conn *websocket.Conn) *websocketTransport {
	t := &websocketTransport{
		conn:   conn,
		frames: make(chan Frame, frameBuffer),
		closed: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	// control frames are surfaced in order with data frames; the client answers pings itself
	conn.SetPingHandler(func(data string) error {
		t.push(Frame{Kind: PingFrame, Data: []byte(data)})
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		t.push(Frame{Kind: PongFrame, Data: []byte(data)})
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		t.push(Frame{Kind: CloseFrame, Data: []byte(text)})
		msg := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return nil
	})
	go t.readLoop()
	return t
}

func (t *websocketTransport) push(f Frame) {
	select {
	case t.frames <- f:
	case <-t.closed:
	}
}

func (t *websocketTransport) readLoop() {
	defer close(t.frames)
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			t.err = err
			return
		}
		switch mt {
		case websocket.TextMessage:
			t.push(Frame{Kind: TextFrame, Data: data})
		case websocket.BinaryMessage:
			t.push(Frame{Kind: BinaryFrame, Data: data})
		}
	}
}

func (t *websocketTransport) Receive() (Frame, error) {
	f, ok := <-t.frames
	if !ok {
		return Frame{}, fault.Wrap(fault.Transport, "receive", t.err)
	}
	return f, nil
}

func (t *websocketTransport) Send(f Frame) error {
	deadline := time.Now().Add(writeWait)
	var err error
	switch f.Kind {
	case TextFrame:
		t.conn.SetWriteDeadline(deadline)
		err = t.conn.WriteMessage(websocket.TextMessage, f.Data)
	case BinaryFrame:
		t.conn.SetWriteDeadline(deadline)
		err = t.conn.WriteMessage(websocket.BinaryMessage, f.Data)
	case PingFrame:
		err = t.conn.WriteControl(websocket.PingMessage, f.Data, deadline)
	case PongFrame:
		err = t.conn.WriteControl(websocket.PongMessage, f.Data, deadline)
	case CloseFrame:
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(f.Data))
		err = t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}
	return fault.Wrap(fault.Transport, "send", err)
}

func (t *websocketTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

package faucet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGPFMiner/sepominer/fault"
	"github.com/AGPFMiner/sepominer/types"
)

func sessionServer(t *testing.T, status int, reply string, seen *startSessionRequest) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStartSession(t *testing.T) {
	var seen startSessionRequest
	srv := sessionServer(t, http.StatusOK, `{"session":"s-top"}`, &seen)
	b := &HTTPBootstrapper{URL: srv.URL}

	session, err := b.StartSession(context.Background(), "0xwallet", "")
	require.NoError(t, err)
	assert.Equal(t, "s-top", session)
	assert.Equal(t, startSessionRequest{Addr: "0xwallet"}, seen)
}

func TestStartSessionNestedAndCaptcha(t *testing.T) {
	var seen startSessionRequest
	srv := sessionServer(t, http.StatusOK, `{"data":{"session":"s-nested"}}`, &seen)
	b := &HTTPBootstrapper{URL: srv.URL}

	session, err := b.StartSession(context.Background(), "0xwallet", "tok")
	require.NoError(t, err)
	assert.Equal(t, "s-nested", session)
	assert.Equal(t, "tok", seen.CaptchaToken)
}

func TestStartSessionFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
	}{
		{"missing session", http.StatusOK, `{"data":{}}`},
		{"empty session", http.StatusOK, `{"session":""}`},
		{"not json", http.StatusOK, `<html>`},
		{"server error", http.StatusInternalServerError, `{"session":"ignored"}`},
		{"forbidden", http.StatusForbidden, `captcha required`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := sessionServer(t, tt.status, tt.reply, nil)
			_, err := (&HTTPBootstrapper{URL: srv.URL}).StartSession(context.Background(), "0xwallet", "")
			require.Error(t, err)
			assert.Equal(t, fault.Bootstrap, fault.KindOf(err))
			assert.True(t, fault.Fatal(err))
		})
	}

	srv := sessionServer(t, http.StatusOK, `{}`, nil)
	_, err := (&HTTPBootstrapper{URL: srv.URL}).StartSession(context.Background(), "0xwallet", "")
	assert.True(t, errors.Is(err, fault.ErrMissingSession))
}

func TestStartSessionCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := (&HTTPBootstrapper{URL: srv.URL}).StartSession(ctx, "0xwallet", "")
	assert.Equal(t, fault.Bootstrap, fault.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSocketURL(t *testing.T) {
	u, err := SocketURL("wss://faucet.example/ws/pow", "abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://faucet.example/ws/pow?session=abc", u)

	u, err = SocketURL("ws://127.0.0.1:8080/ws?x=1", "a b")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/ws?session=a+b&x=1", u)

	_, err = SocketURL("://bad", "abc")
	assert.Equal(t, fault.Config, fault.KindOf(err))
}

func TestLoadCaptchaToken(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	_, err := LoadCaptchaToken(getenv)
	assert.Equal(t, fault.ErrMissingCaptchaToken, err)

	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0600))
	env[CaptchaTokenFileEnv] = path
	token, err := LoadCaptchaToken(getenv)
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)

	env[CaptchaTokenEnv] = " direct "
	token, err = LoadCaptchaToken(getenv)
	require.NoError(t, err)
	assert.Equal(t, "direct", token)

	delete(env, CaptchaTokenEnv)
	env[CaptchaTokenFileEnv] = filepath.Join(t.TempDir(), "missing")
	_, err = LoadCaptchaToken(getenv)
	assert.Equal(t, fault.Config, fault.KindOf(err))
}

func TestLoadCaptchaTokenFromProcessEnv(t *testing.T) {
	t.Setenv(CaptchaTokenEnv, "env-token")
	token, err := LoadCaptchaToken(nil)
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestShareTracker(t *testing.T) {
	st := NewShareTracker(time.Minute)
	st.Submitted(types.Share{ID: "a", JobID: "j", Nonce: "0000000000000000", Status: types.ShareFound})
	assert.Equal(t, 1, st.Pending())

	share, ok := st.Resolve("a", types.ShareValid, "")
	require.True(t, ok)
	assert.Equal(t, types.Share{ID: "a", JobID: "j", Nonce: "0000000000000000", Status: types.ShareValid}, share)
	assert.Equal(t, 0, st.Pending())

	_, ok = st.Resolve("a", types.ShareValid, "")
	assert.False(t, ok)
}

func TestShareTrackerExpires(t *testing.T) {
	st := NewShareTracker(20 * time.Millisecond)
	st.Submitted(types.Share{ID: "a"})
	time.Sleep(40 * time.Millisecond)
	_, ok := st.Resolve("a", types.ShareStale, "")
	assert.False(t, ok)
}

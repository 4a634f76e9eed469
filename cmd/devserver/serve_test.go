package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMux(t *testing.T) {
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("webhook"))
	})
	mux := newMux(webhook)

	tests := []struct {
		path string
		want string
		code int
	}{
		{"/", landingText, http.StatusOK},
		{"/healthz", "ok", http.StatusOK},
		{"/webhook", "webhook", http.StatusOK},
		{"/missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.code, rec.Code)
			if tt.want != "" {
				require.Equal(t, tt.want, rec.Body.String())
			}
		})
	}
}

func TestSendCmd_RequiresExactlyOnePayload(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"send", "--env-file", "", "--to", "42", "--text", "hi", "--image", "https://x/y.png"})
	cmd.SetOut(&discard{})
	cmd.SetErr(&discard{})
	err := cmd.Execute()
	require.ErrorContains(t, err, "exactly one of --text or --image")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"send", "--env-file", "", "--text", "hi"})
	cmd.SetOut(&discard{})
	cmd.SetErr(&discard{})
	require.ErrorContains(t, cmd.Execute(), "missing --to")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

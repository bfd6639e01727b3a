package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-companion/pkg/schema"
)

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/personas", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]schema.PersonaSummary{{ID: "lina", Name: "Lina", Hour: 21}})
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req schema.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ClientKey != "tester" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(schema.ChatResponse{OK: true, Reply: "echo: " + req.Message, Remaining: 7})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSend(t *testing.T) {
	srv := fakeGateway(t)

	out, err := execute(t, "--addr", srv.URL, "--client", "tester", "send", "merhaba", "dunya")
	require.NoError(t, err)
	assert.Equal(t, "echo: merhaba dunya\nremaining: 7\n", out)
}

func TestSend_RequiresMessage(t *testing.T) {
	_, err := execute(t, "send")
	assert.Error(t, err)
}

func TestPersonas(t *testing.T) {
	srv := fakeGateway(t)

	out, err := execute(t, "--addr", srv.URL, "personas")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"id": "lina"`), out)
}

func TestHealth(t *testing.T) {
	srv := fakeGateway(t)

	out, err := execute(t, "--addr", srv.URL, "health")
	require.NoError(t, err)
	assert.Equal(t, "OK\n", out)
}

func TestPrintReply_Silent(t *testing.T) {
	var b bytes.Buffer
	printReply(&b, schema.ChatResponse{Silent: true, Remaining: 3, LockedUntilMs: 0})
	assert.Equal(t, "(no reply)\nremaining: 3\n", b.String())
}

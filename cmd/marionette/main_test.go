package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCLINoArgs(t *testing.T) {
	assert.Equal(t, 1, runCLI(nil))
}

func TestRunCLIUnknownCommand(t *testing.T) {
	assert.Equal(t, 1, runCLI([]string{"bogus"}))
}

func TestRunCLIHelp(t *testing.T) {
	assert.Equal(t, 0, runCLI([]string{"help"}))
}

func TestRunVersion(t *testing.T) {
	assert.Equal(t, 0, runCLI([]string{"version"}))
	assert.Equal(t, 0, runCLI([]string{"version", "--json"}))
}

func TestPostCommandSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/command/execute", r.URL.Path)
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":42}`))
	}))
	defer ts.Close()

	out, err := postCommand(ts.URL, "sekret", "execute", `{"script":"1+1"}`)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestPostCommandDaemonError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"remote context not attached"}`))
	}))
	defer ts.Close()

	_, err := postCommand(ts.URL, "", "execute", `{"script":"1"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not attached")
}

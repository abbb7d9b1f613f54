package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/marionette/internal/bridge"
	"github.com/mattjoyce/marionette/internal/correlate"
	"github.com/mattjoyce/marionette/internal/dispatch"
	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/mock"
	"github.com/mattjoyce/marionette/internal/protocol"
	"github.com/mattjoyce/marionette/internal/session"
)

// startIntegrationServer wires the real session, correlator and executor
// behind httptest and returns the base URL.
func startIntegrationServer(t *testing.T) (string, *session.Session) {
	t.Helper()

	mocks := mock.NewRegistry()
	correlator := correlate.NewManager()
	hub := events.NewHub(64)
	sess := session.New(correlator, hub)
	executor := bridge.NewExecutor(sess, correlator, hub, 5*time.Second)

	dispatcher := dispatch.New(mocks, executor)
	require.NoError(t, dispatcher.RegisterBuiltins(hub))

	srv := New(Config{Listen: "127.0.0.1:0"},
		dispatcher, sess, mocks, correlator, hub, nil, log.WithComponent("api-test"))

	ts := httptest.NewServer(srv.setupRoutes())
	t.Cleanup(ts.Close)
	return ts.URL, sess
}

// runAgent connects to the session stream and answers every eval payload with
// evaluate(topic, script). It stops when ctx is cancelled.
func runAgent(t *testing.T, ctx context.Context, baseURL string, evaluate func(topic, script string) protocol.Completion) {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/session/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	go func() {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var data string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && data != "":
				var payload protocol.EvalPayload
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					data = ""
					continue
				}
				data = ""

				completion := evaluate(payload.Topic, payload.Script)
				body, _ := json.Marshal(map[string]any{
					"topic":   payload.Topic,
					"payload": completion,
				})
				emit, err := http.Post(baseURL+"/session/emit", "application/json", bytes.NewReader(body))
				if err == nil {
					emit.Body.Close()
				}
			}
		}
	}()
}

func waitAttached(t *testing.T, sess *session.Session) {
	t.Helper()
	require.Eventually(t, sess.Attached, time.Second, 10*time.Millisecond, "session never attached")
}

func TestExecuteEndToEnd(t *testing.T) {
	baseURL, sess := startIntegrationServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The simulated agent resolves every script with a stringified 7, the
	// shape a real remote context produces.
	runAgent(t, ctx, baseURL, func(topic, script string) protocol.Completion {
		return protocol.Completion{Result: json.RawMessage(`"7"`)}
	})
	waitAttached(t, sess)

	resp, err := http.Post(baseURL+"/command/execute", "application/json",
		strings.NewReader(`{"script":"3+4"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.JSONEq(t, `7`, string(out.Result))
}

func TestExecuteEndToEndRemoteError(t *testing.T) {
	baseURL, sess := startIntegrationServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errText := "ReferenceError: nope is not defined"
	runAgent(t, ctx, baseURL, func(topic, script string) protocol.Completion {
		return protocol.Completion{Error: &errText}
	})
	waitAttached(t, sess)

	resp, err := http.Post(baseURL+"/command/execute", "application/json",
		strings.NewReader(`{"script":"nope()"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error, "ReferenceError")
}

func TestExecuteNoSessionAttached(t *testing.T) {
	baseURL, _ := startIntegrationServer(t)

	resp, err := http.Post(baseURL+"/command/execute", "application/json",
		strings.NewReader(`{"script":"1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var out ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Error, "not attached")
}

func TestMockImplementationRunsRemotely(t *testing.T) {
	baseURL, sess := startIntegrationServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seenScript string
	runAgent(t, ctx, baseURL, func(topic, script string) protocol.Completion {
		seenScript = script
		return protocol.Completion{Result: json.RawMessage(`"\"mocked\""`)}
	})
	waitAttached(t, sess)

	setBody := `{"command":"fetch-name","config":{"command":"fetch-name","implementation":"(p) => 'mocked'"}}`
	resp, err := http.Post(baseURL+"/command/set-mock", "application/json", strings.NewReader(setBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(baseURL+"/command/fetch-name", "application/json",
		strings.NewReader(`{"user":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.JSONEq(t, `"mocked"`, string(out.Result))

	// The implementation travels to the remote context with the payload bound
	// as its argument.
	assert.Contains(t, seenScript, "__marionette_args")
	assert.Contains(t, seenScript, "'mocked'")
}

func TestEventsStreamPublishesLifecycle(t *testing.T) {
	baseURL, sess := startIntegrationServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runAgent(t, ctx, baseURL, func(topic, script string) protocol.Completion {
		return protocol.Completion{Result: json.RawMessage(`"1"`)}
	})
	waitAttached(t, sess)

	resp, err := http.Post(baseURL+"/command/execute", "application/json",
		strings.NewReader(`{"script":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The ring buffer replays history to late subscribers, so connecting
	// after the call still sees its lifecycle.
	streamCtx, streamCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer streamCancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, baseURL+"/events", nil)
	require.NoError(t, err)
	eventsResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer eventsResp.Body.Close()

	var types []string
	scanner := bufio.NewScanner(eventsResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			types = append(types, strings.TrimPrefix(line, "event: "))
		}
		if len(types) >= 3 {
			break
		}
	}

	assert.Contains(t, types, events.TypeSessionAttached)
	assert.Contains(t, types, events.TypeExecuteStarted)
	assert.Contains(t, types, events.TypeExecuteCompleted)
}

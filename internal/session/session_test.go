package session

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/marionette/internal/correlate"
	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/log"
	"github.com/mattjoyce/marionette/internal/protocol"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

func newTestSession() (*Session, *correlate.Manager, *events.Hub) {
	correlator := correlate.NewManager()
	hub := events.NewHub(32)
	return New(correlator, hub), correlator, hub
}

func TestDispatchWithoutAttachmentFails(t *testing.T) {
	s, _, _ := newTestSession()

	err := s.Dispatch(context.Background(), protocol.EvalPayload{Topic: "t", Script: "1+1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote context not attached")
}

func TestDispatchReachesAttachedStream(t *testing.T) {
	s, _, _ := newTestSession()

	ch, detach := s.Attach()
	defer detach()
	require.True(t, s.Attached())

	payload := protocol.EvalPayload{Topic: "marionette:execute:1-0001", Script: "1+1"}
	require.NoError(t, s.Dispatch(context.Background(), payload))

	select {
	case got := <-ch:
		assert.Equal(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("payload never reached the stream")
	}
}

func TestDetachStopsDispatch(t *testing.T) {
	s, _, _ := newTestSession()

	_, detach := s.Attach()
	detach()

	assert.False(t, s.Attached())
	err := s.Dispatch(context.Background(), protocol.EvalPayload{Script: "1"})
	assert.Error(t, err)
}

func TestReattachSupersedes(t *testing.T) {
	s, _, _ := newTestSession()

	oldCh, oldDetach := s.Attach()
	newCh, newDetach := s.Attach()
	defer newDetach()

	// Old stream is closed by the supersede.
	_, open := <-oldCh
	assert.False(t, open)

	// Old detach must not tear down the new attachment.
	oldDetach()
	assert.True(t, s.Attached())

	require.NoError(t, s.Dispatch(context.Background(), protocol.EvalPayload{Script: "2"}))
	select {
	case got := <-newCh:
		assert.Equal(t, "2", got.Script)
	case <-time.After(time.Second):
		t.Fatal("payload never reached the new stream")
	}
}

func TestDispatchBackloggedStream(t *testing.T) {
	s, _, _ := newTestSession()
	_, detach := s.Attach()
	defer detach()

	var err error
	for i := 0; i <= streamBuffer; i++ {
		err = s.Dispatch(context.Background(), protocol.EvalPayload{Script: "x"})
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backlogged")
}

func TestHandleEmissionResolvesWaiter(t *testing.T) {
	s, correlator, _ := newTestSession()

	h := correlator.Allocate()
	go s.HandleEmission(protocol.ExecuteTopic(h.ID()), []byte(`{"result":"2"}`))

	result, err := correlator.Await(context.Background(), h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"2"`), result)
}

func TestHandleEmissionError(t *testing.T) {
	s, correlator, _ := newTestSession()

	h := correlator.Allocate()
	go s.HandleEmission(protocol.ExecuteTopic(h.ID()), []byte(`{"error":"boom"}`))

	_, err := correlator.Await(context.Background(), h, time.Second)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
}

func TestHandleEmissionMalformedPayloadDropped(t *testing.T) {
	s, correlator, _ := newTestSession()

	h := correlator.Allocate()
	s.HandleEmission(protocol.ExecuteTopic(h.ID()), []byte(`{"neither":"field"}`))
	s.HandleEmission(protocol.ExecuteTopic(h.ID()), []byte(`not json`))
	s.HandleEmission("bogus-topic", []byte(`{"result":"1"}`))

	// Waiter is unaffected; it times out instead of receiving garbage.
	_, err := correlator.Await(context.Background(), h, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

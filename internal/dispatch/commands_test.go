package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/mock"
	"github.com/mattjoyce/marionette/internal/protocol"
)

func newBuiltinDispatcher(t *testing.T) (*Dispatcher, *mock.Registry, *events.Hub, *fakeRunner) {
	t.Helper()
	mocks := mock.NewRegistry()
	hub := events.NewHub(16)
	runner := &fakeRunner{result: json.RawMessage(`"ok"`)}
	d := New(mocks, runner)
	require.NoError(t, d.RegisterBuiltins(hub))
	return d, mocks, hub, runner
}

func TestRegisterBuiltinsCommandSet(t *testing.T) {
	d, _, _, _ := newBuiltinDispatcher(t)

	assert.Equal(t, []string{
		CmdClearMocks, CmdExecute, CmdGetMock,
		CmdResetMocks, CmdRestoreMocks, CmdSetMock,
	}, d.Commands())
}

func TestBuiltinExecute(t *testing.T) {
	d, _, _, runner := newBuiltinDispatcher(t)

	result, err := d.Dispatch(context.Background(), CmdExecute,
		json.RawMessage(`{"script":"1+1","args":[1,"x"]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(result))
	assert.Equal(t, "1+1", runner.req.Script)
	require.Len(t, runner.req.Args, 2)
}

func TestBuiltinExecuteRejectsEmptyScript(t *testing.T) {
	d, _, _, _ := newBuiltinDispatcher(t)

	_, err := d.Dispatch(context.Background(), CmdExecute, json.RawMessage(`{}`))
	require.Error(t, err)

	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.KindSerialization, perr.Kind)
}

func TestBuiltinSetAndGetMock(t *testing.T) {
	d, mocks, hub, _ := newBuiltinDispatcher(t)

	_, err := d.Dispatch(context.Background(), CmdSetMock,
		json.RawMessage(`{"command":"get-user","config":{"return_value":{"id":1}}}`))
	require.NoError(t, err)

	// The command name backfills an empty config.command.
	cfg, ok := mocks.Get("get-user")
	require.True(t, ok)
	assert.Equal(t, "get-user", cfg.Command)

	result, err := d.Dispatch(context.Background(), CmdGetMock,
		json.RawMessage(`{"command":"get-user"}`))
	require.NoError(t, err)
	var got protocol.MockConfig
	require.NoError(t, json.Unmarshal(result, &got))
	assert.JSONEq(t, `{"id":1}`, string(got.ReturnValue))

	snapshot := hub.SnapshotSince(0)
	require.NotEmpty(t, snapshot)
	assert.Equal(t, events.TypeMockSet, snapshot[0].Type)
}

func TestBuiltinGetMockAbsentIsNull(t *testing.T) {
	d, _, _, _ := newBuiltinDispatcher(t)

	result, err := d.Dispatch(context.Background(), CmdGetMock,
		json.RawMessage(`{"command":"nope"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `null`, string(result))
}

func TestBuiltinBulkClears(t *testing.T) {
	for _, cmd := range []string{CmdClearMocks, CmdResetMocks, CmdRestoreMocks} {
		t.Run(cmd, func(t *testing.T) {
			d, mocks, hub, _ := newBuiltinDispatcher(t)
			mocks.Set("a", protocol.MockConfig{Command: "a"})
			mocks.Set("b", protocol.MockConfig{Command: "b"})

			result, err := d.Dispatch(context.Background(), cmd, nil)
			require.NoError(t, err)
			assert.JSONEq(t, `null`, string(result))
			assert.Equal(t, 0, mocks.Len())

			snapshot := hub.SnapshotSince(0)
			require.NotEmpty(t, snapshot)
			assert.Equal(t, events.TypeMockCleared, snapshot[len(snapshot)-1].Type)
		})
	}
}

func TestBuiltinSetMockRequiresCommand(t *testing.T) {
	d, _, _, _ := newBuiltinDispatcher(t)

	_, err := d.Dispatch(context.Background(), CmdSetMock,
		json.RawMessage(`{"config":{"return_value":1}}`))
	require.Error(t, err)

	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.KindMock, perr.Kind)
}

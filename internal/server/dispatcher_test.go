package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quiznet/internal/account"
	"quiznet/internal/question"
	"quiznet/internal/session"
	"quiznet/internal/wire"
)

func wireRequestPost(endpoint, body string) *wire.Request {
	return &wire.Request{Method: wire.MethodPost, Endpoint: endpoint, Body: json.RawMessage(body)}
}

func wireRequestGet(endpoint string) *wire.Request {
	return &wire.Request{Method: wire.MethodGet, Endpoint: endpoint}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *State, *Client) {
	t.Helper()
	accounts := account.NewStore(0, nil)
	bank := question.NewBank(nil, nil)

	state := NewState("test", accounts, nil)
	engine := session.NewEngine(bank, state, state)
	state.Engine = engine

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	client, err := state.AddClient(serverConn)
	require.NoError(t, err)

	return NewDispatcher(state, bank), state, client
}

// recvReply drains the next encoded reply off client.SendCh and decodes
// it as a generic map, the same shape readPump's peer would receive.
func recvReply(t *testing.T, client *Client) map[string]any {
	t.Helper()
	select {
	case payload := <-client.SendCh:
		var body map[string]any
		require.NoError(t, json.Unmarshal(payload, &body))
		return body
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a reply")
		return nil
	}
}

func TestDispatchRegisterThenLoginThenThemes(t *testing.T) {
	d, _, client := newTestDispatcher(t)

	d.Dispatch(client, wireRequestPost("player/register", `{"pseudo":"alice","password":"hunter2"}`))
	reply := recvReply(t, client)
	require.Equal(t, statut201, reply["statut"])

	d.Dispatch(client, wireRequestPost("player/login", `{"pseudo":"alice","password":"hunter2"}`))
	reply = recvReply(t, client)
	require.Equal(t, statut200, reply["statut"])
	require.True(t, client.Authenticated())

	d.Dispatch(client, wireRequestGet("themes/list"))
	reply = recvReply(t, client)
	require.Equal(t, statut200, reply["statut"])
	require.Equal(t, float64(0), reply["nbThemes"])
}

func TestDispatchLoginRejectsBadPassword(t *testing.T) {
	d, _, client := newTestDispatcher(t)

	d.Dispatch(client, wireRequestPost("player/register", `{"pseudo":"alice","password":"hunter2"}`))
	recvReply(t, client)

	d.Dispatch(client, wireRequestPost("player/login", `{"pseudo":"alice","password":"wrong"}`))
	reply := recvReply(t, client)
	require.Equal(t, statut401, reply["statut"])
	require.False(t, client.Authenticated())
}

func TestDispatchSessionCreateRequiresAuth(t *testing.T) {
	d, _, client := newTestDispatcher(t)

	d.Dispatch(client, wireRequestPost("session/create", `{"name":"x"}`))
	reply := recvReply(t, client)
	require.Equal(t, statut401, reply["statut"])
}

func TestDispatchMalformedBodyIsFourHundred(t *testing.T) {
	d, _, client := newTestDispatcher(t)

	d.Dispatch(client, wireRequestPost("player/register", `not-json`))
	reply := recvReply(t, client)
	require.Equal(t, statut400, reply["statut"])
}

func TestDispatchUnknownEndpoint(t *testing.T) {
	d, _, client := newTestDispatcher(t)

	d.Dispatch(client, wireRequestGet("bogus/endpoint"))
	reply := recvReply(t, client)
	require.Equal(t, statut520, reply["statut"])
}

package wire

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequestGet(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("GET themes/list\n"))
	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, MethodGet, req.Method)
	assert.Equal(t, "themes/list", req.Endpoint)
	assert.Nil(t, req.Body)
}

func TestReadRequestPostWithBody(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("POST session/join\n{\"sessionId\":3}\n"))
	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, MethodPost, req.Method)
	assert.Equal(t, "session/join", req.Endpoint)
	assert.JSONEq(t, `{"sessionId":3}`, string(req.Body))
}

func TestReadRequestPostWithMalformedBodyIsFramedNotRejected(t *testing.T) {
	// Framing never validates JSON: a malformed body is a 400 from the
	// dispatcher, not a dropped connection (spec.md §4.6).
	r := bufio.NewReader(strings.NewReader("POST question/answer\nnot-json\n"))
	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("not-json"), req.Body)
}

func TestReadRequestMalformedHeader(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("nonsense\n"))
	_, err := ReadRequest(r)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestReadRequestUnknownMethod(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("PUT session/list\n"))
	_, err := ReadRequest(r)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestReadLineTooLong(t *testing.T) {
	huge := strings.Repeat("a", MaxLineLength+10) + "\n"
	r := bufio.NewReader(strings.NewReader(huge))
	_, err := ReadLine(r)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestEncodeAppendsExactlyOneNewline(t *testing.T) {
	b, err := Encode(map[string]string{"action": "ping"})
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), b[len(b)-1])
	assert.Equal(t, 1, strings.Count(string(b), "\n"))
}

func TestNewEnvelopeFields(t *testing.T) {
	env := NewEnvelope("account/login", "200", "ok")
	assert.Equal(t, "account/login", env.Action)
	assert.Equal(t, "200", env.Statut)
	assert.Equal(t, "ok", env.Message)
}

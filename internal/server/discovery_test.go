package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryRespondsOnlyToExactProbe(t *testing.T) {
	d := NewDiscovery("quiznet-test", 5556)
	go d.Serve("127.0.0.1:0")
	t.Cleanup(func() { d.Close() })

	// Wait for the listener to actually bind before sending a probe.
	require.Eventually(t, func() bool { return d.conn != nil }, time.Second, 5*time.Millisecond)
	addr := d.conn.LocalAddr().(*net.UDPAddr)

	client, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("not the right probe"))
	require.NoError(t, err)
	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 1024)
	_, _, err = client.ReadFromUDP(buf)
	assert.Error(t, err, "a wrong probe must not get a reply")

	_, err = client.Write([]byte(discoveryProbe))
	require.NoError(t, err)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello i'm a quiznet server:quiznet-test:5556", string(buf[:n]))
}

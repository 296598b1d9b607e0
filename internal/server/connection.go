// File: internal/server/connection.go
// quiznet server - TCP connection manager (spec.md §4.2)

package server

import (
	"bufio"
	"errors"
	"log"
	"net"

	"quiznet/internal/wire"
)

// Listener accepts TCP connections and spawns one reader/writer pair per
// client, mirroring the teacher's register/unregister-over-channels shape
// but framed around the line protocol instead of a websocket.
type Listener struct {
	state      *State
	dispatcher *Dispatcher
	ln         net.Listener
}

func NewListener(state *State, dispatcher *Dispatcher) *Listener {
	return &Listener{state: state, dispatcher: dispatcher}
}

// Serve binds addr and accepts connections until the listener is closed
// (by Close, called from the graceful-shutdown sequence in cmd/server).
func (l *Listener) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.ln = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("server: accept error: %v", err)
			continue
		}
		go l.handleConn(conn)
	}
}

// Close stops accepting new connections. In-flight readers exit on their
// own once the peer closes or a read fails (spec.md §7 shutdown sequence:
// "close listeners first, then let per-connection readers exit on EOF").
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func (l *Listener) handleConn(conn net.Conn) {
	client, err := l.state.AddClient(conn)
	if err != nil {
		log.Printf("server: rejecting connection from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	log.Printf("server: client %d connected from %s", client.ID, client.Addr)

	go l.writePump(client)
	l.readPump(client)
}

func (l *Listener) readPump(client *Client) {
	defer l.disconnect(client)

	r := bufio.NewReader(client.Conn)
	for {
		req, err := wire.ReadRequest(r)
		if err != nil {
			return
		}
		l.dispatcher.Dispatch(client, req)
	}
}

func (l *Listener) writePump(client *Client) {
	for {
		select {
		case payload := <-client.SendCh:
			if _, err := client.Conn.Write(payload); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// disconnect implements spec.md §4.2's disconnect policy: leave any
// joined session, close the socket, remove from the client table.
func (l *Listener) disconnect(client *Client) {
	if sid, ok := client.CurrentSessionID(); ok {
		l.state.Engine.Leave(sid, client.ID)
	}
	if l.state.Presence != nil {
		if pseudo := client.Pseudo(); pseudo != "" {
			l.state.Presence.MarkOffline(pseudo)
		}
	}
	client.Conn.Close()
	l.state.RemoveClient(client.ID)
	client.closeOnce.Do(func() { close(client.done) })
	log.Printf("server: client %d disconnected", client.ID)
}

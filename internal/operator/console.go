// File: internal/operator/console.go
// quiznet server - operator console
//
// A second, narrow TCP listener for server operators: list sessions,
// force-end one, kick a client. It never touches the player wire
// protocol (spec.md §6) and is gated by a TOTP code instead of an
// account, since an operator isn't a player.

package operator

import (
	"bufio"
	"bytes"
	"fmt"
	"image/png"
	"log"
	"net"
	"os"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"quiznet/internal/session"
)

// clientKicker is the narrow slice of server.State the console needs to
// kick a connection. Declared locally to avoid an operator->server
// import cycle (server already imports session, which operator also
// needs).
type clientKicker interface {
	Kick(clientID int) bool
}

// Console is the operator-facing control surface.
type Console struct {
	serverName string
	secret     string
	engine     *session.Engine
	clients    clientKicker
	ln         net.Listener
}

// New generates (or accepts) a TOTP secret for the operator console. If
// secret is empty, a fresh one is generated and its enrollment QR code
// is written as a PNG to qrPath so an operator can scan it once.
func New(serverName, secret, qrPath string, engine *session.Engine, clients clientKicker) (*Console, error) {
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "quiznet",
			AccountName: serverName,
		})
		if err != nil {
			return nil, fmt.Errorf("operator: generate TOTP secret: %w", err)
		}
		secret = key.Secret()

		if qrPath != "" {
			if err := writeEnrollmentQR(key.URL(), qrPath); err != nil {
				log.Printf("operator: failed to write enrollment QR: %v", err)
			} else {
				log.Printf("operator: wrote enrollment QR to %s", qrPath)
			}
		}
		log.Printf("operator: TOTP secret (store this, it is shown once): %s", secret)
	}

	return &Console{serverName: serverName, secret: secret, engine: engine, clients: clients}, nil
}

func writeEnrollmentQR(url, path string) error {
	code, err := qr.Encode(url, qr.M, qr.Auto)
	if err != nil {
		return err
	}
	scaled, err := barcode.Scale(code, 256, 256)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Serve binds addr and handles each operator connection in its own
// goroutine.
func (c *Console) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	c.ln = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil // listener closed during shutdown
		}
		go c.handle(conn)
	}
}

func (c *Console) Close() error {
	if c.ln == nil {
		return nil
	}
	return c.ln.Close()
}

func (c *Console) handle(conn net.Conn) {
	defer conn.Close()
	correlationID := uuid.NewString()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	rw.WriteString("TOTP code: ")
	rw.Flush()
	code, err := rw.ReadString('\n')
	if err != nil {
		return
	}
	code = strings.TrimSpace(code)
	if !totp.Validate(code, c.secret) {
		log.Printf("operator: %s: denied", correlationID)
		rw.WriteString("denied\n")
		rw.Flush()
		return
	}
	log.Printf("operator: %s: authenticated from %s", correlationID, conn.RemoteAddr())
	rw.WriteString("ok\n")
	rw.Flush()

	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		log.Printf("operator: %s: %s", correlationID, cmd)
		rw.WriteString(c.runCommand(cmd))
		rw.WriteString("\n")
		rw.Flush()
	}
}

func (c *Console) runCommand(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "sessions":
		views := c.engine.List()
		var sb strings.Builder
		for _, v := range views {
			fmt.Fprintf(&sb, "%d\t%s\t%s\t%s\t%d/%d players\n",
				v.ID, v.Name, v.Mode, v.Status, v.NbPlayers, v.MaxPlayers)
		}
		return sb.String()

	case "end":
		if len(fields) != 2 {
			return "usage: end <sessionId>"
		}
		var id int
		if _, err := fmt.Sscanf(fields[1], "%d", &id); err != nil {
			return "invalid sessionId"
		}
		if c.engine.ForceEnd(id) {
			return fmt.Sprintf("ended session %d", id)
		}
		return "no such session"

	case "kick":
		if len(fields) != 2 {
			return "usage: kick <clientId>"
		}
		var id int
		if _, err := fmt.Sscanf(fields[1], "%d", &id); err != nil {
			return "invalid clientId"
		}
		if c.clients.Kick(id) {
			return fmt.Sprintf("kicked client %d", id)
		}
		return "no such client"

	case "help":
		return "commands: sessions, end <sessionId>, kick <clientId>"

	default:
		return "unknown command: " + fields[0]
	}
}

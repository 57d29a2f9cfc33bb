// Package ws ingests remote command text over websocket. Connections run on
// their own goroutines and touch nothing but the thread-safe command queue.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"modhost.dev/internal/engine"
	"modhost.dev/internal/protocol"
)

type Server struct {
	queue  *engine.CommandQueue
	log    *log.Logger
	schema *jsonschema.Schema
	host   string

	upgrader websocket.Upgrader
}

func NewServer(queue *engine.CommandQueue, host, commandSchemaPath string, logger *log.Logger) (*Server, error) {
	schema, err := jsonschema.Compile(commandSchemaPath)
	if err != nil {
		return nil, err
	}
	s := &Server{
		queue:  queue,
		log:    logger,
		schema: schema,
		host:   host,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client := s.handshake(conn)
		if client == "" {
			return
		}
		s.log.Printf("remote console connected: %s", client)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				continue
			}
			if base.ProtocolVersion != protocol.Version {
				s.writeError(conn, "bad_version", "unsupported protocol version")
				continue
			}

			var raw any
			if err := json.Unmarshal(msg, &raw); err != nil {
				continue
			}
			if err := s.schema.Validate(raw); err != nil {
				s.writeError(conn, "bad_command", err.Error())
				continue
			}

			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			s.queue.Enqueue(cmd.Line)
		}

		s.log.Printf("remote console disconnected: %s", client)
	}
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		s.writeError(conn, "bad_version", "unsupported protocol version")
		return ""
	}
	name := hello.ClientName
	if name == "" {
		name = "anonymous"
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Host:            s.host,
		Commands:        s.commandListing(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(welcome); err != nil {
		return ""
	}
	return name
}

func (s *Server) commandListing() []protocol.CommandInfo {
	defs := s.queue.Commands()
	out := make([]protocol.CommandInfo, 0, len(defs))
	for _, cmd := range defs {
		out = append(out, protocol.CommandInfo{Name: cmd.Name, Owner: cmd.Owner, Summary: cmd.Summary})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) writeError(conn *websocket.Conn, code, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteJSON(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

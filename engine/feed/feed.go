// Package feed implements an optional out-of-process bridge: a small
// WebSocket server that turns inbound JSON frames into
// EnqueueExternalEvent calls on a program, so a host process can push
// external events without linking the program in-process. Grounded on
// the teacher's native WebSocket usage in
// kernel/core/mesh/transport/transport_native.go and
// signaling_native.go (gorilla/websocket Upgrader/Conn), adapted from
// peer signaling to a single inbound event sink.
package feed

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/nmxmxh/bp-runtime/utils"
)

// Enqueuer is the subset of *program.Program a Bridge needs.
type Enqueuer interface {
	EnqueueExternalEvent(e event.Event) error
}

// Frame is the wire shape of one inbound external event.
type Frame struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

// Bridge upgrades incoming HTTP connections to WebSocket and feeds
// every decoded Frame into the bound program's external queue.
type Bridge struct {
	target   Enqueuer
	upgrader websocket.Upgrader
	log      *utils.Logger
}

// New builds a Bridge that enqueues onto target.
func New(target Enqueuer, log *utils.Logger) *Bridge {
	if log == nil {
		log = utils.DefaultLogger("feed")
	}
	return &Bridge{
		target:   target,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		log:      log,
	}
}

// ServeHTTP implements http.Handler, upgrading the connection and
// reading frames until the client disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Error("websocket upgrade failed", utils.Err(err))
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.log.Warn("feed connection closed unexpectedly", utils.Err(err))
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.log.Warn("dropping malformed feed frame", utils.Err(err))
			continue
		}
		if err := b.target.EnqueueExternalEvent(event.New(f.Name, f.Payload)); err != nil {
			b.log.Warn("external enqueue rejected", utils.Err(err), utils.String("event", f.Name))
		}
	}
}

// ListenAndServe starts an HTTP server on addr with the bridge mounted
// at path, blocking until it returns an error (e.g. on shutdown).
func (b *Bridge) ListenAndServe(addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, b)
	b.log.Info("feed bridge listening", utils.String("addr", addr), utils.String("path", path))
	return http.ListenAndServe(addr, mux)
}

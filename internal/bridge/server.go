// Package bridge carries contactless frames over a websocket so a responder
// can be reached across the network: one binary message per command frame,
// one binary message per answer.
package bridge

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/pkg/hce"
)

// Path is where Server accepts connections.
const Path = "/hce"

// Processor answers command frames; *hce.Responder implements it.
type Processor interface {
	ProcessCommand(frame []byte) []byte
	Deactivated(reason hce.DeactivationReason)
}

// Server exposes a Processor over websocket.
type Server struct {
	proc     Processor
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer returns a handler for Path.
func NewServer(proc Processor, log zerolog.Logger) *Server {
	return &Server{
		proc: proc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // peers are native clients, not browsers
			},
		},
		log: log.With().Str("component", "bridge.server").Logger(),
	}
}

// Handler mounts the server on Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.log.With().Str("conn", uuid.New().String()).Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("peer connected")

	for {
		messageType, frame, err := conn.ReadMessage()
		if err != nil {
			reason := hce.LinkLoss
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				reason = hce.Deselected
			}
			s.proc.Deactivated(reason)
			log.Debug().Err(err).Msg("peer disconnected")
			return
		}
		if messageType != websocket.BinaryMessage {
			log.Warn().Int("type", messageType).Msg("ignoring non-binary message")
			continue
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, s.proc.ProcessCommand(frame)); err != nil {
			s.proc.Deactivated(hce.LinkLoss)
			log.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

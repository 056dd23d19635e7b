package handler

import (
	"context"
	"encoding/json"
	"time"

	"precinct-nav/worker"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WSMessage is a client request on the route socket.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSResult is pushed back for the newest query only; answers to queries
// superseded by a later one are dropped.
type WSResult struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

const wsSendBuffer = 16

// ServeRouteWS runs an interactive routing session: clients stream queries
// while dragging endpoints and receive only the latest answer.
func (s *Server) ServeRouteWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	send := make(chan []byte, wsSendBuffer)
	session := worker.NewSession(s.pool, func(seq uint64, res WSResult) {
		res.Seq = seq
		s.enqueue(send, res)
	})
	logger := s.logger.With(zap.String("session", session.ID))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go s.writeLoop(ctx, conn, send, logger)

	s.readLoop(ctx, conn, session, send, logger)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, session *worker.Session[WSResult], send chan []byte, logger *zap.Logger) {
	defer func() {
		session.Close()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("invalid message format", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "route":
			var req PathRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				s.enqueue(send, WSResult{Type: "error", Error: "invalid route payload"})
				continue
			}
			s.submit(ctx, session, send, func(st *State) (any, error) {
				return s.computeRoute(ctx, st, req)
			})

		case "hybrid":
			var req HybridRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				s.enqueue(send, WSResult{Type: "error", Error: "invalid hybrid payload"})
				continue
			}
			s.submit(ctx, session, send, func(st *State) (any, error) {
				return s.computeHybrid(ctx, st, req)
			})

		case "ping":
			s.enqueue(send, WSResult{Type: "pong"})
		}
	}
}

// submit queues a search against the State active at submission time.
func (s *Server) submit(ctx context.Context, session *worker.Session[WSResult], send chan []byte, search func(*State) (any, error)) {
	st := s.State()
	if st == nil || st.Graph == nil {
		s.enqueue(send, WSResult{Type: "error", Error: "map data not loaded"})
		return
	}
	_, err := session.Submit(ctx, func() WSResult {
		payload, err := search(st)
		if err != nil {
			return WSResult{Type: "route_result", Error: err.Error()}
		}
		return WSResult{Type: "route_result", Payload: payload}
	})
	if err != nil {
		s.enqueue(send, WSResult{Type: "error", Error: err.Error()})
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, send chan []byte, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// enqueue never blocks the caller, which may be a pool worker.
func (s *Server) enqueue(send chan []byte, res WSResult) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}
	select {
	case send <- data:
	default:
		s.logger.Debug("websocket send buffer full, dropping message", zap.String("type", res.Type))
	}
}

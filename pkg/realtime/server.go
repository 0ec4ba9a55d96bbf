package realtime

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	socket "github.com/zishang520/socket.io/socket"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/internal/features/user"
	jwtutil "github.com/edutech/marketplace-server-go/internal/utils/jwt"
	"github.com/edutech/marketplace-server-go/pkg/metrics"
)

// Server wraps the Socket.IO server with course room handling.
type Server struct {
	io       *socket.Server
	db       *gorm.DB
	logger   *slog.Logger
	registry *Registry
	engine   *Engine

	jwtSecret string

	heartbeatStop chan struct{}
	heartbeatWG   sync.WaitGroup

	connMutex   sync.RWMutex
	connections map[string]*socket.Socket
	sessions    map[string]*Session
}

// NewServer creates a new Socket.IO server backed by the room registry.
func NewServer(db *gorm.DB, logger *slog.Logger, registry *Registry, jwtSecret string) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(60 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetServeClient(false)
	opts.SetPath("/socket.io")

	server := socket.NewServer(nil, opts)

	s := &Server{
		io:          server,
		db:          db,
		logger:      logger,
		registry:    registry,
		engine:      NewEngine(registry, logger),
		jwtSecret:   jwtSecret,
		connections: make(map[string]*socket.Socket),
		sessions:    make(map[string]*Session),
	}

	s.setupEventHandlers()
	s.startHeartbeat()

	return s, nil
}

// Engine returns the broadcast engine bound to this server's registry.
func (s *Server) Engine() *Engine {
	return s.engine
}

// GetHandler returns the HTTP handler for Socket.IO.
func (s *Server) GetHandler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Close shuts down the Socket.IO server.
func (s *Server) Close() error {
	if stop := s.heartbeatStop; stop != nil {
		close(stop)
		s.heartbeatWG.Wait()
		s.heartbeatStop = nil
	}

	done := make(chan struct{})
	s.io.Close(func() {
		close(done)
	})

	<-done
	return nil
}

func (s *Server) setupEventHandlers() {
	s.io.Use(s.connectionMiddleware)
	s.io.On("connection", func(args ...any) {
		sock, ok := args[0].(*socket.Socket)
		if !ok {
			s.logger.Error("unexpected connection payload", slog.Any("payload", args))
			return
		}
		s.handleConnection(sock)
	})
}

// connectionMiddleware authenticates the handshake. Connections with a
// missing or invalid token never reach the connection handler.
func (s *Server) connectionMiddleware(sock *socket.Socket, next func(*socket.ExtendedError)) {
	token := s.extractToken(sock)
	if token == "" {
		s.logger.Warn("socket connection rejected: missing token")
		next(socket.NewExtendedError("missing authentication token", map[string]any{"code": "MISSING_TOKEN"}))
		return
	}

	claims, err := jwtutil.VerifyToken(token, s.jwtSecret)
	if err != nil {
		s.logger.Warn("socket connection rejected: invalid token", slog.String("error", err.Error()))
		next(socket.NewExtendedError("invalid token", map[string]any{"code": "INVALID_TOKEN"}))
		return
	}

	var userData user.User
	if err := s.db.First(&userData, "id = ?", claims.UserID).Error; err != nil {
		s.logger.Warn("socket connection rejected: user not found", slog.Any("userId", claims.UserID), slog.String("error", err.Error()))
		next(socket.NewExtendedError("user not found", map[string]any{"code": "USER_NOT_FOUND"}))
		return
	}

	sock.SetData(&userData)
	next(nil)
}

func (s *Server) handleConnection(sock *socket.Socket) {
	userData := s.getUserFromSocket(sock)
	if userData == nil {
		s.logger.Error("connection established without user context")
		sock.Disconnect(true)
		return
	}

	conn := &socketConn{sock: sock}
	session := NewSession(conn, s.registry)
	if err := session.Authenticate(userData.ID); err != nil {
		s.logger.Error("session authentication failed", slog.String("error", err.Error()))
		sock.Disconnect(true)
		return
	}
	if err := session.Activate(); err != nil {
		s.logger.Error("session activation failed", slog.String("error", err.Error()))
		sock.Disconnect(true)
		return
	}

	s.connMutex.Lock()
	s.connections[conn.ID()] = sock
	s.sessions[conn.ID()] = session
	s.connMutex.Unlock()
	metrics.ConnectionOpened()

	s.logger.Info("WebSocket connected",
		slog.String("user", userData.DisplayName()),
		slog.String("userId", userData.ID.String()),
		slog.String("connId", conn.ID()),
	)

	if err := sock.Emit("connectionConfirmed", map[string]any{
		"userId":    userData.ID.String(),
		"userName":  userData.DisplayName(),
		"userEmail": userData.Email,
		"role":      userData.Role,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Warn("failed to emit connection confirmation", slog.String("error", err.Error()))
	}

	s.registerEventHandlers(sock, session)
}

func (s *Server) registerEventHandlers(sock *socket.Socket, session *Session) {
	sock.On("joinCourse", func(args ...any) {
		courseID := stringArg(args)
		if courseID == "" {
			s.emitError(sock, "INVALID_INPUT", "course ID is required")
			return
		}
		if err := session.JoinCourse(courseID); err != nil {
			s.emitError(sock, "NOT_ACTIVE", "session is not active")
			return
		}
		s.logger.Debug("joined course room",
			slog.String("courseId", courseID), slog.String("connId", session.ConnID()))
	})

	sock.On("leaveCourse", func(args ...any) {
		courseID := stringArg(args)
		if courseID == "" {
			s.emitError(sock, "INVALID_INPUT", "course ID is required")
			return
		}
		if err := session.LeaveCourse(courseID); err != nil {
			s.emitError(sock, "NOT_ACTIVE", "session is not active")
			return
		}
	})

	sock.On("video:progress:update", func(args ...any) {
		payload := mapArg(args)
		if payload == nil {
			s.emitError(sock, "INVALID_INPUT", "progress payload is required")
			return
		}
		s.handleProgressUpdate(session, payload)
	})

	sock.On("pong", func(args ...any) {
		if len(args) > 0 {
			s.logger.Debug("pong received", slog.Any("value", args[0]))
		}
	})

	sock.On("disconnect", func(args ...any) {
		reason := "client"
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		s.handleDisconnect(session, reason)
	})
}

// handleProgressUpdate relays a viewer's progress to the other
// connections in the course room. These updates are ephemeral at this
// layer; durable progress goes through the HTTP endpoint.
func (s *Server) handleProgressUpdate(session *Session, payload map[string]any) {
	courseID := strings.TrimSpace(stringValue(payload, "courseId"))
	videoID := strings.TrimSpace(stringValue(payload, "videoId"))
	if courseID == "" || videoID == "" {
		return
	}

	s.engine.PublishExcept(courseID, "video:progress:update", map[string]any{
		"courseId":  courseID,
		"videoId":   videoID,
		"progress":  payload["progress"],
		"completed": payload["completed"],
		"userId":    session.UserID().String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, session.ConnID())
}

func (s *Server) handleDisconnect(session *Session, reason string) {
	session.Close()

	s.connMutex.Lock()
	delete(s.connections, session.ConnID())
	delete(s.sessions, session.ConnID())
	s.connMutex.Unlock()
	metrics.ConnectionClosed()

	s.logger.Info("WebSocket disconnected",
		slog.String("userId", session.UserID().String()),
		slog.String("connId", session.ConnID()),
		slog.String("reason", reason),
	)
}

func (s *Server) startHeartbeat() {
	s.heartbeatStop = make(chan struct{})
	s.heartbeatWG.Add(1)

	go func() {
		defer s.heartbeatWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sendHeartbeat()
			case <-s.heartbeatStop:
				return
			}
		}
	}()
}

func (s *Server) sendHeartbeat() {
	timestamp := time.Now().Unix()

	// Emitting happens outside the lock so a slow push never stalls
	// connect/disconnect bookkeeping.
	s.connMutex.RLock()
	socks := make(map[string]*socket.Socket, len(s.connections))
	for id, sock := range s.connections {
		socks[id] = sock
	}
	s.connMutex.RUnlock()

	for id, sock := range socks {
		if err := sock.Emit("ping", timestamp); err != nil {
			s.logger.Debug("heartbeat emit failed", slog.String("connId", id), slog.String("error", err.Error()))
		}
	}
}

func (s *Server) getUserFromSocket(sock *socket.Socket) *user.User {
	if sock == nil {
		return nil
	}
	if data, ok := sock.Data().(*user.User); ok {
		return data
	}
	return nil
}

func (s *Server) emitError(sock *socket.Socket, code, message string) {
	if sock == nil {
		return
	}
	if err := sock.Emit("error", map[string]any{
		"code":    code,
		"message": message,
	}); err != nil {
		s.logger.Debug("failed to emit error", slog.String("error", err.Error()))
	}
}

func (s *Server) extractToken(sock *socket.Socket) string {
	if sock == nil {
		return ""
	}

	if conn := sock.Conn(); conn != nil {
		if ctx := conn.Request(); ctx != nil {
			if req := ctx.Request(); req != nil {
				if token := req.URL.Query().Get("token"); token != "" {
					return token
				}
			}
			if query := ctx.Query(); query != nil {
				if token, ok := query.Get("token"); ok && token != "" {
					return token
				}
			}
		}
	}

	if hs := sock.Handshake(); hs != nil {
		if hs.Query != nil {
			if token, ok := hs.Query.Get("token"); ok && token != "" {
				return token
			}
		}
		if authMap, ok := hs.Auth.(map[string]any); ok {
			if token, ok := authMap["token"].(string); ok {
				return token
			}
		}
	}

	return ""
}

// socketConn adapts a Socket.IO socket to the registry's Conn type.
type socketConn struct {
	sock *socket.Socket
}

func (c *socketConn) ID() string {
	return string(c.sock.Id())
}

func (c *socketConn) Emit(event string, payload any) error {
	return c.sock.Emit(event, payload)
}

func stringValue(payload map[string]any, key string) string {
	if val, ok := payload[key]; ok {
		switch v := val.(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		case []byte:
			return string(v)
		}
	}
	return ""
}

func stringArg(args []any) string {
	if len(args) == 0 {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case []byte:
		return string(v)
	}
	return ""
}

func mapArg(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	if payload, ok := args[0].(map[string]any); ok {
		return payload
	}
	return nil
}

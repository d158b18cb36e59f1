// Package dashboard serves the control page backend: slot state over HTTP
// and a websocket that pushes slot events and accepts commands.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// DefaultAddr is the listen address of the dashboard.
const DefaultAddr = ":8080"

const shutdownTimeout = 5 * time.Second

// Controller is the slot controller as seen by the dashboard.
type Controller interface {
	Apply(cmd domain.Command) error
	Snapshot() []domain.SlotState
	Slot(id domain.SlotID) (domain.SlotState, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // OBS browser sources send no useful origin
}

// Server is the dashboard HTTP server.
type Server struct {
	hub    *Hub
	ctrl   Controller
	log    *logger.Logger
	engine *gin.Engine
}

// NewServer builds the routes.
func NewServer(hub *Hub, ctrl Controller, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{hub: hub, ctrl: ctrl, log: log, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.requestLog())

	s.engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.GET("/api/slots", s.handleSlots)
	s.engine.GET("/obs", s.handleOverlay)
	s.engine.GET("/ws", s.handleWebsocket)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dashboard: listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
	}

	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func (s *Server) handleSlots(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Snapshot())
}

// handleOverlay returns one slot for an OBS browser source. An invalid
// ?user= falls back to slot 1.
func (s *Server) handleOverlay(c *gin.Context) {
	id := domain.SlotID(1)
	if n, err := strconv.Atoi(c.DefaultQuery("user", "1")); err == nil {
		id = domain.SlotID(n)
	}
	state, err := s.ctrl.Slot(id)
	if err != nil {
		state, err = s.ctrl.Slot(1)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("dashboard: ws upgrade failed: %v", err)
		return
	}
	cl := s.hub.register(conn)
	defer s.hub.unregister(cl)

	if frame, err := EncodeSlots(s.ctrl.Snapshot()); err == nil {
		s.hub.sendTo(cl, frame)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("dashboard: read from %s: %v", cl.id, err)
			}
			return
		}
		s.handleCommand(frame)
	}
}

func (s *Server) handleCommand(frame []byte) {
	cmd, err := DecodeCommand(frame)
	if err != nil {
		s.log.Warn("dashboard: ignoring command: %v", err)
		return
	}
	s.log.Debug("dashboard: %s for slot %d", cmd.Kind, cmd.Slot)
	if err := s.ctrl.Apply(cmd); err != nil {
		s.log.Warn("dashboard: %s for slot %d: %v", cmd.Kind, cmd.Slot, err)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("dashboard: %s %s %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

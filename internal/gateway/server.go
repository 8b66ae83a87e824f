// Package gateway exposes the update log to clients over websockets: it
// authenticates sessions, appends their edits with a trusted sender tag,
// and streams per-object events with resumable positions.
package gateway

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"

	"collabstream/internal/auth"
	"collabstream/internal/collab"
	"collabstream/internal/updatelog"
)

// Config holds the realtime gateway configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// StreamName is the update log stream served by this gateway.
	// Defaults to "updates".
	StreamName string `yaml:"stream_name"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

var queryDecoder = schema.NewDecoder()

// handshakeParams are the connection query parameters.
type handshakeParams struct {
	Token       string `schema:"token"`
	WorkspaceID string `schema:"workspace_id"`
	DeviceID    string `schema:"device_id"`
}

// Server accepts realtime websocket connections for one deployment.
type Server struct {
	cfg      Config
	log      *slog.Logger
	provider updatelog.Provider
	tokens   *auth.TokenService
	appender updatelog.Appender
	mux      *http.ServeMux
}

func NewServer(cfg Config, provider updatelog.Provider, tokens *auth.TokenService, logger *slog.Logger) (*Server, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = "updates"
	}

	appender, err := provider.NewAppender(updatelog.AppenderOptions{
		StreamName: cfg.StreamName,
	})
	if err != nil {
		return nil, fmt.Errorf("create appender: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		log:      logger.With("component", "gateway"),
		provider: provider,
		tokens:   tokens,
		appender: appender,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/realtime", s.serveWS)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) Close() error {
	return s.appender.Close()
}

func (s *Server) subject(workspaceID collab.WorkspaceID, objectID collab.ObjectID) string {
	return s.cfg.StreamName + "." + workspaceID.String() + "." + objectID.String()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	var params handshakeParams
	if err := queryDecoder.Decode(&params, r.URL.Query()); err != nil {
		http.Error(w, "invalid query parameters", http.StatusBadRequest)
		return
	}

	claims, err := s.tokens.ValidateToken(params.Token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	workspaceID, err := collab.ParseWorkspaceID(params.WorkspaceID)
	if err != nil {
		http.Error(w, "invalid workspace id", http.StatusBadRequest)
		return
	}

	deviceID := claims.DeviceID
	if deviceID == "" {
		deviceID = params.DeviceID
	}
	if deviceID == "" {
		http.Error(w, "device id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s, conn, workspaceID, collab.ClientOrigin(claims.UID, deviceID))
	s.log.Info("Realtime connection established",
		"workspace_id", workspaceID,
		"uid", claims.UID,
		"device_id", deviceID,
	)

	go c.writePump()
	go c.readPump()
}

package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrelay/internal/server"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RelayApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *RelayApp) onlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.OnlineUsers())
}

func (s *RelayApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients don't send an origin
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	// empty unless authentication is required
	userId, _ := UserId(r.Context())

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(userId, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}

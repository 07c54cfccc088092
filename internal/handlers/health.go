// internal/handlers/health.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/neonmarble/internal/middleware"
	"github.com/jason-s-yu/neonmarble/internal/relay"
	"github.com/sirupsen/logrus"
)

type healthResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ActiveRooms int    `json:"activeRooms"`
}

// HealthHandler reports liveness and the number of open rooms.
func HealthHandler(rooms *relay.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:      "ok",
			Message:     "Marble relay server is running",
			ActiveRooms: rooms.Len(),
		})
	}
}

// RoomsHandler lists the open rooms.
func RoomsHandler(rooms *relay.RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rooms.Infos())
	}
}

// NewMux wires the relay's HTTP surface behind the request logger.
func NewMux(logger *logrus.Logger, rooms *relay.RoomStore, ws http.HandlerFunc) *http.ServeMux {
	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("/", logged(HealthHandler(rooms)))
	mux.Handle("/rooms", logged(RoomsHandler(rooms)))
	mux.Handle("/ws", logged(ws))
	return mux
}

package http

import (
	"net/http"

	"signsense-quiz-service/internal/app"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter mounts the room API, the live feed and the health check.
func NewRouter(rooms *app.RoomService, poller *app.Poller, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	roomHandler := NewRoomHandler(rooms, logger)
	wsHandler := NewWSHandler(rooms, poller, logger)

	r := mux.NewRouter()
	r.Use(accessLog(logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/rooms", roomHandler.Create).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{code}", roomHandler.Get).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{code}", roomHandler.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/rooms/{code}/join", roomHandler.Join).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{code}/start", roomHandler.Start).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{code}/advance", roomHandler.Advance).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{code}/end", roomHandler.End).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{code}/question", roomHandler.Question).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{code}/answer", roomHandler.Answer).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{code}/ws", wsHandler.ServeWS).Methods(http.MethodGet)
	return r
}

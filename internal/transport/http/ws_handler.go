package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler streams room snapshots to a connected host, player or observer
// and accepts player answers on the same socket.
type WSHandler struct {
	rooms    *app.RoomService
	poller   *app.Poller
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, poller *app.Poller, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		rooms:  rooms,
		poller: poller,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer string `json:"answer"`
	// QuestionIndex defaults to the last question pushed on this socket.
	QuestionIndex *int `json:"question_index,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type joinedPayload struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades GET /v1/rooms/{code}/ws[?name=...]. With a name the socket
// joins as that player; without one it only observes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	name := r.URL.Query().Get("name")
	if name != "" {
		if err := domain.ValidatePlayerName(name); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var player *app.PlayerController
	if name != "" {
		player, err = app.JoinAsPlayer(ctx, h.rooms, h.poller, code, name)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
	} else if _, err := h.rooms.ReadRoom(ctx, code); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	watchDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	push := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-closeSignals:
		}
	}

	var (
		mu     sync.Mutex
		latest domain.Room
	)
	go func() {
		defer close(watchDone)
		err := h.poller.Watch(ctx, code, app.RoomEvents{
			OnSnapshot: func(room domain.Room) {
				mu.Lock()
				latest = room
				mu.Unlock()
				push("snapshot", newRoomView(room))
			},
			OnStarted: func(room domain.Room) { push("started", joinedPayload{Code: room.Code}) },
			OnQuestion: func(room domain.Room) {
				q, err := h.rooms.CurrentQuestion(ctx, room)
				if err != nil {
					push("error", errorPayload{Message: err.Error()})
					return
				}
				push("question", newQuestionView(room.QuestionIndex, q))
			},
			OnFinished: func(room domain.Room) { push("finished", newRoomView(room)) },
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			push("error", errorPayload{Message: err.Error()})
		}
	}()

	push("joined", joinedPayload{Code: code, Name: name})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			if player == nil {
				push("error", errorPayload{Message: "observers cannot answer"})
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			mu.Lock()
			snapshot := latest.Clone()
			mu.Unlock()
			if snapshot.Code == "" {
				push("error", errorPayload{Message: "no question yet"})
				continue
			}
			if payload.QuestionIndex != nil {
				snapshot.QuestionIndex = *payload.QuestionIndex
			}
			out, err := player.Answer(ctx, snapshot, payload.Answer)
			if err != nil {
				push("error", errorPayload{Message: err.Error()})
				continue
			}
			push("answerResult", answerResponse{AnswerOutcome: out, QuestionIndex: snapshot.QuestionIndex})
		default:
			push("error", errorPayload{Message: "unsupported message type"})
		}
	}

	cancel()
	close(closeSignals)
	<-watchDone
	close(send)
	<-writerDone
}

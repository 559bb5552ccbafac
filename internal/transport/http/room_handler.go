package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"signsense-quiz-service/internal/app"
	"signsense-quiz-service/internal/domain"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RoomHandler exposes the host and player room operations over REST.
type RoomHandler struct {
	rooms  *app.RoomService
	logger *zap.Logger
}

func NewRoomHandler(rooms *app.RoomService, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

type createRoomRequest struct {
	Subject string `json:"subject"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type answerRequest struct {
	Name   string `json:"name"`
	Answer string `json:"answer"`
	// QuestionIndex pins the answer to the question the player saw.
	QuestionIndex *int `json:"question_index,omitempty"`
}

type answerResponse struct {
	app.AnswerOutcome
	QuestionIndex int `json:"question_index"`
}

// roomView is a room snapshot plus its ranked scoreboard.
type roomView struct {
	domain.Room
	Scoreboard []domain.ScoreboardEntry `json:"scoreboard"`
}

// newRoomView hides chosen answers until the room is finished; the scoreboard
// still reports who has answered the current question.
func newRoomView(room domain.Room) roomView {
	board := room.Scoreboard()
	if room.State == domain.RoomFinished {
		return roomView{Room: room, Scoreboard: board}
	}
	room = room.Clone()
	for name, p := range room.Players {
		p.Answer = nil
		room.Players[name] = p
	}
	for i := range board {
		board[i].Answer = ""
	}
	return roomView{Room: room, Scoreboard: board}
}

// questionView hides the correct answer from players.
type questionView struct {
	Index      int               `json:"index"`
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Options    []string          `json:"options"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Hints      []string          `json:"hints,omitempty"`
	Media      []string          `json:"media,omitempty"`
}

func newQuestionView(index int, q domain.Question) questionView {
	return questionView{
		Index:      index,
		ID:         q.ID,
		Text:       q.Text,
		Options:    q.Options,
		Difficulty: q.Difficulty,
		Hints:      q.Hints,
		Media:      q.Media,
	}
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	room, err := h.rooms.CreateRoom(r.Context(), req.Subject)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRoomView(room))
}

// Get handles GET /v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.ReadRoom(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoomView(room))
}

// Delete handles DELETE /v1/rooms/{code}
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.rooms.EndSession(r.Context(), mux.Vars(r)["code"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Join handles POST /v1/rooms/{code}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.rooms.JoinRoom(r.Context(), code, req.Name); err != nil {
		h.fail(w, err)
		return
	}
	h.writeRoom(w, r, code)
}

// Start handles POST /v1/rooms/{code}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := h.rooms.HostStart(r.Context(), code); err != nil {
		h.fail(w, err)
		return
	}
	h.writeRoom(w, r, code)
}

// Advance handles POST /v1/rooms/{code}/advance
func (h *RoomHandler) Advance(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := h.rooms.HostAdvance(r.Context(), code); err != nil {
		h.fail(w, err)
		return
	}
	h.writeRoom(w, r, code)
}

// End handles POST /v1/rooms/{code}/end
func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if err := h.rooms.HostEnd(r.Context(), code); err != nil {
		h.fail(w, err)
		return
	}
	h.writeRoom(w, r, code)
}

// Question handles GET /v1/rooms/{code}/question
func (h *RoomHandler) Question(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.ReadRoom(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		h.fail(w, err)
		return
	}
	if room.State != domain.RoomPlaying {
		writeError(w, http.StatusConflict, "room is "+string(room.State))
		return
	}
	q, err := h.rooms.CurrentQuestion(r.Context(), room)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuestionView(room.QuestionIndex, q))
}

// Answer handles POST /v1/rooms/{code}/answer
func (h *RoomHandler) Answer(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		out   app.AnswerOutcome
		index int
		err   error
	)
	if req.QuestionIndex == nil {
		out, index, err = h.rooms.SubmitCurrentAnswer(r.Context(), code, req.Name, req.Answer)
	} else {
		index = *req.QuestionIndex
		out, err = h.rooms.SubmitIndexedAnswer(r.Context(), code, req.Name, index, req.Answer)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{AnswerOutcome: out, QuestionIndex: index})
}

func (h *RoomHandler) writeRoom(w http.ResponseWriter, r *http.Request, code string) {
	room, err := h.rooms.ReadRoom(r.Context(), code)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRoomView(room))
}

func (h *RoomHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("room request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrPlayerNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPlayerName), errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrConcurrentUpdate), errors.Is(err, domain.ErrRoomExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

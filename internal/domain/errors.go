package domain

import "errors"

var (
	// ErrConfiguration is returned when a question source is missing or malformed.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnknownMode indicates an accessibility mode outside the scoring table.
	ErrUnknownMode = errors.New("unknown accessibility mode")
	// ErrInvalidState is returned when an operation is not legal for the current session state.
	ErrInvalidState = errors.New("invalid session state")

	// ErrRoomNotFound is returned when a room code does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned by stores when creating a room whose code is taken.
	ErrRoomExists = errors.New("room already exists")
	// ErrInvalidTransition indicates a host action that would move the lifecycle backwards or sideways.
	ErrInvalidTransition = errors.New("invalid room transition")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrInvalidPlayerName rejects names that cannot be stored as a player key.
	ErrInvalidPlayerName = errors.New("invalid player name")
	// ErrAlreadyAnswered is returned when a player answers the same question twice.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrQuestionNotFound indicates the room's question pointer is outside its bank.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrStoreUnavailable wraps backend read/write failures. Retried with backoff.
	ErrStoreUnavailable = errors.New("room store unavailable")
	// ErrConcurrentUpdate is returned when a compare-and-swap lost a race. Always retried.
	ErrConcurrentUpdate = errors.New("concurrent room update")
)

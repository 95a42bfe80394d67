package domain

import (
	"errors"
	"fmt"
)

// Code identifies an error class that is reported to clients.
type Code string

const (
	CodeRoomNotFound     Code = "ROOM_NOT_FOUND"
	CodeGameAlreadyEnded Code = "GAME_ALREADY_ENDED"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeEmptyQuiz        Code = "EMPTY_QUIZ"
	CodeStaleQuestion    Code = "STALE_QUESTION"
	CodeDuplicateAnswer  Code = "DUPLICATE_ANSWER"
	CodeMalformedMessage Code = "MALFORMED_MESSAGE"
	CodeInternal         Code = "INTERNAL"
)

var (
	// ErrRoomNotFound is returned when a room code or id is unknown.
	ErrRoomNotFound = New(CodeRoomNotFound, WithMessagef("Room not found"))
	// ErrGameAlreadyEnded is returned when joining a finished room.
	ErrGameAlreadyEnded = New(CodeGameAlreadyEnded, WithMessagef("Game has already ended"))
	// ErrUnauthorized is returned when a non-host tries to start the game.
	ErrUnauthorized = New(CodeUnauthorized, WithMessagef("Only the host can start the game"))
	// ErrNotJoined is returned when a connection acts in a room it has not joined.
	ErrNotJoined = New(CodeUnauthorized, WithMessagef("Not joined to this room"))
	// ErrInvalidState is returned when an action does not fit the room status.
	ErrInvalidState = New(CodeInvalidState, WithMessagef("Action not allowed in the current room state"))
	// ErrEmptyQuiz is returned when starting a room whose quiz has no questions.
	ErrEmptyQuiz = New(CodeEmptyQuiz, WithMessagef("No questions in this quiz"))
	// ErrStaleQuestion is returned for answers to a question that is not open.
	ErrStaleQuestion = New(CodeStaleQuestion, WithMessagef("Question is not active"))
	// ErrDuplicateAnswer is returned for a second answer to the same question.
	ErrDuplicateAnswer = New(CodeDuplicateAnswer, WithMessagef("Already answered"))
	// ErrMalformedMessage is returned for frames that cannot be decoded.
	ErrMalformedMessage = New(CodeMalformedMessage, WithMessagef("Invalid message format"))
)

// ErrQuizNotFound is returned by quiz loaders. It never reaches clients
// directly; a room whose quiz is missing fails activation as an internal error.
var ErrQuizNotFound = errors.New("quiz not found")

// Error is a coded error whose Message is safe to show to clients.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: string(code),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches any *Error with the same code and message, so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

// With returns a copy of e carrying extra options, typically a cause.
func (e *Error) With(opts ...Option) *Error {
	c := *e
	for _, opt := range opts {
		opt.apply(&c)
	}
	return &c
}

// Convert returns err as an *Error, mapping anything unknown to CodeInternal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithMessagef("Internal error"), WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

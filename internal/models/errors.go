package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound         = errors.New("resource not found") // General not found
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrSessionNotFound  = errors.New("session not found")

	// Session lifecycle errors
	ErrSessionNotActive  = errors.New("session is not active")
	ErrTurnInProgress    = errors.New("another turn is already in progress for this session")
	ErrDuplicateTurn     = errors.New("turn with this number already exists for the session")
	ErrObjectiveConflict = errors.New("objective with this title already exists for the session")

	// BGM cache / single-flight errors
	ErrBgmGenerationInFlight = errors.New("bgm generation already in flight for this scenario and mood")
	ErrBgmCacheUnavailable   = errors.New("bgm cache table is unavailable")

	// Token Errors (BGM stream auth)
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
)

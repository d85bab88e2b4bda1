package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrQueueFull      = errors.New("round queue is full")
	ErrInvalidPlayers = errors.New("invalid player list")
)

package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNotFound        = errors.New("not found")
	ErrNoFixPoint      = errors.New("no fix point within lookback window")
	ErrEmptyRange      = errors.New("empty query range")
	ErrAlreadyRunning  = errors.New("stream task already running")
	ErrNilInstance     = errors.New("nil instance")
	ErrInvalidArgument = errors.New("invalid argument")
)

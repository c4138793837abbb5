package exception

import "github.com/yanun0323/errors"

// Storage errors: persisted-store I/O or SQL failure. Propagated to the
// caller; a failed batch is never silently dropped.
var (
	ErrStoreOpen       = errors.New("storage: cannot open store")
	ErrStoreWrite      = errors.New("storage: write failed")
	ErrStoreQuery      = errors.New("storage: query failed")
	ErrWriterClosed    = errors.New("storage: writer closed")
	ErrWriterQueueFull = errors.New("storage: writer queue full")
	ErrRecordRejected  = errors.New("storage: record rejected")
)

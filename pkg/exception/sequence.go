package exception

import "github.com/yanun0323/errors"

// Sequence errors: order-book discontinuities. Logged as warnings, the book
// state still advances.
var (
	ErrSequenceGap   = errors.New("sequence: update id discontinuity")
	ErrBookEmpty     = errors.New("sequence: order book has no data")
	ErrNoSnapshot    = errors.New("sequence: no snapshot applied yet")
	ErrStaleSnapshot = errors.New("sequence: snapshot older than applied updates")
)

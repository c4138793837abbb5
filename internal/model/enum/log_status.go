package enum

import "github.com/yanun0323/logs"

// LogStatus tags where a trade record came from and how trustworthy it is.
//
// The short codes are the persisted representation in the trades table.
// Case is significant: uppercase letters mark archive-sourced blocks,
// lowercase letters mark REST-backfill blocks.
type LogStatus string

const (
	// LogStatusUnfixed marks a record observed live, subject to later revision.
	LogStatusUnfixed LogStatus = "U"
	// LogStatusUnfixedStart marks the first live record after a stream (re)start.
	LogStatusUnfixedStart LogStatus = "Us"

	LogStatusFixBlockStart LogStatus = "S"
	LogStatusFixArchive    LogStatus = "A"
	LogStatusFixBlockEnd   LogStatus = "E"

	LogStatusFixRestStart LogStatus = "s"
	LogStatusFixRestBlock LogStatus = "a"
	LogStatusFixRestEnd   LogStatus = "e"

	// LogStatusExpire / LogStatusExpireForce are not trades. A two-record
	// pair with one of these statuses instructs the durable store to delete
	// rows in [first.Time, second.Time). Force also deletes fixed rows.
	LogStatusExpire      LogStatus = "x"
	LogStatusExpireForce LogStatus = "X"

	LogStatusUnknown LogStatus = "?"
)

// ParseLogStatus maps a persisted code back to its status.
func ParseLogStatus(s string) LogStatus {
	switch LogStatus(s) {
	case LogStatusUnfixed, LogStatusUnfixedStart,
		LogStatusFixBlockStart, LogStatusFixArchive, LogStatusFixBlockEnd,
		LogStatusFixRestStart, LogStatusFixRestBlock, LogStatusFixRestEnd,
		LogStatusExpire, LogStatusExpireForce:
		return LogStatus(s)
	default:
		logs.Errorf("unknown log status: %q", s)
		return LogStatusUnknown
	}
}

func (s LogStatus) String() string {
	return string(s)
}

// IsFixed reports whether the record came from an authoritative source
// (archive block or completed REST backfill).
func (s LogStatus) IsFixed() bool {
	switch s {
	case LogStatusFixBlockStart, LogStatusFixArchive, LogStatusFixBlockEnd,
		LogStatusFixRestStart, LogStatusFixRestBlock, LogStatusFixRestEnd:
		return true
	default:
		return false
	}
}

// IsUnfixed reports whether the record was observed live and may still be
// revised or deleted.
func (s LogStatus) IsUnfixed() bool {
	return s == LogStatusUnfixed || s == LogStatusUnfixedStart
}

// IsExpire reports whether the record is a delete directive, not data.
func (s LogStatus) IsExpire() bool {
	return s == LogStatusExpire || s == LogStatusExpireForce
}

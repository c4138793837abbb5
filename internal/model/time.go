package model

import "time"

// MicroSec is a timestamp or duration in microseconds since the unix epoch.
type MicroSec = int64

const (
	MicroSecond MicroSec = 1
	MilliSecond MicroSec = 1_000 * MicroSecond
	Second      MicroSec = 1_000 * MilliSecond
	Minute      MicroSec = 60 * Second
	Hour        MicroSec = 60 * Minute
	Day         MicroSec = 24 * Hour
)

func Now() MicroSec {
	return time.Now().UnixMicro()
}

func Days(n int64) MicroSec {
	return n * Day
}

func Seconds(n int64) MicroSec {
	return n * Second
}

// FloorWindow truncates t down to a multiple of windowSec seconds.
func FloorWindow(t MicroSec, windowSec int64) MicroSec {
	w := windowSec * Second
	if w <= 0 {
		return t
	}
	return t - t%w
}

func FloorDay(t MicroSec) MicroSec {
	return FloorWindow(t, 24*60*60)
}

func ToTime(t MicroSec) time.Time {
	return time.UnixMicro(t).UTC()
}

func FromTime(t time.Time) MicroSec {
	return t.UnixMicro()
}

func DateString(t MicroSec) string {
	return ToTime(t).Format(time.DateOnly)
}

func TimeString(t MicroSec) string {
	return ToTime(t).Format("2006-01-02T15:04:05.000000")
}

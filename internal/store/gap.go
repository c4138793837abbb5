package store

import (
	"github.com/yanun0323/errors"

	"tickdb/internal/model"
	"tickdb/pkg/exception"
)

// gapRow is one adjacent-timestamp gap found by the window query.
type gapRow struct {
	StartTime int64 `gorm:"column:start_time"`
	EndTime   int64 `gorm:"column:end_time"`
}

// SelectGapChunks finds time ranges with missing data inside [start, end).
// end=0 means "now". Adjacent rows further apart than allowSlack become a
// chunk; chunks are also synthesized before the store's earliest row (back
// to start) and after its latest row (forward to end).
func (s *Store) SelectGapChunks(start, end, allowSlack model.MicroSec) ([]model.TimeChunk, error) {
	if end == 0 {
		end = model.Now()
	}

	var chunks []model.TimeChunk

	chunks = append(chunks, s.chunkBeforeData(start, allowSlack)...)

	inDB, err := s.chunksInData(start, end, allowSlack)
	if err != nil {
		return nil, err
	}
	chunks = append(chunks, inDB...)

	chunks = append(chunks, s.chunkAfterData(end, allowSlack)...)

	return chunks, nil
}

// chunkBeforeData synthesizes the head chunk [start, earliest) when the
// store begins later than start by more than the slack. Empty store yields
// nothing: there is no boundary to anchor on.
func (s *Store) chunkBeforeData(start, allowSlack model.MicroSec) []model.TimeChunk {
	dbStart := s.StartTime(0)
	if dbStart == 0 {
		return nil
	}
	if start+allowSlack < dbStart {
		return []model.TimeChunk{{Start: start, End: dbStart}}
	}
	return nil
}

// chunksInData runs the lag() window comparison over consecutive
// timestamps. The first row has no predecessor and is skipped (NULL diff).
func (s *Store) chunksInData(start, end, allowSlack model.MicroSec) ([]model.TimeChunk, error) {
	const sql = `
SELECT end_time - diff AS start_time, end_time
FROM (
	SELECT time_stamp AS end_time,
	       time_stamp - lag(time_stamp) OVER (ORDER BY time_stamp) AS diff
	FROM trades
	WHERE ? <= time_stamp AND time_stamp < ?
) gaps
WHERE diff > ?
ORDER BY start_time`

	var rows []gapRow
	if err := s.db.Raw(sql, start, end, allowSlack).Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(exception.ErrStoreQuery, err.Error()).With("query", "select gap chunks")
	}

	chunks := make([]model.TimeChunk, len(rows))
	for i, r := range rows {
		chunks[i] = model.TimeChunk{Start: r.StartTime, End: r.EndTime}
	}
	return chunks, nil
}

// chunkAfterData synthesizes the tail chunk [latest, end) when the store
// ends earlier than end by more than the slack.
func (s *Store) chunkAfterData(end, allowSlack model.MicroSec) []model.TimeChunk {
	dbEnd := s.EndTime(0)
	if dbEnd == 0 {
		return nil
	}
	if dbEnd+allowSlack < end {
		return []model.TimeChunk{{Start: dbEnd, End: end}}
	}
	return nil
}

// ChunksToDays collapses chunks into the distinct calendar days they touch,
// for archive-backed backfill.
func ChunksToDays(chunks []model.TimeChunk) []model.MicroSec {
	seen := make(map[model.MicroSec]struct{})
	var days []model.MicroSec
	for _, c := range chunks {
		for _, d := range c.Days() {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			days = append(days, d)
		}
	}
	return days
}

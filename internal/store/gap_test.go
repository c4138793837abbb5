package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickdb/internal/model"
	"tickdb/internal/model/enum"
)

func TestSelectGapChunksInData(t *testing.T) {
	s := newTestStore(t)

	// contiguous run, an 8s hole, a short run, a 9s hole, one tail row
	for _, ts := range []model.MicroSec{10, 12, 20, 21, 30} {
		_, err := s.InsertRecords([]model.Trade{mkTrade(testBase+ts*model.Second, enum.LogStatusUnfixed, model.TimeString(testBase+ts*model.Second))})
		require.NoError(t, err)
	}

	chunks, err := s.SelectGapChunks(testBase+10*model.Second, testBase+31*model.Second, 3*model.Second)
	require.NoError(t, err)
	assert.Equal(t, []model.TimeChunk{
		{Start: testBase + 12*model.Second, End: testBase + 20*model.Second},
		{Start: testBase + 21*model.Second, End: testBase + 30*model.Second},
	}, chunks)
}

func TestSelectGapChunksSynthesizesHeadAndTail(t *testing.T) {
	s := newTestStore(t)

	for _, ts := range []model.MicroSec{10, 12} {
		_, err := s.InsertRecords([]model.Trade{mkTrade(testBase+ts*model.Second, enum.LogStatusUnfixed, model.TimeString(testBase+ts*model.Second))})
		require.NoError(t, err)
	}

	chunks, err := s.SelectGapChunks(testBase+1*model.Second, testBase+40*model.Second, 3*model.Second)
	require.NoError(t, err)
	assert.Equal(t, []model.TimeChunk{
		{Start: testBase + 1*model.Second, End: testBase + 10*model.Second},
		{Start: testBase + 12*model.Second, End: testBase + 40*model.Second},
	}, chunks)
}

func TestSelectGapChunksWithinSlack(t *testing.T) {
	s := newTestStore(t)

	for _, ts := range []model.MicroSec{10, 12, 14} {
		_, err := s.InsertRecords([]model.Trade{mkTrade(testBase+ts*model.Second, enum.LogStatusUnfixed, model.TimeString(testBase+ts*model.Second))})
		require.NoError(t, err)
	}

	chunks, err := s.SelectGapChunks(testBase+9*model.Second, testBase+15*model.Second, 3*model.Second)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSelectGapChunksEmptyStore(t *testing.T) {
	s := newTestStore(t)

	chunks, err := s.SelectGapChunks(testBase, testBase+model.Hour, model.Second)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunksToDays(t *testing.T) {
	day := model.FloorDay(testBase)
	chunks := []model.TimeChunk{
		{Start: day + model.Hour, End: day + 2*model.Hour},
		{Start: day + 23*model.Hour, End: day + model.Day + model.Hour},
	}

	days := ChunksToDays(chunks)
	assert.Equal(t, []model.MicroSec{day, day + model.Day}, days)
}

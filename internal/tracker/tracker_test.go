package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/models"
)

func makeRecord(symbol string, at time.Time, score float64, filtered bool, reason string) models.QualityRecord {
	return models.QualityRecord{
		TimestampISO:  at.UTC().Format(time.RFC3339Nano),
		Timestamp:     at.UnixMilli(),
		Symbol:        symbol,
		ScoreAdjusted: score,
		ScoreBase:     score + 5,
		QualityImpact: -5,
		Consensus:     0.8,
		Confidence:    0.5,
		Disagreement:  0.1,
		SignalType:    models.SignalBuy,
		Filtered:      filtered,
		FilterReason:  reason,
	}
}

func TestTrackerWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, 10, zerolog.Nop())
	defer tr.Close()

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", at, 72, false, "")))
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", at.Add(time.Minute), 40, true, "low_confidence")))

	path := filepath.Join(dir, "quality_metrics_20260824.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var rec models.QualityRecord
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, 72.0, rec.ScoreAdjusted)
}

func TestTrackerRotatesAcrossDays(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, 10, zerolog.Nop())
	defer tr.Close()

	day1 := time.Date(2026, 8, 23, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 24, 0, 1, 0, 0, time.UTC)
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", day1, 70, false, "")))
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", day2, 71, false, "")))

	_, err := os.Stat(filepath.Join(dir, "quality_metrics_20260823.jsonl"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "quality_metrics_20260824.jsonl"))
	assert.NoError(t, err)
}

func TestRecentFiltersCutoffAndSymbol(t *testing.T) {
	tr := New(t.TempDir(), 10, zerolog.Nop())
	defer tr.Close()

	now := time.Now().UTC()
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", now.Add(-2*time.Hour), 70, false, "")))
	require.NoError(t, tr.Record(makeRecord("ETHUSDT", now.Add(-30*time.Minute), 60, false, "")))
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", now.Add(-10*time.Minute), 80, true, "cooldown")))

	all := tr.Recent(now.Add(-time.Hour), "")
	assert.Len(t, all, 2)

	btc := tr.Recent(now.Add(-time.Hour), "BTCUSDT")
	require.Len(t, btc, 1)
	assert.Equal(t, 80.0, btc[0].ScoreAdjusted)
}

func TestRingWrapsAtCapacity(t *testing.T) {
	tr := New(t.TempDir(), 3, zerolog.Nop())
	defer tr.Close()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Record(makeRecord("BTCUSDT", now, float64(i), false, "")))
	}
	recent := tr.Recent(now.Add(-time.Minute), "")
	assert.Len(t, recent, 3)
}

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	records := []models.QualityRecord{
		makeRecord("BTCUSDT", now, 60, false, ""),
		makeRecord("BTCUSDT", now, 70, false, ""),
		makeRecord("BTCUSDT", now, 80, true, "low_confidence"),
		makeRecord("BTCUSDT", now, 90, true, "high_disagreement"),
	}

	stats := Summarize(records, 24, "BTCUSDT")
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Filtered)
	assert.InDelta(t, 0.5, stats.FilterRate, 1e-9)

	score := stats.Metrics["score_adjusted"]
	assert.Equal(t, 60.0, score.Min)
	assert.Equal(t, 90.0, score.Max)
	assert.InDelta(t, 75.0, score.Mean, 1e-9)

	empty := Summarize(nil, 24, "")
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 0.0, empty.FilterRate)
	assert.Equal(t, MetricSummary{}, empty.Metrics["confidence"])
}

func TestEffectivenessOf(t *testing.T) {
	now := time.Now().UTC()
	passed := makeRecord("BTCUSDT", now, 70, false, "")
	passed.Confidence = 0.8
	filtered := makeRecord("BTCUSDT", now, 55, true, "low_confidence")
	filtered.Confidence = 0.1
	filtered2 := makeRecord("BTCUSDT", now, 50, true, "low_confidence")
	filtered2.Confidence = 0.2

	eff := EffectivenessOf([]models.QualityRecord{passed, filtered, filtered2}, 24)
	assert.Equal(t, 2, eff.FilteredCount)
	assert.Equal(t, 1, eff.PassedCount)
	assert.Equal(t, 2, eff.Reasons["low_confidence"])
	assert.InDelta(t, 0.15, eff.FilteredMeans["confidence"], 1e-9)
	assert.InDelta(t, 0.8, eff.PassedMeans["confidence"], 1e-9)
	assert.Greater(t, eff.PassedMeans["confidence"], eff.FilteredMeans["confidence"])
}

func TestReadWindowRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr := New(dir, 10, zerolog.Nop())

	now := time.Now().UTC()
	require.NoError(t, tr.Record(makeRecord("BTCUSDT", now.Add(-10*time.Minute), 72, false, "")))
	require.NoError(t, tr.Record(makeRecord("ETHUSDT", now.Add(-5*time.Minute), 30, true, "cooldown")))
	require.NoError(t, tr.Close())

	all, err := ReadWindow(dir, 1, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	eth, err := ReadWindow(dir, 1, "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, eth, 1)
	assert.Equal(t, 30.0, eth[0].ScoreAdjusted)
}

func TestReadWindowSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	day := time.Now().UTC().Format("20060102")
	path := filepath.Join(dir, fmt.Sprintf("quality_metrics_%s.jsonl", day))

	good := makeRecord("BTCUSDT", time.Now().UTC(), 72, false, "")
	line, err := json.Marshal(good)
	require.NoError(t, err)
	content := append([]byte("not json\n"), line...)
	content = append(content, '\n')
	require.NoError(t, os.WriteFile(path, content, 0o644))

	records, err := ReadWindow(dir, 1, "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReadWindowMissingDirIsEmpty(t *testing.T) {
	records, err := ReadWindow(filepath.Join(t.TempDir(), "nope"), 24, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

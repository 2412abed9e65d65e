package tracker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantflux/confluence/internal/models"
)

// maxRecordLine bounds one JSONL line; records are small, so anything
// beyond this is corruption.
const maxRecordLine = 1 << 20

// ReadWindow loads the quality records of the trailing window from the
// daily files under dir. Days with no file are skipped; malformed lines
// are counted and dropped.
func ReadWindow(dir string, hours int, symbol string) ([]models.QualityRecord, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-time.Duration(hours) * time.Hour)

	var out []models.QualityRecord
	for day := cutoff.Truncate(24 * time.Hour); !day.After(now); day = day.Add(24 * time.Hour) {
		path := filepath.Join(dir, fmt.Sprintf(filePattern, day.Format("20060102")))
		records, err := readFile(path, cutoff, symbol)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func readFile(path string, cutoff time.Time, symbol string) ([]models.QualityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.QualityRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	for scanner.Scan() {
		var rec models.QualityRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Time().Before(cutoff) {
			continue
		}
		if symbol != "" && rec.Symbol != symbol {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return out, nil
}

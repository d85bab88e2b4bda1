package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/okian/lighthouse/internal/domain/model"
)

// HistoryHeader is the column layout of exported and file-backed history.
var HistoryHeader = []string{"time", "round", "player_id", "rating"}

// ExportHistoryCSV writes the complete rating history of s as CSV with a header.
func ExportHistoryCSV(ctx context.Context, s Store, playerID string, w io.Writer) error {
	points, err := s.History(ctx, playerID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(HistoryHeader); err != nil {
		return err
	}
	return WriteHistoryRows(cw, points)
}

// WriteHistoryRows appends points to cw and flushes it.
func WriteHistoryRows(cw *csv.Writer, points []model.HistoryPoint) error {
	for _, p := range points {
		if err := cw.Write(historyRecord(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func historyRecord(p model.HistoryPoint) []string {
	return []string{
		p.Stamp.Time.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(p.Stamp.Round),
		p.PlayerID,
		strconv.FormatFloat(p.Rating, 'g', -1, 64),
	}
}

// ReadHistoryCSV parses rows written by ExportHistoryCSV. A header row is skipped.
func ReadHistoryCSV(r io.Reader) ([]model.HistoryPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(HistoryHeader)
	cr.ReuseRecord = true

	var points []model.HistoryPoint
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		if line == 1 && rec[0] == HistoryHeader[0] {
			continue
		}
		p, err := parseHistoryRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		points = append(points, p)
	}
}

func parseHistoryRecord(rec []string) (model.HistoryPoint, error) {
	t, err := time.Parse(time.RFC3339Nano, rec[0])
	if err != nil {
		return model.HistoryPoint{}, err
	}
	round, err := strconv.Atoi(rec[1])
	if err != nil {
		return model.HistoryPoint{}, err
	}
	r, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return model.HistoryPoint{}, err
	}
	return model.HistoryPoint{Stamp: model.Stamp{Time: t.UTC(), Round: round}, PlayerID: rec[2], Rating: r}, nil
}

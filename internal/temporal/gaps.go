package temporal

import (
	"fmt"
	"sort"

	"github.com/khaaliswooden-max/qal/internal/model"
)

type placed struct {
	event model.Event
	bp    float64
}

// SortByAge orders events oldest first on the canonical scale, breaking ties
// by id so the result is deterministic.
func SortByAge(events []model.Event) ([]model.Event, error) {
	items, err := place(events)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, len(items))
	for i, it := range items {
		out[i] = it.event
	}
	return out, nil
}

func place(events []model.Event) ([]placed, error) {
	items := make([]placed, 0, len(events))
	for _, e := range events {
		bp, err := Normalize(e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		items = append(items, placed{event: e, bp: bp})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].bp != items[j].bp {
			return items[i].bp > items[j].bp
		}
		return items[i].event.ID < items[j].event.ID
	})
	return items, nil
}

// ScanGaps emits a TEMPORAL gap for every pair of chronologically adjacent
// events separated by more than maxGapYears. A non-positive threshold
// disables the scan.
func ScanGaps(events []model.Event, maxGapYears float64) ([]model.Gap, error) {
	if maxGapYears <= 0 || len(events) < 2 {
		return nil, nil
	}
	items, err := place(events)
	if err != nil {
		return nil, err
	}

	var gaps []model.Gap
	for i := 1; i < len(items); i++ {
		older, younger := items[i-1], items[i]
		span := older.bp - younger.bp
		if span <= maxGapYears {
			continue
		}
		gaps = append(gaps, model.Gap{
			ID:   fmt.Sprintf("gap-temporal-%s-%s", older.event.ID, younger.event.ID),
			Kind: model.GapTemporal,
			Description: fmt.Sprintf("No recorded events for %.0f years between %s (%s) and %s (%s)",
				span, older.event.ID, older.event.Timestamp, younger.event.ID, younger.event.Timestamp),
			Affected: []string{older.event.ID, younger.event.ID},
			TimeRange: &model.TimeRange{
				From: older.event.Timestamp,
				To:   younger.event.Timestamp,
			},
		})
	}
	return gaps, nil
}

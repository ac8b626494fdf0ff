package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"
)

// WriteCSV serialises audit entries to CSV, one row per entry. Meta is
// emitted as compact JSON.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"At", "Actor", "Action", "Entity", "EntityID", "Meta"}); err != nil {
		return err
	}
	for _, e := range entries {
		meta := ""
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		if err := writer.Write([]string{
			e.At.UTC().Format(time.RFC3339),
			e.Actor,
			e.Action,
			e.Entity,
			e.EntityID,
			meta,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

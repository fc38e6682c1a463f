package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/coffersTech/eventscope/internal/model"
	"github.com/coffersTech/eventscope/internal/timeutil"
)

var csvHeader = []string{
	"Timestamp", "Level", "EventID", "Provider", "Computer", "Channel", "Message",
}

// CSV writes records as CSV with a header row.
func CSV(w io.Writer, records []*model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			timeutil.FormatTimestamp(r.Timestamp),
			r.LevelName(),
			strconv.FormatUint(uint64(r.EventID), 10),
			r.Provider,
			r.Computer,
			r.Channel,
			r.DisplayMessage(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFile writes records to a CSV file at path.
func CSVFile(path string, records []*model.Record) error {
	return toFile(path, func(f *os.File) error {
		return CSV(f, records)
	})
}

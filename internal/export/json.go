package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/coffersTech/eventscope/internal/model"
)

// JSON writes records as an indented JSON array.
func JSON(w io.Writer, records []*model.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// JSONFile writes records to a JSON file at path.
func JSONFile(path string, records []*model.Record) error {
	return toFile(path, func(f *os.File) error {
		return JSON(f, records)
	})
}

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/eventscope/internal/model"
)

// Archive writes records as a zstd-compressed JSON-lines stream, one
// compact payload per line in the schema the archive source reads back.
func Archive(w io.Writer, records []*model.Record) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open archive stream: %w", err)
	}
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			enc.Close()
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := enc.Write(append(line, '\n')); err != nil {
			enc.Close()
			return fmt.Errorf("write archive: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// ArchiveFile writes records to an archive file at path.
func ArchiveFile(path string, records []*model.Record) error {
	return toFile(path, func(f *os.File) error {
		return Archive(f, records)
	})
}

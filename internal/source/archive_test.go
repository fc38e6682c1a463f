package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func writeTestArchive(t *testing.T, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range lines {
		if _, err := enc.Write([]byte(line + "\n")); err != nil {
			t.Fatal(err)
		}
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func payloadLine(id int, ts string) string {
	return fmt.Sprintf(`{"provider":"TestProv","event_id":%d,"level":4,"timestamp":"%s"}`, id, ts)
}

func TestOpenArchiveRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notanarchive.evtz")
	if err := os.WriteFile(path, []byte("just text\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenArchive(path); err == nil {
		t.Fatal("plain file must be rejected")
	}
}

func TestArchiveName(t *testing.T) {
	path := writeTestArchive(t, "export-2024.evtz", []string{payloadLine(1, "2024-06-15T10:00:00Z")})
	a, err := OpenArchive(path)
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "export-2024" {
		t.Errorf("Name = %q, want export-2024", a.Name())
	}
	chans, err := a.Channels()
	if err != nil || len(chans) != 1 || chans[0] != "export-2024" {
		t.Errorf("Channels = %v, %v", chans, err)
	}
}

func TestArchiveQueryPagination(t *testing.T) {
	var lines []string
	for i := 1; i <= 5; i++ {
		lines = append(lines, payloadLine(i, fmt.Sprintf("2024-06-15T10:0%d:00Z", i)))
	}
	path := writeTestArchive(t, "events.evtz", lines)
	a, err := OpenArchive(path)
	if err != nil {
		t.Fatal(err)
	}

	cur, err := a.Query("events", Predicate{})
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	var sizes []int
	for {
		handles, err := cur.Next(2, time.Second)
		if err == ErrNoMoreItems {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, len(handles))
	}
	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("batch sizes = %v, want %v", sizes, want)
		}
	}
}

func TestArchiveQueryTimePredicate(t *testing.T) {
	path := writeTestArchive(t, "events.evtz", []string{
		payloadLine(1, "2024-06-15T09:00:00Z"),
		payloadLine(2, "2024-06-15T10:00:00Z"),
		payloadLine(3, "2024-06-15T11:00:00Z"),
	})
	a, err := OpenArchive(path)
	if err != nil {
		t.Fatal(err)
	}

	pred := Predicate{
		From: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC),
	}
	cur, err := a.Query("events", pred)
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	handles, err := cur.Next(10, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 1 {
		t.Fatalf("got %d handles, want 1 inside the window", len(handles))
	}
}

func TestArchiveQueryUnknownChannel(t *testing.T) {
	path := writeTestArchive(t, "events.evtz", []string{payloadLine(1, "2024-06-15T10:00:00Z")})
	a, err := OpenArchive(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Query("System", Predicate{}); err == nil {
		t.Fatal("unknown channel must fail")
	}
}

func TestArchiveRendererGrowAndRetry(t *testing.T) {
	line := payloadLine(1, "2024-06-15T10:00:00Z")
	path := writeTestArchive(t, "events.evtz", []string{line})
	a, err := OpenArchive(path)
	if err != nil {
		t.Fatal(err)
	}
	cur, err := a.Query("events", Predicate{})
	if err != nil {
		t.Fatal(err)
	}
	defer cur.Close()

	handles, err := cur.Next(1, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	var r ArchiveRenderer
	small := make([]byte, 4)
	_, err = r.Render(handles[0], small)
	var bse *BufferSizeError
	if !errors.As(err, &bse) {
		t.Fatalf("want BufferSizeError, got %v", err)
	}

	buf := make([]byte, bse.Needed)
	n, err := r.Render(handles[0], buf)
	if err != nil {
		t.Fatalf("retry after grow: %v", err)
	}
	if string(buf[:n]) != line {
		t.Errorf("rendered %q, want %q", buf[:n], line)
	}
}

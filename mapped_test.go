package textcore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeNumberedLines writes "Line 1\n" through "Line n\n" to a temp file.
func writeNumberedLines(t *testing.T, n int) string {
	t.Helper()
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "Line %d\n", i)
	}
	return writeTempFile(t, "lines.txt", sb.String())
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func openMappedForTest(t *testing.T, path string, opts MappedOptions) *MappedReader {
	t.Helper()
	r, err := OpenMapped(path, opts)
	if err != nil {
		t.Fatalf("OpenMapped failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func waitIndexed(t *testing.T, r *MappedReader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.WaitIndexed(ctx); err != nil {
		t.Fatalf("WaitIndexed failed: %v", err)
	}
}

func TestMappedViewportOfLargeFile(t *testing.T) {
	path := writeNumberedLines(t, 100000)
	r := openMappedForTest(t, path, MappedOptions{})

	r.SetViewport(50000, 10)
	lines := r.GetLines(50000, 10)
	if len(lines) != 10 {
		t.Fatalf("Expected 10 lines, got %d", len(lines))
	}
	for i, got := range lines {
		want := fmt.Sprintf("Line %d", 50001+i)
		if got != want {
			t.Errorf("line %d = %q, want %q", 50000+i, got, want)
		}
	}

	waitIndexed(t, r)
	count := r.LineCount()
	if count.Value != 100000 || !count.Complete {
		t.Fatalf("LineCount() = %+v, want 100000 complete", count)
	}

	for _, n := range []int64{0, 1, 777, 49999, 99998, 99999} {
		got, ok := r.GetLine(n)
		if !ok || got != fmt.Sprintf("Line %d", n+1) {
			t.Errorf("GetLine(%d) = %q, %v", n, got, ok)
		}
	}
	if _, ok := r.GetLine(100000); ok {
		t.Error("GetLine(100000) should not exist")
	}
}

func TestMappedReadsDuringIndexing(t *testing.T) {
	path := writeNumberedLines(t, 20000)

	// Tiny chunks make the indexer publish many partial states.
	r := openMappedForTest(t, path, MappedOptions{IndexChunkSize: 64})

	var last int64
	for !r.IndexingComplete() {
		c := r.LineCount()
		if c.Value < last {
			t.Fatalf("line count went backwards: %d -> %d", last, c.Value)
		}
		last = c.Value

		got, ok := r.GetLine(19999)
		if !ok || got != "Line 20000" {
			t.Fatalf("GetLine(19999) during indexing = %q, %v", got, ok)
		}
	}
	if c := r.LineCount(); c.Value != 20000 {
		t.Errorf("final LineCount() = %d, want 20000", c.Value)
	}
}

func TestMappedInitialViewportPrimed(t *testing.T) {
	path := writeNumberedLines(t, 5000)
	r := openMappedForTest(t, path, MappedOptions{ViewportLines: 100, BufferCapacity: 40})

	start, visible := r.Viewport()
	if start != 0 || visible != 100 {
		t.Errorf("Viewport() = %d, %d; want 0, 100", start, visible)
	}
	// The viewport plus a quarter buffer of prefetch below it.
	if n := r.CacheLen(); n != 110 {
		t.Errorf("CacheLen() = %d, want 110", n)
	}
	for n := int64(0); n < 110; n++ {
		if !r.isCached(n) {
			t.Fatalf("line %d not cached after open", n)
		}
	}
}

func TestMappedEviction(t *testing.T) {
	path := writeNumberedLines(t, 1000)
	r := openMappedForTest(t, path, MappedOptions{
		ViewportLines:  10,
		BufferCapacity: 8,
		CacheCapacity:  20,
	})

	if n := r.CacheLen(); n != 12 {
		t.Fatalf("CacheLen() after open = %d, want 12", n)
	}

	r.SetViewport(500, 10)

	// Lines far from the new viewport are gone; the prefetch window remains.
	if r.isCached(0) {
		t.Error("line 0 should have been evicted")
	}
	for n := int64(498); n < 512; n++ {
		if !r.isCached(n) {
			t.Errorf("line %d should be cached", n)
		}
	}
	if n := r.CacheLen(); n > 20+10 {
		t.Errorf("CacheLen() = %d exceeds capacity plus viewport", n)
	}

	// Steady scrolling keeps the cache bounded.
	for start := int64(500); start < 900; start += 7 {
		r.SetViewport(start, 10)
		if n := r.CacheLen(); n > 20+10 {
			t.Fatalf("CacheLen() = %d at viewport %d", n, start)
		}
	}
}

func TestMappedEvictionSmallCapacity(t *testing.T) {
	path := writeNumberedLines(t, 1000)
	// The viewport keeps far more lines than the cache capacity allows.
	r := openMappedForTest(t, path, MappedOptions{
		ViewportLines:  1,
		BufferCapacity: 100,
		CacheCapacity:  10,
	})
	r.SetViewport(0, 100)

	r.cacheMu.RLock()
	passes := r.evictPasses
	r.cacheMu.RUnlock()

	for n := int64(125); n < 200; n++ {
		if got, ok := r.GetLine(n); !ok || got != fmt.Sprintf("Line %d", n+1) {
			t.Fatalf("GetLine(%d) = %q, %v", n, got, ok)
		}
	}

	r.cacheMu.RLock()
	passes = r.evictPasses - passes
	r.cacheMu.RUnlock()
	if passes > 2 {
		t.Errorf("%d eviction passes for 75 reads, want at most 2", passes)
	}
	for n := int64(0); n < 200; n++ {
		if !r.isCached(n) {
			t.Errorf("line %d near the viewport should stay cached", n)
		}
	}

	// Moving away still trims the cache.
	r.SetViewport(800, 10)
	if r.isCached(0) || r.isCached(199) {
		t.Error("lines far from the new viewport should have been evicted")
	}
}

func TestMappedLineEndingsAndDecoding(t *testing.T) {
	path := writeTempFile(t, "mixed.txt", "crlf\r\nbad \xff byte\nlast")
	r := openMappedForTest(t, path, MappedOptions{})
	waitIndexed(t, r)

	want := []string{"crlf", "bad � byte", "last"}
	got := r.GetLines(0, 10)
	if len(got) != len(want) {
		t.Fatalf("GetLines() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
	if c := r.LineCount(); c.Value != 3 || !c.Complete {
		t.Errorf("LineCount() = %+v, want 3 complete", c)
	}
}

func TestMappedEmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.txt", "")
	r := openMappedForTest(t, path, MappedOptions{})
	waitIndexed(t, r)

	if c := r.LineCount(); c.Value != 0 || !c.Complete {
		t.Errorf("LineCount() = %+v, want 0 complete", c)
	}
	if _, ok := r.GetLine(0); ok {
		t.Error("GetLine(0) should not exist in an empty file")
	}
}

func TestMappedLineRangeAndReadRange(t *testing.T) {
	path := writeTempFile(t, "abc.txt", "aa\nbbb\ncccc\n")
	r := openMappedForTest(t, path, MappedOptions{})

	from, to := r.LineRange(1, 2)
	if from != 3 || to != 12 {
		t.Fatalf("LineRange(1, 2) = %d, %d; want 3, 12", from, to)
	}
	s, err := r.ReadRange(from, to)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if s != "bbb\ncccc\n" {
		t.Errorf("ReadRange = %q", s)
	}

	// Past the end yields an empty range at the file size.
	from, to = r.LineRange(10, 5)
	if from != 12 || to != 12 {
		t.Errorf("LineRange(10, 5) = %d, %d; want 12, 12", from, to)
	}
	if off, ok := r.LineOffset(2); !ok || off != 7 {
		t.Errorf("LineOffset(2) = %d, %v; want 7", off, ok)
	}
}

func TestMappedOpenMissingFile(t *testing.T) {
	_, err := OpenMapped(filepath.Join(t.TempDir(), "nope.txt"), MappedOptions{})
	if err == nil {
		t.Fatal("Expected an error for a missing file")
	}
	var openErr *FileOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Expected *FileOpenError, got %T: %v", err, err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected the cause to be fs.ErrNotExist, got %v", openErr.Err)
	}
}

func TestMappedOpenDirectory(t *testing.T) {
	_, err := OpenMapped(t.TempDir(), MappedOptions{})
	var openErr *FileOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Expected *FileOpenError, got %v", err)
	}
}

func TestMappedClose(t *testing.T) {
	path := writeNumberedLines(t, 100000)
	r, err := OpenMapped(path, MappedOptions{IndexChunkSize: 128})
	if err != nil {
		t.Fatalf("OpenMapped failed: %v", err)
	}

	// Closing cancels indexing and invalidates reads.
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := r.GetLine(99999); ok {
		t.Error("GetLine after Close should fail")
	}
	if _, err := r.ReadRange(0, 10); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("ReadRange after Close = %v, want ErrReaderClosed", err)
	}
	if r.CacheLen() != 0 {
		t.Errorf("CacheLen() after Close = %d", r.CacheLen())
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

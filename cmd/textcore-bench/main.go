// textcore-bench generates a multi-million-line file and measures how the
// document core handles it: time to first viewport, background indexing,
// scrolling, line reads, piece-table edits and note rebasing.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/phroun/textcore"
)

type BenchResult struct {
	Name     string
	Duration time.Duration
	Ops      int
	Extra    string
}

func (r BenchResult) String() string {
	if r.Ops > 0 {
		opsPerSec := float64(r.Ops) / r.Duration.Seconds()
		if r.Extra != "" {
			return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec) %s", r.Name, r.Duration.Round(time.Microsecond), r.Ops, opsPerSec, r.Extra)
		}
		return fmt.Sprintf("%-40s %12v  (%d ops, %.2f ops/sec)", r.Name, r.Duration.Round(time.Microsecond), r.Ops, opsPerSec)
	}
	if r.Extra != "" {
		return fmt.Sprintf("%-40s %12v  %s", r.Name, r.Duration.Round(time.Microsecond), r.Extra)
	}
	return fmt.Sprintf("%-40s %12v", r.Name, r.Duration.Round(time.Microsecond))
}

func main() {
	lines := flag.Int("lines", 2_000_000, "number of lines in the generated file")
	seed := flag.Uint64("seed", 1, "random seed for scroll and edit positions")
	flag.Parse()

	fmt.Println("Textcore Benchmark")
	fmt.Println("==================")
	fmt.Printf("Lines: %d\n", *lines)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "textcore-bench-*")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	testFile := filepath.Join(tmpDir, "lines.txt")
	rng := rand.New(rand.NewPCG(*seed, *seed))

	var results []BenchResult

	fmt.Println("Generating test file...")
	result := generateTestFile(testFile, *lines)
	results = append(results, result)
	fmt.Println(result)
	fmt.Println()

	// Every generated file counts as large.
	lib, err := textcore.Init(textcore.LibraryOptions{LargeFileBytes: 1})
	if err != nil {
		fmt.Printf("Failed to init library: %v\n", err)
		os.Exit(1)
	}
	defer lib.Close()

	runBench := func(name string, fn func() BenchResult) {
		fmt.Printf("  %-40s ", name+"...")
		result := fn()
		fmt.Printf("%v\n", result.Duration.Round(time.Microsecond))
		results = append(results, result)
	}

	fmt.Println("Running benchmarks...")
	fmt.Println()

	fmt.Println("Opening:")
	var doc *textcore.Document
	runBench("Open to first viewport", func() BenchResult {
		var r BenchResult
		doc, r = benchOpen(lib, testFile)
		return r
	})
	if doc == nil {
		os.Exit(1)
	}
	runBench("Background indexing", func() BenchResult { return benchIndexing(doc) })

	total := doc.LineCount().Value
	fmt.Println("\nReading:")
	runBench("Random viewport jumps (x1000)", func() BenchResult { return benchScroll(doc, total, rng) })
	runBench("Random line reads (x100000)", func() BenchResult { return benchLineReads(doc, total, rng) })
	runBench("Sequential scroll (page x2000)", func() BenchResult { return benchSequential(doc, total) })

	fmt.Println("\nEditing:")
	runBench("Piece-table inserts (x10000)", func() BenchResult { return benchInserts(rng) })
	runBench("Piece-table deletes (x10000)", func() BenchResult { return benchDeletes(rng) })
	runBench("Rebase 10000 notes (x100 edits)", func() BenchResult { return benchRebase(rng) })
	runBench("Search all in window", func() BenchResult { return benchSearch(doc) })

	doc.Close()

	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 40))
	for _, r := range results {
		fmt.Println(r)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Println()
	fmt.Printf("Peak heap allocation: %d MB\n", m.HeapSys/(1024*1024))
	fmt.Printf("Total allocations: %d MB\n", m.TotalAlloc/(1024*1024))
}

func generateTestFile(path string, lines int) BenchResult {
	start := time.Now()

	f, err := os.Create(path)
	if err != nil {
		return BenchResult{Name: "Generate test file", Extra: fmt.Sprintf("ERROR: %v", err)}
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 1<<20)
	var written int64
	for n := 1; n <= lines; n++ {
		// Vary the line length so line starts are irregular.
		k, _ := fmt.Fprintf(w, "%08d: %s\n", n, strings.Repeat(string(rune('a'+n%26)), 20+n%60))
		written += int64(k)
	}
	if err := w.Flush(); err != nil {
		return BenchResult{Name: "Generate test file", Duration: time.Since(start), Extra: fmt.Sprintf("ERROR: %v", err)}
	}

	return BenchResult{
		Name:     "Generate test file",
		Duration: time.Since(start),
		Extra:    fmt.Sprintf("%d lines, %d MB", lines, written/(1024*1024)),
	}
}

func benchOpen(lib *textcore.Library, path string) (*textcore.Document, BenchResult) {
	start := time.Now()
	doc, err := lib.Open(textcore.FileOptions{FilePath: path})
	if err != nil {
		return nil, BenchResult{Name: "Open to first viewport", Extra: fmt.Sprintf("ERROR: %v", err)}
	}
	first, _ := doc.Line(0)
	return doc, BenchResult{
		Name:     "Open to first viewport",
		Duration: time.Since(start),
		Extra:    fmt.Sprintf("%d bytes in window, first line %q", doc.Len(), first),
	}
}

func benchIndexing(doc *textcore.Document) BenchResult {
	start := time.Now()
	if err := doc.WaitIndexed(context.Background()); err != nil {
		return BenchResult{Name: "Background indexing", Extra: fmt.Sprintf("ERROR: %v", err)}
	}
	return BenchResult{
		Name:     "Background indexing",
		Duration: time.Since(start),
		Extra:    fmt.Sprintf("%d lines", doc.LineCount().Value),
	}
}

func benchScroll(doc *textcore.Document, total int64, rng *rand.Rand) BenchResult {
	const ops = 1000
	start := time.Now()
	for i := 0; i < ops; i++ {
		if err := doc.UpdateViewport(rng.Int64N(total), 50); err != nil {
			return BenchResult{Name: "Random viewport jumps", Extra: fmt.Sprintf("ERROR: %v", err)}
		}
	}
	return BenchResult{Name: "Random viewport jumps", Duration: time.Since(start), Ops: ops}
}

func benchLineReads(doc *textcore.Document, total int64, rng *rand.Rand) BenchResult {
	const ops = 100000
	start := time.Now()
	missing := 0
	for i := 0; i < ops; i++ {
		if _, ok := doc.Line(rng.Int64N(total)); !ok {
			missing++
		}
	}
	return BenchResult{
		Name:     "Random line reads",
		Duration: time.Since(start),
		Ops:      ops,
		Extra:    fmt.Sprintf("%d missing", missing),
	}
}

func benchSequential(doc *textcore.Document, total int64) BenchResult {
	const ops, page = 2000, 50
	start := time.Now()
	var at int64
	for i := 0; i < ops; i++ {
		doc.UpdateViewport(at, page)
		doc.Lines(at, page)
		at = (at + page) % total
	}
	return BenchResult{Name: "Sequential scroll", Duration: time.Since(start), Ops: ops}
}

func benchInserts(rng *rand.Rand) BenchResult {
	const ops = 10000
	b := textcore.NewBufferFromText(strings.Repeat("0123456789abcdef\n", 4096))
	start := time.Now()
	for i := 0; i < ops; i++ {
		b.Insert(rng.IntN(b.Len()+1), "xyz")
	}
	return BenchResult{
		Name:     "Piece-table inserts",
		Duration: time.Since(start),
		Ops:      ops,
		Extra:    fmt.Sprintf("%d pieces", len(b.Pieces())),
	}
}

func benchDeletes(rng *rand.Rand) BenchResult {
	const ops = 10000
	b := textcore.NewBufferFromText(strings.Repeat("0123456789abcdef\n", 8192))
	start := time.Now()
	for i := 0; i < ops && b.Len() > 8; i++ {
		at := rng.IntN(b.Len() - 8)
		b.Delete(at, at+8)
	}
	return BenchResult{
		Name:     "Piece-table deletes",
		Duration: time.Since(start),
		Ops:      ops,
		Extra:    fmt.Sprintf("%d pieces", len(b.Pieces())),
	}
}

func benchRebase(rng *rand.Rand) BenchResult {
	const notes, edits = 10000, 100
	b := textcore.NewBufferFromText(strings.Repeat("the quick brown fox\n", 20000))
	set := textcore.NewAnchorSet()
	for id := uint64(1); id <= notes; id++ {
		set.Add(id, rng.IntN(b.Len()+1), "note", b)
	}

	start := time.Now()
	for i := 0; i < edits; i++ {
		at := rng.IntN(b.Len() + 1)
		b.Insert(at, "jumps\n")
		set.Rebase(nil, &textcore.Span{Start: at, Len: len("jumps\n")}, b)
	}
	return BenchResult{Name: "Rebase notes", Duration: time.Since(start), Ops: edits}
}

func benchSearch(doc *textcore.Document) BenchResult {
	doc.UpdateViewport(0, 10000)
	start := time.Now()
	matches, err := doc.FindAll("aaaa", textcore.SearchOptions{})
	if err != nil {
		return BenchResult{Name: "Search all in window", Extra: fmt.Sprintf("ERROR: %v", err)}
	}
	return BenchResult{
		Name:     "Search all in window",
		Duration: time.Since(start),
		Extra:    fmt.Sprintf("%d matches", len(matches)),
	}
}

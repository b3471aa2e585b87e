package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/phroun/textcore"
	"github.com/phroun/textcore/notestore"
)

// REPL holds the state of the interactive session
type REPL struct {
	lib    *textcore.Library
	doc    *textcore.Document
	reader *bufio.Reader
	logger *slog.Logger

	ws    *textcore.WorkspaceTree
	wsDir string

	watcher     *textcore.Watcher
	watchCancel context.CancelFunc

	notes *notestore.SQLiteStore
}

func main() {
	notesPath := flag.String("notes", "", "SQLite database for saved notes")
	largeBytes := flag.Int64("large-bytes", textcore.LargeFileBytes, "size above which files are memory-mapped")
	viewport := flag.Int("viewport", textcore.DefaultViewportLines, "lines loaded into the buffer of a large file")
	verbose := flag.Bool("v", false, "log debug records to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fmt.Println("Textcore REPL - Interactive Document Core Demo")
	fmt.Println("Type 'help' for available commands, 'quit' to exit")
	fmt.Println()

	repl := &REPL{
		reader: bufio.NewReader(os.Stdin),
		logger: logger,
	}

	lib, err := textcore.Init(textcore.LibraryOptions{
		LargeFileBytes: *largeBytes,
		ViewportLines:  *viewport,
		Logger:         logger,
	})
	if err != nil {
		fmt.Printf("Error initializing library: %v\n", err)
		os.Exit(1)
	}
	repl.lib = lib

	if *notesPath != "" {
		repl.notes, err = notestore.OpenSQLite(context.Background(), *notesPath)
		if err != nil {
			fmt.Printf("Error opening note store: %v\n", err)
			os.Exit(1)
		}
	}

	// Main loop
	for {
		fmt.Print("textcore> ")
		input, err := repl.reader.ReadString('\n')
		if err != nil {
			fmt.Println("\nGoodbye!")
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !repl.handleCommand(input) {
			break
		}
	}

	// Cleanup
	repl.stopWatch()
	lib.Close()
	if repl.notes != nil {
		repl.notes.Close()
	}
}

func (r *REPL) handleCommand(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		r.printHelp()

	case "quit", "exit":
		fmt.Println("Goodbye!")
		return false

	case "new":
		r.cmdNew(input)

	case "open":
		r.cmdOpen(args)

	case "close":
		r.cmdClose()

	case "status":
		r.cmdStatus()

	case "insert":
		r.cmdInsert(input)

	case "delete":
		r.cmdDelete(args)

	case "replace":
		r.cmdReplace(input)

	case "dump":
		r.cmdDump()

	case "line":
		r.cmdLine(args)

	case "lines":
		r.cmdLines(args)

	case "viewport":
		r.cmdViewport(args)

	case "note":
		r.cmdNote(input, args)

	case "notes":
		r.cmdNotes(args)

	case "find":
		r.cmdFind(input, false)

	case "findall":
		r.cmdFind(input, true)

	case "replaceall":
		r.cmdReplaceAll(args, input)

	case "check":
		r.cmdCheck()

	case "ws":
		r.cmdWorkspace(args)

	default:
		fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", cmd)
	}

	return true
}

func (r *REPL) printHelp() {
	help := `
Available Commands:
-------------------

DOCUMENTS:
  new <text>                    Create a document with the given text
  open <filepath>               Open a file (large files are memory-mapped)
  close                         Close the current document
  status                        Show document status
  check                         Check the source file for external changes

EDITING:
  insert <offset> <text>        Insert text at a byte offset
  delete <start> <end>          Delete the byte range [start, end)
  replace <start> <end> <text>  Replace the byte range with text

READING:
  dump                          Print the buffer
  line <n>                      Print line n (0-indexed)
  lines <start> <count>         Print count lines from start
  viewport <start> <count>      Move the window of a large file
  find <text>                   Find the first match
  findall <text>                Find every match
  replaceall <needle> <text>    Replace every match of needle

NOTES:
  note add <id> <offset> <text> Attach a note
  note rm <id>                  Remove a note
  notes                         List notes
  notes save                    Save notes to the -notes database
  notes load                    Load notes from the -notes database

WORKSPACE:
  ws open <dir>                 Open a workspace tree
  ws ls                         Show visible rows
  ws expand <id>                Expand a folder
  ws collapse <id>              Collapse a folder
  ws select <id>                Select one node
  ws toggle <id>                Toggle a node in the selection
  ws range <id>                 Select from the cursor to a node
  ws filter [query] [flags]     Filter rows; flags: case files folders hidden
  ws refresh                    Re-read every loaded folder
  ws mkdir <id> <name>          Create a folder
  ws touch <id> <name>          Create a file
  ws mv <id> <name>             Rename a node
  ws rm <id>                    Remove a node
  ws watch                      Follow file system changes

OTHER:
  help                          Show this help message
  quit, exit                    Exit the REPL
`
	fmt.Println(help)
}

// restOf returns input after its first n whitespace-separated fields,
// preserving inner spacing.
func restOf(input string, n int) string {
	s := strings.TrimSpace(input)
	for i := 0; i < n; i++ {
		j := strings.IndexAny(s, " \t")
		if j < 0 {
			return ""
		}
		s = strings.TrimLeft(s[j:], " \t")
	}
	return unescape(s)
}

func unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(s)
}

func (r *REPL) ensureDocument() bool {
	if r.doc == nil {
		fmt.Println("No document is open. Use 'new <text>' or 'open <file>'.")
		return false
	}
	return true
}

func (r *REPL) replaceDocument(doc *textcore.Document) {
	if r.doc != nil {
		r.doc.Close()
	}
	r.doc = doc
}

func (r *REPL) cmdNew(input string) {
	content := restOf(input, 1)
	doc, err := r.lib.Open(textcore.FileOptions{DataBytes: []byte(content)})
	if err != nil {
		fmt.Printf("Error creating document: %s\n", textcore.Diagnostic(err))
		return
	}
	r.replaceDocument(doc)
	fmt.Printf("Created %s with %d bytes\n", doc.ID(), doc.Len())
}

func (r *REPL) cmdOpen(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: open <filepath>")
		return
	}

	doc, err := r.lib.Open(textcore.FileOptions{FilePath: args[0]})
	if err != nil {
		fmt.Printf("Error opening file: %s\n", textcore.Diagnostic(err))
		return
	}
	r.replaceDocument(doc)

	mode := "buffer"
	if doc.IsLarge() {
		mode = "memory-mapped"
	}
	fmt.Printf("Opened %s (%s, %d bytes in buffer)\n", args[0], mode, doc.Len())
}

func (r *REPL) cmdClose() {
	if !r.ensureDocument() {
		return
	}
	r.doc.Close()
	r.doc = nil
	fmt.Println("Document closed")
}

func (r *REPL) cmdStatus() {
	if r.doc == nil {
		fmt.Println("No document is open. Use 'new <text>' to create one.")
		return
	}

	d := r.doc
	lines := d.LineCount()
	start, count := d.Window()

	fmt.Println("Document Status:")
	fmt.Printf("  ID:     %s\n", d.ID())
	fmt.Printf("  Source: %q\n", d.SourcePath())
	fmt.Printf("  Large:  %v\n", d.IsLarge())
	fmt.Printf("  Bytes:  %d (buffer)\n", d.Len())
	fmt.Printf("  Lines:  %d (complete: %v)\n", lines.Value, lines.Complete)
	fmt.Printf("  Window: %d +%d\n", start, count)
	fmt.Printf("  Notes:  %d active, %d total\n", len(d.Notes()), len(d.NoteRecords()))
}

func parseInt(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Printf("Invalid number: %s\n", s)
		return 0, false
	}
	return n, true
}

func (r *REPL) cmdInsert(input string) {
	if !r.ensureDocument() {
		return
	}
	fields := strings.Fields(input)
	if len(fields) < 3 {
		fmt.Println("Usage: insert <offset> <text>")
		return
	}
	offset, ok := parseInt(fields[1])
	if !ok {
		return
	}
	text := restOf(input, 2)
	if err := r.doc.Insert(offset, text); err != nil {
		fmt.Printf("Insert error: %s\n", textcore.Diagnostic(err))
		return
	}
	fmt.Printf("Inserted %d bytes at %d\n", len(text), offset)
}

func (r *REPL) cmdDelete(args []string) {
	if !r.ensureDocument() {
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: delete <start> <end>")
		return
	}
	start, ok1 := parseInt(args[0])
	end, ok2 := parseInt(args[1])
	if !ok1 || !ok2 {
		return
	}
	if err := r.doc.Delete(start, end); err != nil {
		fmt.Printf("Delete error: %s\n", textcore.Diagnostic(err))
		return
	}
	fmt.Printf("Deleted [%d, %d)\n", start, end)
}

func (r *REPL) cmdReplace(input string) {
	if !r.ensureDocument() {
		return
	}
	fields := strings.Fields(input)
	if len(fields) < 3 {
		fmt.Println("Usage: replace <start> <end> <text>")
		return
	}
	start, ok1 := parseInt(fields[1])
	end, ok2 := parseInt(fields[2])
	if !ok1 || !ok2 {
		return
	}
	if err := r.doc.Replace(start, end, restOf(input, 3)); err != nil {
		fmt.Printf("Replace error: %s\n", textcore.Diagnostic(err))
		return
	}
	fmt.Println("Replaced")
}

func (r *REPL) cmdDump() {
	if !r.ensureDocument() {
		return
	}
	fmt.Printf("--- %d bytes ---\n%s\n--- end ---\n", r.doc.Len(), r.doc.Text())
}

func (r *REPL) cmdLine(args []string) {
	if !r.ensureDocument() {
		return
	}
	if len(args) < 1 {
		fmt.Println("Usage: line <n>")
		return
	}
	n, ok := parseInt(args[0])
	if !ok {
		return
	}
	s, found := r.doc.Line(int64(n))
	if !found {
		fmt.Printf("Line %d does not exist\n", n)
		return
	}
	fmt.Printf("%6d  %s\n", n, s)
}

func (r *REPL) cmdLines(args []string) {
	if !r.ensureDocument() {
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: lines <start> <count>")
		return
	}
	start, ok1 := parseInt(args[0])
	count, ok2 := parseInt(args[1])
	if !ok1 || !ok2 {
		return
	}
	for i, s := range r.doc.Lines(int64(start), count) {
		fmt.Printf("%6d  %s\n", start+i, s)
	}
}

func (r *REPL) cmdViewport(args []string) {
	if !r.ensureDocument() {
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: viewport <start> <count>")
		return
	}
	start, ok1 := parseInt(args[0])
	count, ok2 := parseInt(args[1])
	if !ok1 || !ok2 {
		return
	}
	if !r.doc.IsLarge() {
		fmt.Println("Viewport only applies to memory-mapped documents")
		return
	}
	if err := r.doc.UpdateViewport(int64(start), count); err != nil {
		fmt.Printf("Viewport error: %s\n", textcore.Diagnostic(err))
		return
	}
	fmt.Printf("Window now %d +%d (%d bytes)\n", start, count, r.doc.Len())
}

func (r *REPL) cmdNote(input string, args []string) {
	if !r.ensureDocument() {
		return
	}
	if len(args) < 2 {
		fmt.Println("Usage: note add <id> <offset> <text> | note rm <id>")
		return
	}

	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid id: %s\n", args[1])
		return
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 3 {
			fmt.Println("Usage: note add <id> <offset> <text>")
			return
		}
		offset, ok := parseInt(args[2])
		if !ok {
			return
		}
		if err := r.doc.AddNote(id, offset, restOf(input, 4)); err != nil {
			fmt.Printf("Note error: %s\n", textcore.Diagnostic(err))
			return
		}
		a, _ := r.doc.Note(id)
		fmt.Printf("Note %d at %d:%d\n", id, a.Line, a.Column)

	case "rm":
		if !r.doc.RemoveNote(id) {
			fmt.Printf("Note %d not found\n", id)
			return
		}
		fmt.Printf("Note %d removed\n", id)

	default:
		fmt.Println("Usage: note add <id> <offset> <text> | note rm <id>")
	}
}

func (r *REPL) cmdNotes(args []string) {
	if !r.ensureDocument() {
		return
	}

	if len(args) == 0 {
		for _, a := range r.doc.Notes() {
			fmt.Printf("  #%d  offset=%d  %d:%d  %q\n", a.ID, a.Offset, a.Line, a.Column, a.Content)
		}
		return
	}

	if r.notes == nil {
		fmt.Println("No note store. Start the REPL with -notes <db>.")
		return
	}
	key := r.doc.SourcePath()
	if key == "" {
		key = r.doc.ID()
	}

	ctx := context.Background()
	switch strings.ToLower(args[0]) {
	case "save":
		records := r.doc.NoteRecords()
		if err := r.notes.Save(ctx, key, records); err != nil {
			fmt.Printf("Save error: %v\n", err)
			return
		}
		fmt.Printf("Saved %d notes for %s\n", len(records), key)

	case "load":
		records, err := r.notes.Load(ctx, key)
		if err != nil {
			fmt.Printf("Load error: %v\n", err)
			return
		}
		if err := r.doc.LoadNotes(records); err != nil {
			fmt.Printf("Load error: %s\n", textcore.Diagnostic(err))
			return
		}
		fmt.Printf("Loaded %d notes for %s\n", len(records), key)

	default:
		fmt.Println("Usage: notes [save|load]")
	}
}

func (r *REPL) cmdFind(input string, all bool) {
	if !r.ensureDocument() {
		return
	}
	needle := restOf(input, 1)
	if needle == "" {
		fmt.Println("Usage: find <text>")
		return
	}

	if all {
		results, err := r.doc.FindAll(needle, textcore.SearchOptions{})
		if err != nil {
			fmt.Printf("Search error: %s\n", textcore.Diagnostic(err))
			return
		}
		for _, m := range results {
			fmt.Printf("  [%d, %d) %q\n", m.Start, m.End, m.Match)
		}
		fmt.Printf("%d matches\n", len(results))
		return
	}

	m, err := r.doc.FindString(0, needle, textcore.SearchOptions{})
	if err != nil {
		fmt.Printf("Search error: %s\n", textcore.Diagnostic(err))
		return
	}
	if m == nil {
		fmt.Println("Not found")
		return
	}
	fmt.Printf("Found at [%d, %d) %q\n", m.Start, m.End, m.Match)
}

func (r *REPL) cmdCheck() {
	if !r.ensureDocument() {
		return
	}
	info, err := r.doc.CheckSource()
	if err != nil {
		fmt.Printf("Check error: %s\n", textcore.Diagnostic(err))
		return
	}
	fmt.Printf("Source %s (was %d bytes, now %d)\n", info.Type, info.PreviousSize, info.CurrentSize)
}

func (r *REPL) cmdReplaceAll(args []string, input string) {
	if !r.ensureDocument() {
		return
	}
	if len(args) < 1 {
		fmt.Println("Usage: replaceall <needle> <text>")
		return
	}
	n, err := r.doc.ReplaceAll(unescape(args[0]), restOf(input, 2), textcore.SearchOptions{CaseSensitive: true})
	if err != nil {
		fmt.Printf("Replace error: %s\n", textcore.Diagnostic(err))
		return
	}
	fmt.Printf("Replaced %d occurrences\n", n)
}

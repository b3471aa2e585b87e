package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/phroun/textcore"
)

func (r *REPL) cmdWorkspace(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: ws <open|ls|expand|collapse|select|toggle|range|filter|refresh|mkdir|touch|mv|rm|watch> ...")
		return
	}

	sub := strings.ToLower(args[0])
	args = args[1:]

	if sub == "open" {
		r.wsOpen(args)
		return
	}
	if r.ws == nil {
		fmt.Println("No workspace is open. Use 'ws open <dir>'.")
		return
	}

	switch sub {
	case "ls":
		r.wsList()
	case "expand", "collapse", "select", "toggle", "range", "rm":
		r.wsNodeOp(sub, args)
	case "filter":
		r.wsFilter(args)
	case "refresh":
		if err := r.ws.Refresh(context.Background()); err != nil {
			fmt.Printf("Refresh error: %s\n", textcore.Diagnostic(err))
		}
		r.wsList()
	case "mkdir", "touch", "mv":
		r.wsNamed(sub, args)
	case "watch":
		r.wsWatch()
	default:
		fmt.Printf("Unknown workspace command: %s\n", sub)
	}
}

func (r *REPL) wsOpen(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ws open <dir>")
		return
	}
	tree, err := textcore.OpenWorkspace(textcore.NewLocalProvider(args[0]), textcore.WorkspaceOptions{Logger: r.logger})
	if err != nil {
		fmt.Printf("Workspace error: %s\n", textcore.Diagnostic(err))
		return
	}
	r.stopWatch()
	r.ws = tree
	r.wsDir = args[0]
	r.wsList()
}

func (r *REPL) wsList() {
	cursor := r.ws.Cursor()
	for _, row := range r.ws.VisibleRows() {
		n, ok := r.ws.Node(row.ID)
		if !ok {
			continue
		}

		mark := "  "
		if r.ws.IsSelected(row.ID) {
			mark = "* "
		}
		if row.ID == cursor {
			mark = "> "
		}

		name := n.Name
		if row.ID == r.ws.Root() {
			name = r.wsDir
		}
		switch {
		case n.IsFolder() && r.ws.IsExpanded(row.ID):
			name = "v " + name + "/"
		case n.IsFolder():
			name = "> " + name + "/"
		default:
			name = "  " + name
		}
		fmt.Printf("%s%4d %s%s\n", mark, row.ID, strings.Repeat("  ", row.Depth), name)
	}
}

func parseNodeID(s string) (textcore.NodeID, bool) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		fmt.Printf("Invalid node id: %s\n", s)
		return 0, false
	}
	return textcore.NodeID(n), true
}

func (r *REPL) wsNodeOp(op string, args []string) {
	if len(args) < 1 {
		fmt.Printf("Usage: ws %s <id>\n", op)
		return
	}
	id, ok := parseNodeID(args[0])
	if !ok {
		return
	}

	var err error
	found := true
	switch op {
	case "expand":
		err = r.ws.Expand(id)
	case "collapse":
		found = r.ws.Collapse(id)
	case "select":
		found = r.ws.Select(id)
	case "toggle":
		found = r.ws.ToggleSelect(id)
	case "range":
		found = r.ws.SelectRange(id)
	case "rm":
		err = r.ws.Remove(id)
	}
	if !found {
		err = textcore.ErrNodeNotFound
	}
	if err != nil {
		fmt.Printf("Workspace error: %s\n", textcore.Diagnostic(err))
		return
	}
	r.wsList()
}

func (r *REPL) wsNamed(op string, args []string) {
	if len(args) < 2 {
		fmt.Printf("Usage: ws %s <id> <name>\n", op)
		return
	}
	id, ok := parseNodeID(args[0])
	if !ok {
		return
	}

	var err error
	switch op {
	case "mkdir":
		_, err = r.ws.CreateDir(id, args[1])
	case "touch":
		_, err = r.ws.CreateFile(id, args[1])
	case "mv":
		err = r.ws.Rename(id, args[1])
	}
	if err != nil {
		fmt.Printf("Workspace error: %s\n", textcore.Diagnostic(err))
		return
	}
	r.wsList()
}

func (r *REPL) wsFilter(args []string) {
	var f textcore.FilterState
	for _, a := range args {
		switch strings.ToLower(a) {
		case "case":
			f.MatchCase = true
		case "files":
			f.FilesOnly = true
		case "folders":
			f.FoldersOnly = true
		case "hidden":
			f.ShowHidden = true
		default:
			f.Query = a
		}
	}
	r.ws.SetFilter(f)
	r.wsList()
}

func (r *REPL) wsWatch() {
	if r.watcher != nil {
		fmt.Println("Already watching")
		return
	}
	w, err := textcore.NewWatcher(r.ws, r.wsDir, textcore.WatcherOptions{Logger: r.logger})
	if err != nil {
		fmt.Printf("Watch error: %v\n", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.watcher = w
	r.watchCancel = cancel
	go w.Run(ctx)
	fmt.Printf("Watching %d folders\n", w.Watched())
}

func (r *REPL) stopWatch() {
	if r.watcher == nil {
		return
	}
	r.watchCancel()
	r.watcher.Close()
	r.watcher = nil
	r.watchCancel = nil
}

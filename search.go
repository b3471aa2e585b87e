package textcore

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SearchResult contains information about a search match.
type SearchResult struct {
	Start int    // byte offset in the buffer
	End   int    // exclusive
	Match string // the matched text
}

// SearchOptions configures string search behavior.
type SearchOptions struct {
	CaseSensitive bool // If false, search is case-insensitive
	WholeWord     bool // If true, only match whole words
	Backward      bool // If true, search backward from the start offset
}

// FindString returns the first match of needle at or after from, or the
// last match ending at or before from when searching backward. It returns
// nil when there is no match. Large documents search the loaded window.
func (d *Document) FindString(from int, needle string, opts SearchOptions) (*SearchResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	if needle == "" {
		return nil, nil
	}

	text := d.buffer.String()
	from = clampOffset(from, len(text))

	if opts.Backward {
		var last *SearchResult
		for _, m := range findAll(text, needle, opts) {
			if m.End > from {
				break
			}
			last = &m
		}
		return last, nil
	}

	for pos := from; pos <= len(text)-len(needle); {
		start, ok := indexFrom(text, needle, pos, opts.CaseSensitive)
		if !ok {
			return nil, nil
		}
		end := start + len(needle)
		if !opts.WholeWord || isWholeWord(text, start, end) {
			return &SearchResult{Start: start, End: end, Match: text[start:end]}, nil
		}
		pos = start + 1
	}
	return nil, nil
}

// FindAll returns every non-overlapping match in document order, or in
// reverse order when opts.Backward is set.
func (d *Document) FindAll(needle string, opts SearchOptions) ([]SearchResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	if needle == "" {
		return nil, nil
	}

	results := findAll(d.buffer.String(), needle, opts)
	if opts.Backward {
		slices.Reverse(results)
	}
	return results, nil
}

// CountString counts non-overlapping occurrences of needle.
func (d *Document) CountString(needle string, opts SearchOptions) (int, error) {
	results, err := d.FindAll(needle, opts)
	return len(results), err
}

// ReplaceAll replaces every match of needle with replacement and returns the
// number of replacements. Notes move as they would for individual edits.
func (d *Document) ReplaceAll(needle, replacement string, opts SearchOptions) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrDocumentClosed
	}
	if needle == "" {
		return 0, nil
	}

	matches := findAll(d.buffer.String(), needle, opts)

	// Last to first so earlier offsets stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		if err := d.replaceUnlocked(matches[i].Start, matches[i].End, replacement); err != nil {
			return len(matches) - 1 - i, err
		}
	}
	return len(matches), nil
}

func findAll(text, needle string, opts SearchOptions) []SearchResult {
	var results []SearchResult
	for pos := 0; pos <= len(text)-len(needle); {
		start, ok := indexFrom(text, needle, pos, opts.CaseSensitive)
		if !ok {
			break
		}
		end := start + len(needle)
		if opts.WholeWord && !isWholeWord(text, start, end) {
			pos = start + 1
			continue
		}
		results = append(results, SearchResult{Start: start, End: end, Match: text[start:end]})
		pos = end
	}
	return results
}

// indexFrom finds needle in text at or after pos. Case-insensitive matches
// use Unicode simple folding over a window the size of needle, starting on
// rune boundaries.
func indexFrom(text, needle string, pos int, caseSensitive bool) (int, bool) {
	if caseSensitive {
		i := strings.Index(text[pos:], needle)
		if i < 0 {
			return 0, false
		}
		return pos + i, true
	}

	for i := pos; i+len(needle) <= len(text); i++ {
		if !utf8.RuneStart(text[i]) {
			continue
		}
		if strings.EqualFold(text[i:i+len(needle)], needle) {
			return i, true
		}
	}
	return 0, false
}

func isWholeWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordChar(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordChar(r) {
			return false
		}
	}
	return true
}

// isWordChar returns true if r is a word character (letter, digit, or underscore).
func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

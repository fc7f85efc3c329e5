// Package parser reads vocabulary entries from markdown files.
//
// An entry starts with a "W:" line and may carry "T:" (translation) and
// "C:" (context or example sentence) blocks. Blocks run until the next
// prefix; "---" or a new "W:" line closes the entry.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/vocabreview/internal/domain"
)

const (
	wordPrefix        = "W:"
	translationPrefix = "T:"
	contextPrefix     = "C:"
	separator         = "---"
)

type state int

const (
	seeking state = iota
	readingWord
	readingTranslation
	readingContext
)

// ParseFile reads a file from the given path and extracts all entries.
func ParseFile(path string) ([]domain.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all entries.
func Parse(r io.Reader) ([]domain.Entry, error) {
	scanner := bufio.NewScanner(r)
	var entries []domain.Entry
	var current domain.Entry
	var block []string
	currentState := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch currentState {
		case readingWord:
			current.Word = content
		case readingTranslation:
			current.Translation = content
		case readingContext:
			current.Context = content
		}
		block = nil
	}

	finishEntry := func() {
		flushBlock()
		if current.Word != "" {
			entries = append(entries, current)
		}
		current = domain.Entry{}
		currentState = seeking
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == separator {
			finishEntry()
			continue
		}

		next, content, ok := prefixed(line)
		if !ok {
			if currentState != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == readingWord && currentState != seeking {
			// A new word always starts a new entry.
			finishEntry()
		} else {
			flushBlock()
		}
		currentState = next
		block = append(block, content)
	}

	finishEntry()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func prefixed(line string) (state, string, bool) {
	for _, p := range []struct {
		prefix string
		state  state
	}{
		{wordPrefix, readingWord},
		{translationPrefix, readingTranslation},
		{contextPrefix, readingContext},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.state, strings.TrimPrefix(rest, " "), true
		}
	}
	return seeking, "", false
}

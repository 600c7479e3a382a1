// Package keywords loads the opening-message trigger phrases.
package keywords

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// ErrNoKeywords means no trigger phrase survived loading, even after the
// built-in fallback. Scanning with an empty set is pointless, so the run aborts.
var ErrNoKeywords = errors.New("no keywords configured")

// Defaults is used when the keyword file cannot be read.
var Defaults = []string{"booking", "daftar", "trial", "coba gratis", "info harga", "jadwal"}

// Set is a normalized, order-free collection of phrases.
type Set struct {
	items []string
	index map[string]struct{}
}

func New(words ...string) *Set {
	s := &Set{index: map[string]struct{}{}}
	for _, w := range words {
		s.add(w)
	}
	sort.Strings(s.items)
	return s
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *Set) add(w string) {
	w = norm(w)
	if w == "" {
		return
	}
	if _, ok := s.index[w]; ok {
		return
	}
	s.index[w] = struct{}{}
	s.items = append(s.items, w)
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Set) Contains(w string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[norm(w)]
	return ok
}

// Words returns the normalized phrases in lexical order.
func (s *Set) Words() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.items...)
}

// Match reports the first phrase contained in text, case-insensitively.
func (s *Set) Match(text string) (string, bool) {
	if s.Len() == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, w := range s.items {
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	return "", false
}

// Read parses one phrase per line; blank lines are dropped.
func Read(r io.Reader) (*Set, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		words = append(words, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(words...), nil
}

// Load reads path, falling back to Defaults when the file is unavailable.
// It fails with ErrNoKeywords only when the resulting set is empty.
func Load(path string, log *slog.Logger) (*Set, error) {
	set, err := loadFile(path)
	if err != nil {
		log.Warn("keyword file unavailable, using defaults", slog.String("path", path), slog.String("err", err.Error()))
		set = New(Defaults...)
	} else {
		log.Info("keywords loaded", slog.String("path", path), slog.Int("count", set.Len()))
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoKeywords)
	}
	return set, nil
}

func loadFile(path string) (*Set, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

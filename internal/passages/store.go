// Package passages holds the ordered, read-only passage texts that vector ids point into.
package passages

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ragqa/internal/domain"
)

// Store is an immutable list of passages. Passage i has ID i.
type Store struct {
	texts []string
}

// New wraps texts in a Store. The slice is copied.
func New(texts []string) *Store {
	return &Store{texts: append([]string(nil), texts...)}
}

// Len returns the number of passages.
func (s *Store) Len() int { return len(s.texts) }

// Get returns passage id, or false when id is out of range.
func (s *Store) Get(id int) (domain.Passage, bool) {
	if id < 0 || id >= len(s.texts) {
		return domain.Passage{}, false
	}
	return domain.Passage{ID: id, Text: s.texts[id]}, true
}

// Texts returns a copy of all passage texts.
func (s *Store) Texts() []string { return append([]string(nil), s.texts...) }

// Load reads a passage file. ".jsonl" files hold one passage per line, either a
// JSON string or an object with a "text" field; anything else must be a JSON array of strings.
func Load(path string) (*Store, error) {
	var (
		texts []string
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		texts, err = loadJSONL(path)
	default:
		texts, err = loadJSON(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load passages %s: %w", path, err)
	}
	return &Store{texts: texts}, nil
}

// Save writes texts as a JSON array.
func Save(path string, texts []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(texts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadJSON(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := json.Unmarshal(data, &texts); err != nil {
		return nil, err
	}
	return texts, nil
}

func loadJSONL(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		text, err := decodeLine([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		texts = append(texts, text)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return texts, nil
}

func decodeLine(raw []byte) (string, error) {
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var obj struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	if obj.Text == nil {
		return "", errors.New(`object has no "text" field`)
	}
	return *obj.Text, nil
}

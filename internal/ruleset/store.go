package ruleset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	natomic "github.com/natefinch/atomic"

	"github.com/waflite/waflite/internal/normalize"
	"github.com/waflite/waflite/internal/rules"
)

// Store is a rule set persisted as a single JSON file. Reads go to disk
// unless caching is enabled; writes replace the whole file atomically so a
// reader never sees a partial document.
type Store struct {
	path string

	mu sync.Mutex

	cacheMu sync.Mutex
	caching bool
	cached  *RuleSet
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// emptyDocument is what a store holds before its file exists.
func emptyDocument() Document {
	return Document{
		KeyThreshold:        DefaultThreshold,
		KeyIgnoreUserAgents: []any{},
		KeyRules:            []any{},
	}
}

// Document returns the stored document with missing keys filled in.
func (s *Store) Document() (Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emptyDocument(), nil
		}
		return nil, rules.NewConfigError(err, "cannot read rule store %s", s.path)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	doc.setDefault(KeyThreshold, DefaultThreshold)
	doc.setDefault(KeyIgnoreUserAgents, []any{})
	doc.setDefault(KeyRules, []any{})
	return doc, nil
}

// Load returns the compiled rule set. An empty rule list is valid in the
// store and scores every request 0.
func (s *Store) Load() (*RuleSet, error) {
	s.cacheMu.Lock()
	if !s.caching {
		s.cacheMu.Unlock()
		return s.load()
	}
	defer s.cacheMu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}
	set, err := s.load()
	if err != nil {
		return nil, err
	}
	s.cached = set
	return set, nil
}

func (s *Store) load() (*RuleSet, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	return compile(doc, false)
}

// EnableCache keeps the last loaded rule set until the next write through
// the store or an Invalidate call.
func (s *Store) EnableCache() {
	s.cacheMu.Lock()
	s.caching = true
	s.cacheMu.Unlock()
}

// Invalidate drops the cached rule set, if any.
func (s *Store) Invalidate() {
	s.cacheMu.Lock()
	s.cached = nil
	s.cacheMu.Unlock()
}

// Replace validates doc and writes it in place of the stored document.
func (s *Store) Replace(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(doc)
}

func (s *Store) replaceLocked(doc Document) error {
	if doc == nil {
		return rules.NewConfigError(nil, "rule store root must be an object")
	}
	if raw, ok := doc[KeyRules]; ok {
		if _, isList := raw.([]any); !isList {
			return rules.NewConfigError(nil, "rule store rls must be a list")
		}
	}
	if _, err := compile(doc, false); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rule store: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create rule store dir: %w", err)
	}
	if err := natomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write rule store: %w", err)
	}

	s.Invalidate()
	return nil
}

// update applies fn to the current document and stores the result.
func (s *Store) update(fn func(doc Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Document()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.replaceLocked(doc)
}

// Upsert stores a rule under its sanitized id, replacing every existing
// rule with that id.
func (s *Store) Upsert(spec rules.Spec) error {
	spec.ID = rules.SanitizeID(spec.ID)
	if spec.ID == "" {
		return rules.NewConfigError(nil, "bad rule id")
	}
	if spec.Field == "" {
		spec.Field = rules.DefaultField
	}

	return s.update(func(doc Document) error {
		kept, err := withoutRule(doc, spec.ID)
		if err != nil {
			return err
		}
		doc[KeyRules] = append(kept, spec.Document())
		return nil
	})
}

// UpsertDocument is Upsert for a rule given as a JSON object. rid, rtp and
// w are required, as in a rule config.
func (s *Store) UpsertDocument(obj map[string]any) error {
	if obj == nil {
		return rules.NewConfigError(nil, "rule must be an object")
	}
	spec, err := specFromDocument(obj)
	if err != nil {
		return rules.NewConfigError(err, "bad rule")
	}
	return s.Upsert(spec)
}

// Delete removes every rule with the given id and reports whether any was
// removed.
func (s *Store) Delete(id string) (bool, error) {
	removed := false
	err := s.update(func(doc Document) error {
		before, _ := doc[KeyRules].([]any)
		kept, err := withoutRule(doc, id)
		if err != nil {
			return err
		}
		removed = len(kept) != len(before)
		doc[KeyRules] = kept
		return nil
	})
	return removed, err
}

func (s *Store) SetThreshold(threshold int) error {
	return s.update(func(doc Document) error {
		doc[KeyThreshold] = threshold
		return nil
	})
}

func (s *Store) SetIgnoreUserAgents(agents []string) error {
	return s.update(func(doc Document) error {
		list := make([]any, 0, len(agents))
		for _, a := range agents {
			list = append(list, a)
		}
		doc[KeyIgnoreUserAgents] = list
		return nil
	})
}

func withoutRule(doc Document, id string) ([]any, error) {
	items, ok := doc[KeyRules].([]any)
	if !ok {
		return nil, rules.NewConfigError(nil, "rule store rls must be a list")
	}
	kept := make([]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			if raw, has := obj["rid"]; has && normalize.String(raw) == id {
				continue
			}
		}
		kept = append(kept, item)
	}
	return kept, nil
}

// Package templates persists agent records as JSON files, one per agent,
// under a configurable directory.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
)

const fileExt = ".json"

// Template names double as file names, so keep them to a safe charset.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]*$`)

// Store is a directory of <name>.json agent records.
type Store struct {
	dir    string
	logger *zap.Logger
}

// New creates the store, making the directory if needed.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("templates dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Load reads one record by name.
func (s *Store) Load(name string) (domain.AgentRecord, error) {
	if err := validateName(name); err != nil {
		return domain.AgentRecord{}, err
	}

	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.AgentRecord{}, fmt.Errorf("template %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return domain.AgentRecord{}, fmt.Errorf("read template %s: %w", name, err)
	}

	var rec domain.AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.AgentRecord{}, fmt.Errorf("parse template %s: %w", name, err)
	}
	if rec.Name == "" {
		rec.Name = name
	}
	return rec, nil
}

// List returns every loadable record sorted by name. Files that fail to
// parse are logged and skipped so one bad file never hides the rest.
func (s *Store) List() ([]domain.AgentRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir %s: %w", s.dir, err)
	}

	records := make([]domain.AgentRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		rec, err := s.Load(name)
		if err != nil {
			s.logger.Warn("Skipping unreadable template",
				zap.String("file", e.Name()),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Save validates and writes a record. An existing record with the same
// name is overwritten.
func (s *Store) Save(rec domain.AgentRecord) error {
	if err := validateName(rec.Name); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.write(rec)
}

// Update merges non-empty fields of upd into the stored record and writes
// the result back. Parameters merge key by key.
func (s *Store) Update(name string, upd domain.AgentRecord) (domain.AgentRecord, error) {
	rec, err := s.Load(name)
	if err != nil {
		return domain.AgentRecord{}, err
	}

	if upd.Description != "" {
		rec.Description = upd.Description
	}
	if upd.BasePrompt != "" {
		rec.BasePrompt = upd.BasePrompt
	}
	if upd.Kind != "" {
		rec.Kind = upd.Kind
	}
	if upd.KnowledgeDir != "" {
		rec.KnowledgeDir = upd.KnowledgeDir
	}
	if upd.QueryTemplates != nil {
		rec.QueryTemplates = upd.QueryTemplates
	}
	for k, v := range upd.Parameters {
		if rec.Parameters == nil {
			rec.Parameters = map[string]any{}
		}
		rec.Parameters[k] = v
	}

	if err := rec.Validate(); err != nil {
		return domain.AgentRecord{}, err
	}
	if err := s.write(rec); err != nil {
		return domain.AgentRecord{}, err
	}
	return rec, nil
}

// Delete removes a record. Deleting a missing record returns ErrNotFound.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("template %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete template %s: %w", name, err)
	}
	return nil
}

// Exists reports whether a record file is present.
func (s *Store) Exists(name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat template %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) write(rec domain.AgentRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template %s: %w", rec.Name, err)
	}

	path := s.path(rec.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write template %s: %w", rec.Name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace template %s: %w", rec.Name, err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

func validateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid template name %q: %w", name, domain.ErrEmptyInput)
	}
	return nil
}

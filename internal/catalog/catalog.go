// Package catalog imports subjects, learning models, students and questions
// from JSON or YAML files into the content store.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/assessor/internal/apperr"
	"github.com/pavelanni/assessor/internal/model"
)

//go:embed sample.yaml
var sampleYAML []byte

// SampleKey is the import key recorded for the built-in sample catalog.
const SampleKey = "builtin:sample.yaml"

// Store is the content store written by imports.
type Store interface {
	UpsertSubject(ctx context.Context, sub model.Subject) error
	UpsertModel(ctx context.Context, m model.LearningModel) error
	UpsertStudent(ctx context.Context, st model.Student) error
	InsertQuestion(ctx context.Context, q model.Question) (string, error)
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// Result counts what an import wrote.
type Result struct {
	Subjects  int  `json:"subjects"`
	Models    int  `json:"models"`
	Students  int  `json:"students"`
	Questions int  `json:"questions"`
	Skipped   bool `json:"skipped"`
}

// Importer loads catalog files into a Store.
type Importer struct {
	store Store
}

// NewImporter creates an Importer.
func NewImporter(store Store) *Importer {
	return &Importer{store: store}
}

// Sample returns the built-in demo catalog.
func Sample() (model.CatalogImport, error) {
	return Parse("sample.yaml", sampleYAML)
}

// Parse decodes a catalog from data. The format follows the file extension
// (.json, .yaml, .yml). A top-level list is read as a bare list of questions.
func Parse(name string, data []byte) (model.CatalogImport, error) {
	var c model.CatalogImport
	list := isList(data)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		var err error
		if list {
			err = dec.Decode(&c.Questions)
		} else {
			err = dec.Decode(&c)
		}
		if err != nil {
			return c, apperr.Wrap(apperr.CodeValidation, "parse "+name, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		var err error
		if list {
			err = dec.Decode(&c.Questions)
		} else {
			err = dec.Decode(&c)
		}
		if err != nil {
			return c, apperr.Wrap(apperr.CodeValidation, "parse "+name, err)
		}
	default:
		return c, apperr.Newf(apperr.CodeValidation, "unsupported catalog format %q", filepath.Ext(name)).
			With("file", name)
	}
	return c, nil
}

// isList reports whether the first meaningful line opens a sequence.
func isList(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == "---" || strings.HasPrefix(line, "#") {
			continue
		}
		return strings.HasPrefix(line, "-") || strings.HasPrefix(line, "[")
	}
	return false
}

// Validate checks every question in c.
func Validate(c model.CatalogImport) error {
	for i, q := range c.Questions {
		where := q.ID
		if where == "" {
			where = fmt.Sprintf("#%d", i+1)
		}
		switch {
		case q.ModelID == "":
			return apperr.Newf(apperr.CodeValidation, "question %s: model_id is required", where)
		case strings.TrimSpace(q.Text) == "":
			return apperr.Newf(apperr.CodeValidation, "question %s: text is required", where)
		case len(q.Options) < 2:
			return apperr.Newf(apperr.CodeValidation, "question %s: at least two options are required", where)
		case q.CorrectOption < 0 || q.CorrectOption >= len(q.Options):
			return apperr.Newf(apperr.CodeValidation, "question %s: correct_option %d out of range", where, q.CorrectOption)
		case !q.Difficulty.Valid():
			return apperr.Newf(apperr.CodeValidation, "question %s: unknown difficulty %q", where, q.Difficulty)
		}
	}
	for _, m := range c.Models {
		if m.ID == "" {
			return apperr.New(apperr.CodeValidation, "model id is required")
		}
	}
	for _, s := range c.Subjects {
		if s.ID == "" {
			return apperr.New(apperr.CodeValidation, "subject id is required")
		}
	}
	for _, s := range c.Students {
		if s.ID == "" {
			return apperr.New(apperr.CodeValidation, "student id is required")
		}
	}
	return nil
}

// Apply validates c and writes it to the store. Existing questions are left
// untouched; subjects, models and students are upserted.
func (im *Importer) Apply(ctx context.Context, c model.CatalogImport) (Result, error) {
	var res Result
	if err := Validate(c); err != nil {
		return res, err
	}

	for _, sub := range c.Subjects {
		if err := im.store.UpsertSubject(ctx, sub); err != nil {
			return res, fmt.Errorf("upsert subject %s: %w", sub.ID, err)
		}
		res.Subjects++
	}
	for _, m := range c.Models {
		if err := im.store.UpsertModel(ctx, m); err != nil {
			return res, fmt.Errorf("upsert model %s: %w", m.ID, err)
		}
		res.Models++
	}
	for _, st := range c.Students {
		if err := im.store.UpsertStudent(ctx, st); err != nil {
			return res, fmt.Errorf("upsert student %s: %w", st.ID, err)
		}
		res.Students++
	}
	for _, qi := range c.Questions {
		_, err := im.store.InsertQuestion(ctx, model.Question{
			ID:            qi.ID,
			SubjectID:     qi.SubjectID,
			ModelID:       qi.ModelID,
			Text:          qi.Text,
			Options:       qi.Options,
			CorrectOption: qi.CorrectOption,
			Difficulty:    qi.Difficulty,
		})
		if err != nil {
			return res, fmt.Errorf("insert question %s: %w", qi.ID, err)
		}
		res.Questions++
	}
	return res, nil
}

// ImportFiles imports each path once. A file whose content changed since
// its last import is skipped so served questions never change under a
// running session.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := im.ImportBytes(ctx, path, path, data)
		if err != nil {
			return err
		}
		if !res.Skipped {
			slog.Info("imported catalog",
				"path", path,
				"subjects", res.Subjects,
				"models", res.Models,
				"students", res.Students,
				"questions", res.Questions,
			)
		}
	}
	return nil
}

// ImportSample loads the built-in demo catalog once.
func (im *Importer) ImportSample(ctx context.Context) (Result, error) {
	res, err := im.ImportBytes(ctx, SampleKey, "sample.yaml", sampleYAML)
	if err != nil {
		return res, err
	}
	if !res.Skipped {
		slog.Info("imported sample catalog", "questions", res.Questions)
	}
	return res, nil
}

// ImportBytes imports data under key unless that key was imported before.
// name selects the format.
func (im *Importer) ImportBytes(ctx context.Context, key, name string, data []byte) (Result, error) {
	hash := sha256sum(data)
	storedHash, err := im.store.GetImportedFileHash(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("check import status for %s: %w", key, err)
	}
	if storedHash == hash {
		slog.Info("catalog unchanged, skipping", "path", key)
		return Result{Skipped: true}, nil
	}
	if storedHash != "" {
		slog.Warn("catalog changed since last import, skipping to keep questions immutable", "path", key)
		return Result{Skipped: true}, nil
	}

	c, err := Parse(name, data)
	if err != nil {
		return Result{}, err
	}
	res, err := im.Apply(ctx, c)
	if err != nil {
		return res, fmt.Errorf("import %s: %w", key, err)
	}
	if err := im.store.SetImportedFileHash(ctx, key, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", key, err)
	}
	return res, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

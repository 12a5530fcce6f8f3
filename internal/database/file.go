package database

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"price-alert-bot/internal/types"
)

// FileStore keeps the document as one JSON file, replaced by writing a
// temporary file in the same directory and renaming it over the original.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (*types.Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return types.NewDocument(), nil
	} else if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: err}
	}

	doc := types.NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &StoreError{Op: "load", Path: s.path, Err: errors.Wrap(err, "decode document")}
	}
	if doc.Alerts == nil {
		doc.Alerts = make(map[int64][]*types.Alert)
	}
	return doc, nil
}

func (s *FileStore) Save(ctx context.Context, doc *types.Document) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "save", Path: s.path, Err: err}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StoreError{Op: "save", Path: s.path, Err: errors.Wrap(err, "encode document")}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StoreError{Op: "save", Path: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &StoreError{Op: "save", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &StoreError{Op: "save", Path: s.path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "save", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &StoreError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/entrhq/episodic/pkg/fsutil"
)

const (
	// WatermarkFile is the watermark document inside the state directory.
	WatermarkFile = "last_digest_times.json"
	// ShadowFile is the shadow document inside the state directory.
	ShadowFile = "shadow_grand_digest.json"

	documentVersion = 1
)

type watermarkDoc struct {
	Version int                  `json:"version"`
	Levels  map[string]Watermark `json:"levels"`
}

type shadowDoc struct {
	Version int                     `json:"version"`
	Levels  map[string]ShadowBuffer `json:"levels"`
}

// FileStore keeps all watermarks in one JSON document and all shadow buffers
// in another. Every mutation is a read-modify-write followed by an atomic
// replace of the document.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a store whose documents live in dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("state: init directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the state documents.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) loadWatermarks() (watermarkDoc, error) {
	doc := watermarkDoc{Version: documentVersion, Levels: map[string]Watermark{}}
	err := fsutil.ReadJSONStrict(filepath.Join(s.dir, WatermarkFile), &doc)
	if errors.Is(err, os.ErrNotExist) {
		return watermarkDoc{Version: documentVersion, Levels: map[string]Watermark{}}, nil
	}
	if err != nil {
		return doc, fmt.Errorf("state: read watermarks: %w", err)
	}
	if doc.Levels == nil {
		doc.Levels = map[string]Watermark{}
	}
	return doc, nil
}

func (s *FileStore) loadShadows() (shadowDoc, error) {
	doc := shadowDoc{Version: documentVersion, Levels: map[string]ShadowBuffer{}}
	err := fsutil.ReadJSONStrict(filepath.Join(s.dir, ShadowFile), &doc)
	if errors.Is(err, os.ErrNotExist) {
		return shadowDoc{Version: documentVersion, Levels: map[string]ShadowBuffer{}}, nil
	}
	if err != nil {
		return doc, fmt.Errorf("state: read shadow: %w", err)
	}
	if doc.Levels == nil {
		doc.Levels = map[string]ShadowBuffer{}
	}
	return doc, nil
}

func (s *FileStore) saveWatermarks(doc watermarkDoc) error {
	if err := fsutil.WriteJSONAtomic(filepath.Join(s.dir, WatermarkFile), doc, 0o644); err != nil {
		return fmt.Errorf("state: write watermarks: %w", err)
	}
	return nil
}

func (s *FileStore) saveShadows(doc shadowDoc) error {
	if err := fsutil.WriteJSONAtomic(filepath.Join(s.dir, ShadowFile), doc, 0o644); err != nil {
		return fmt.Errorf("state: write shadow: %w", err)
	}
	return nil
}

// Get implements WatermarkStore.
func (s *FileStore) Get(ctx context.Context, level string) (Watermark, error) {
	if err := ctx.Err(); err != nil {
		return Watermark{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadWatermarks()
	if err != nil {
		return Watermark{}, err
	}
	return doc.Levels[level], nil
}

// Set implements WatermarkStore.
func (s *FileStore) Set(ctx context.Context, level string, wm Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadWatermarks()
	if err != nil {
		return err
	}
	next, err := Advance(doc.Levels[level], wm)
	if err != nil {
		return fmt.Errorf("state: set %s: %w", level, err)
	}
	doc.Levels[level] = next
	return s.saveWatermarks(doc)
}

// AddIfAbsent implements ShadowStore. Nothing is written when no identifier is new.
func (s *FileStore) AddIfAbsent(ctx context.Context, level string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadShadows()
	if err != nil {
		return 0, err
	}
	buf, ok := doc.Levels[level]
	if !ok {
		buf = EmptyBuffer()
	}
	added := buf.Add(ids)
	if added == 0 {
		return 0, nil
	}
	doc.Levels[level] = buf
	if err := s.saveShadows(doc); err != nil {
		return 0, err
	}
	return added, nil
}

// Snapshot implements ShadowStore.
func (s *FileStore) Snapshot(ctx context.Context, level string) (ShadowBuffer, error) {
	if err := ctx.Err(); err != nil {
		return ShadowBuffer{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadShadows()
	if err != nil {
		return ShadowBuffer{}, err
	}
	buf, ok := doc.Levels[level]
	if !ok {
		return EmptyBuffer(), nil
	}
	if buf.Identifiers == nil {
		buf.Identifiers = []string{}
	}
	return buf, nil
}

// Reset implements ShadowStore.
func (s *FileStore) Reset(ctx context.Context, level string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadShadows()
	if err != nil {
		return err
	}
	buf := EmptyBuffer()
	buf.UpdatedAt = timeNow().UTC()
	doc.Levels[level] = buf
	return s.saveShadows(doc)
}

// SetDraft implements ShadowStore.
func (s *FileStore) SetDraft(ctx context.Context, level string, d Draft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadShadows()
	if err != nil {
		return err
	}
	buf, ok := doc.Levels[level]
	if !ok {
		buf = EmptyBuffer()
	}
	buf.Draft = d
	buf.UpdatedAt = timeNow().UTC()
	doc.Levels[level] = buf
	return s.saveShadows(doc)
}

// Close implements Store. The file store holds no open handles.
func (s *FileStore) Close() error { return nil }

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and by callers that don't
// need persistence. Documents are deep-copied on the way in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Doc
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Doc)}
}

// Get retrieves one document.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

// List retrieves all documents in a collection.
func (s *MemoryStore) List(_ context.Context, collection string) (map[string]Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Doc, len(s.data[collection]))
	for id, doc := range s.data[collection] {
		out[id] = copyDoc(doc)
	}
	return out, nil
}

// Set writes a document, merging when requested.
func (s *MemoryStore) Set(_ context.Context, collection, id string, data Doc, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(collection, id, data, merge)
	return nil
}

// Update applies dotted field-path updates to an existing document.
func (s *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(collection, id, fields)
}

// Delete removes a document; removing a missing one is not an error.
func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], id)
	return nil
}

// BatchCommit applies every operation or none: ops are validated against a
// copy of the data first, then the copy replaces the live map.
func (s *MemoryStore) BatchCommit(_ context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.copyAll()
	restore := s.data
	s.data = staged
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpSet:
			s.set(op.Collection, op.ID, op.Data, op.Merge)
		case OpUpdate:
			err = s.update(op.Collection, op.ID, op.Fields)
		case OpDelete:
			delete(s.data[op.Collection], op.ID)
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			s.data = restore
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) set(collection, id string, data Doc, merge bool) {
	col := s.data[collection]
	if col == nil {
		col = make(map[string]Doc)
		s.data[collection] = col
	}
	doc := copyDoc(data)
	if existing, ok := col[id]; ok && merge {
		merged := copyDoc(existing)
		mergeDoc(merged, doc)
		doc = merged
	}
	col[id] = doc
}

func (s *MemoryStore) update(collection, id string, fields map[string]any) error {
	doc, ok := s.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	updated := copyDoc(doc)
	for path, value := range fields {
		applyFieldPath(updated, path, value)
	}
	s.data[collection][id] = updated
	return nil
}

func (s *MemoryStore) copyAll() map[string]map[string]Doc {
	out := make(map[string]map[string]Doc, len(s.data))
	for collection, docs := range s.data {
		col := make(map[string]Doc, len(docs))
		for id, doc := range docs {
			col[id] = copyDoc(doc)
		}
		out[collection] = col
	}
	return out
}

// copyDoc deep-copies a document via a JSON round trip; document bodies are
// JSON-shaped by construction.
func copyDoc(doc Doc) Doc {
	raw, err := json.Marshal(doc)
	if err != nil {
		// Non-JSON values cannot enter through the public API.
		panic(fmt.Sprintf("store: unencodable document: %v", err))
	}
	var out Doc
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("store: undecodable document: %v", err))
	}
	return out
}

// Package store provides the document store backing the collection/deck
// manager: keyed JSON documents grouped into collections, with merge writes,
// dotted field-path updates, and atomic multi-document batch commits.
package store

import (
	"context"
	"errors"
	"strings"
)

// Collection names used by the pipeline.
const (
	Stacks = "stacks"
	Decks  = "decks"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Doc is a decoded document body.
type Doc = map[string]any

// OpKind enumerates batch operation types.
type OpKind int

const (
	// OpSet writes a document, optionally merging into an existing one.
	OpSet OpKind = iota
	// OpUpdate applies dotted field-path updates to an existing document.
	OpUpdate
	// OpDelete removes a document.
	OpDelete
)

// Op is one operation inside an atomic batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string

	// Data is the document body for OpSet.
	Data Doc

	// Merge makes OpSet merge into the existing document instead of
	// replacing it.
	Merge bool

	// Fields maps dotted field paths to new values for OpUpdate, e.g.
	// "cards.u42.count" -> 3.
	Fields map[string]any
}

// SetOp builds an OpSet.
func SetOp(collection, id string, data Doc, merge bool) Op {
	return Op{Kind: OpSet, Collection: collection, ID: id, Data: data, Merge: merge}
}

// UpdateOp builds an OpUpdate.
func UpdateOp(collection, id string, fields map[string]any) Op {
	return Op{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields}
}

// DeleteOp builds an OpDelete.
func DeleteOp(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}

// Store is the document store consumed by the pipeline. BatchCommit applies
// all operations or none for a given attempt.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	List(ctx context.Context, collection string) (map[string]Doc, error)
	Set(ctx context.Context, collection, id string, data Doc, merge bool) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	BatchCommit(ctx context.Context, ops []Op) error
	Close() error
}

// mergeDoc deep-merges src into dst: nested maps merge recursively, any
// other value replaces.
func mergeDoc(dst, src Doc) {
	for key, val := range src {
		if srcMap, ok := val.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				mergeDoc(dstMap, srcMap)
				continue
			}
		}
		dst[key] = val
	}
}

// applyFieldPath sets a dotted field path inside a document, creating
// intermediate maps as needed.
func applyFieldPath(doc Doc, path string, value any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

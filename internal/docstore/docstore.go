// Package docstore defines the document store the habit repository talks
// to. Backends live in the sub-packages; each one supports owner-scoped
// equality filters, range filters, ordering, limits and push
// subscriptions.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned by Get and Update when the document is missing.
var ErrNotFound = errors.New("document not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("document store closed")

// ErrConflict is returned by Add when the document violates a unique index.
var ErrConflict = errors.New("document conflicts with an existing one")

// Data is a document body. Values are strings, integers, floats or bools.
type Data map[string]any

// Clone returns a shallow copy of d.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Document is a stored document with its id.
type Document struct {
	ID   string
	Data Data
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual     Op = "=="
	OpLess      Op = "<"
	OpLessEq    Op = "<="
	OpGreater   Op = ">"
	OpGreaterEq Op = ">="
)

// Filter restricts a query to documents whose field compares to value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter { return Filter{Field: field, Op: OpEqual, Value: value} }

// Order sorts query results by a field.
type Order struct {
	Field      string
	Descending bool
}

// Query selects documents from one collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	// Limit caps the number of results; zero means no limit.
	Limit int
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the query shape. SQL backends interpolate field names, so
// only plain identifiers are accepted.
func (q Query) Validate() error {
	if !fieldPattern.MatchString(q.Collection) {
		return fmt.Errorf("invalid collection name %q", q.Collection)
	}
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
		switch f.Op {
		case OpEqual, OpLess, OpLessEq, OpGreater, OpGreaterEq:
		default:
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	for _, o := range q.OrderBy {
		if !fieldPattern.MatchString(o.Field) {
			return fmt.Errorf("invalid order field %q", o.Field)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// ValidField reports whether name is usable as a collection or field name.
func ValidField(name string) bool { return fieldPattern.MatchString(name) }

// Snapshot is one delivery of a subscription. ReadAt is taken just before
// the query runs. Backends whose listeners already deliver in commit order
// leave it zero.
type Snapshot struct {
	Docs   []Document
	ReadAt time.Time
}

// Unsubscribe stops a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Store is the document store contract.
type Store interface {
	// Add inserts a document and returns its store-assigned id.
	Add(ctx context.Context, collection string, data Data) (string, error)
	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns the documents matching q.
	Query(ctx context.Context, q Query) ([]Document, error)
	// Update merges patch into an existing document or returns ErrNotFound.
	Update(ctx context.Context, collection, id string, patch Data) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Subscribe pushes the full result of q to onChange now and after
	// every change to the collection until the returned func is called.
	// Deliveries for one subscription never overlap and arrive in the order
	// their queries ran. onChange may read from the store but must not
	// write to it.
	Subscribe(ctx context.Context, q Query, onChange func(Snapshot), onError func(error)) (Unsubscribe, error)
	Close() error
}

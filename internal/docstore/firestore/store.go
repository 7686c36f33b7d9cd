// Package firestore backs the docstore with Cloud Firestore. Subscriptions
// use Firestore's own realtime snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/julianstephens/habitcoach/internal/docstore"
	"github.com/julianstephens/habitcoach/internal/logger"
)

// Config selects the Firebase project. CredentialsFile may be empty when
// application default credentials or the emulator are used.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

type Store struct {
	client *firestore.Client

	mu      sync.Mutex
	closed  bool
	cancels map[int]context.CancelFunc
	next    int
	wg      sync.WaitGroup
}

// New connects through a Firebase app so auth and storage share one
// project configuration.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client, cancels: make(map[int]context.CancelFunc)}
}

func (s *Store) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	return err
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Data) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]any(data))
	if err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := s.ready(); err != nil {
		return docstore.Document{}, err
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if err := mapErr(err); errors.Is(err, docstore.ErrNotFound) {
			return docstore.Document{}, err
		}
		return docstore.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return docstore.Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (s *Store) query(q docstore.Query) (firestore.Query, error) {
	if err := q.Validate(); err != nil {
		return firestore.Query{}, err
	}
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	for _, o := range q.OrderBy {
		dir := firestore.Asc
		if o.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

func toDocuments(snaps []*firestore.DocumentSnapshot) []docstore.Document {
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, docstore.Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return toDocuments(snaps), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Data) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}
	updates := make([]firestore.Update, 0, len(patch))
	for k, v := range patch {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if err := mapErr(err); errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Subscribe waits for the first snapshot so the initial result is
// delivered before it returns, then follows changes in a goroutine. The
// listener already delivers in commit order, so snapshots carry no ReadAt.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onChange func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	it := fq.Snapshots(subCtx)
	first, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	initial, err := first.Documents.GetAll()
	if err != nil {
		it.Stop()
		cancel()
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	s.mu.Lock()
	id := s.next
	s.next++
	s.cancels[id] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	onChange(docstore.Snapshot{Docs: toDocuments(initial)})

	go func() {
		defer s.wg.Done()
		defer it.Stop()
		log := logger.Component("firestore")
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				log.Warn("snapshot listener failed", "collection", q.Collection, "error", err)
				if onError != nil {
					onError(err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			onChange(docstore.Snapshot{Docs: toDocuments(docs)})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
			cancel()
		})
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return s.client.Close()
}

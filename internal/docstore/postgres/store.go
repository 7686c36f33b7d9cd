// Package postgres stores documents as JSONB and fans changes out across
// processes with LISTEN/NOTIFY.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	"github.com/julianstephens/habitcoach/internal/logger"
	"github.com/julianstephens/habitcoach/internal/migration"
	"github.com/julianstephens/habitcoach/migrations"
)

type Store struct {
	connStr string
	db      *sql.DB
	hub     *docstore.Hub

	mu       sync.Mutex
	listener *pq.Listener
	stop     chan struct{}
	done     chan struct{}
}

func New(connStr string) *Store {
	s := &Store{connStr: withSearchPath(connStr)}
	s.hub = docstore.NewHub(s.Query)
	return s
}

// NewWithDB wraps an open connection. No listener is started, so change
// notifications are delivered in-process only.
func NewWithDB(db *sql.DB) *Store {
	s := &Store{db: db}
	s.hub = docstore.NewHub(s.Query)
	return s
}

// Init creates the schema, applies migrations and starts the listener.
func (s *Store) Init() error {
	if err := s.open(); err != nil {
		return err
	}
	if _, err := s.db.Exec("CREATE SCHEMA IF NOT EXISTS " + constants.AppName); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	runner, err := s.runner()
	if err != nil {
		return err
	}
	if _, err := runner.Apply(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return s.listen()
}

// Load connects to an initialised database, validates the schema version
// and starts the listener.
func (s *Store) Load() error {
	if err := s.open(); err != nil {
		return err
	}
	runner, err := s.runner()
	if err != nil {
		return err
	}
	if err := runner.ValidateVersion(); err != nil {
		return err
	}
	return s.listen()
}

func (s *Store) open() error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.connStr) {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) runner() (*migration.Runner, error) {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	return migration.NewRunner(s.db, subFS, migration.DriverPostgres), nil
}

func (s *Store) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	log := logger.Component("postgres")
	l := pq.NewListener(s.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("listener event", "event", ev, "error", err)
		}
	})
	if err := l.Listen(constants.PostgresNotifyChannel); err != nil {
		l.Close()
		return fmt.Errorf("failed to listen on %s: %w", constants.PostgresNotifyChannel, err)
	}

	s.listener = l
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.forward(l, s.stop, s.done)
	return nil
}

// forward turns notifications into hub re-runs. A nil notification means
// the connection was re-established and events may have been missed.
func (s *Store) forward(l *pq.Listener, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			collection := ""
			if n != nil {
				collection = n.Extra
			}
			s.hub.Notify(context.Background(), collection)
		case <-ticker.C:
			go l.Ping()
		}
	}
}

func (s *Store) ready() error {
	if s.db == nil {
		return docstore.ErrClosed
	}
	return nil
}

// changed announces a committed write. Without a listener the hub is
// notified directly.
func (s *Store) changed(ctx context.Context, collection string) {
	if _, err := s.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", constants.PostgresNotifyChannel, collection); err != nil {
		logger.Warn("failed to publish change notification", "collection", collection, "error", err)
	}
	s.mu.Lock()
	listening := s.listener != nil
	s.mu.Unlock()
	if !listening {
		s.hub.Notify(ctx, collection)
	}
}

func (s *Store) Add(ctx context.Context, collection string, data docstore.Data) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if !docstore.ValidField(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}

	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)",
		collection, id, string(body)); err != nil {
		if isUniqueViolation(err) {
			return "", docstore.ErrConflict
		}
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	s.changed(ctx, collection)
	return id, nil
}

// isUniqueViolation matches SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := s.ready(); err != nil {
		return docstore.Document{}, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2", collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	data, err := decode(body)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{ID: id, Data: data}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data, err := decode(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: id, Data: data})
	}
	return docs, rows.Err()
}

func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Data) error {
	if err := s.ready(); err != nil {
		return err
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = data || $1::jsonb, updated_at = now() WHERE collection = $2 AND id = $3",
		string(body), collection, id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}

	s.changed(ctx, collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.changed(ctx, collection)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, onChange func(docstore.Snapshot), onError func(error)) (docstore.Unsubscribe, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, q, onChange, onError)
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.listener != nil {
		close(s.stop)
		<-s.done
		s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()

	s.hub.Close()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func decode(body []byte) (docstore.Data, error) {
	var data docstore.Data
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return data, nil
}

// buildQuery translates q into SQL with $n placeholders. Numeric and bool
// filter values compare against a cast of the JSON text; everything else
// compares as text.
func buildQuery(q docstore.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		args = append(args, f.Value)
		expr := "data->>'" + f.Field + "'"
		switch v := f.Value.(type) {
		case bool:
			expr = "(" + expr + ")::boolean"
		case string:
		default:
			if docstore.IsNumeric(v) {
				expr = "(" + expr + ")::numeric"
			} else {
				args[len(args)-1] = fmt.Sprint(v)
			}
		}
		fmt.Fprintf(&b, " AND %s %s $%d", expr, sqlOp(f.Op), len(args))
	}

	b.WriteString(" ORDER BY ")
	for _, o := range q.OrderBy {
		b.WriteString("data->'" + o.Field + "'")
		if o.Descending {
			b.WriteString(" DESC")
		}
		b.WriteString(", ")
	}
	b.WriteString("id")

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args, nil
}

func sqlOp(op docstore.Op) string {
	if op == docstore.OpEqual {
		return "="
	}
	return string(op)
}

// SchemaVersion returns the applied and the latest known schema version.
func (s *Store) SchemaVersion() (current, latest int, err error) {
	if err := s.ready(); err != nil {
		return 0, 0, err
	}
	runner, err := s.runner()
	if err != nil {
		return 0, 0, err
	}
	if current, err = runner.CurrentVersion(); err != nil {
		return 0, 0, err
	}
	if latest, err = runner.LatestVersion(); err != nil {
		return 0, 0, err
	}
	return current, latest, nil
}

package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/docstore"
	"github.com/julianstephens/habitcoach/internal/docstore/memory"
	apperr "github.com/julianstephens/habitcoach/internal/errors"
	"github.com/julianstephens/habitcoach/internal/models"
)

// faultyStore injects failures into an in-memory docstore.
type faultyStore struct {
	docstore.Store

	mu          sync.Mutex
	deleteFails map[string]int // collection -> remaining failures, -1 for always
	deleteCalls map[string]int
	queryErr    error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:       memory.New(),
		deleteFails: make(map[string]int),
		deleteCalls: make(map[string]int),
	}
}

func (f *faultyStore) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	f.deleteCalls[collection]++
	n := f.deleteFails[collection]
	if n > 0 {
		f.deleteFails[collection] = n - 1
	}
	f.mu.Unlock()
	if n != 0 {
		return errors.New("backend unavailable")
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f *faultyStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	f.mu.Lock()
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, q)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func setupRepository(t *testing.T, docs docstore.Store) (*Repository, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	repo := New(docs, Config{
		Location:      time.UTC,
		Now:           c.Now,
		DeleteBackoff: time.Millisecond,
	})
	return repo, c
}

func mustCreate(t *testing.T, repo *Repository, owner, name string) string {
	t.Helper()
	id, err := repo.CreateHabit(context.Background(), owner, name, "")
	if err != nil {
		t.Fatalf("CreateHabit(%q) failed: %v", name, err)
	}
	return id
}

func TestCreateHabitValidation(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())

	tests := []struct {
		name  string
		owner string
		habit string
		field string
	}{
		{"empty name", "u1", "", "name"},
		{"whitespace name", "u1", "   ", "name"},
		{"long name", "u1", strings.Repeat("x", 121), "name"},
		{"no owner", "", "Read", "owner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.CreateHabit(context.Background(), tt.owner, tt.habit, "")
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var verr *apperr.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestCreateAndListHabits(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())
	ctx := context.Background()

	mustCreate(t, repo, "u1", "  Read  ")
	mustCreate(t, repo, "u1", "Walk")
	mustCreate(t, repo, "u2", "Swim")

	habits, err := repo.ListHabits(ctx, "u1")
	if err != nil {
		t.Fatalf("ListHabits failed: %v", err)
	}
	if len(habits) != 2 {
		t.Fatalf("expected 2 habits, got %d", len(habits))
	}
	if habits[0].Name != "Read" || habits[1].Name != "Walk" {
		t.Errorf("expected trimmed names in creation order, got %q, %q", habits[0].Name, habits[1].Name)
	}
	if habits[0].CreatedAt.IsZero() || !habits[0].CreatedAt.Before(habits[1].CreatedAt) {
		t.Errorf("unexpected createdAt values %v, %v", habits[0].CreatedAt, habits[1].CreatedAt)
	}
}

func TestOwnerScoping(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	if _, err := repo.GetHabit(ctx, "u2", id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for other owner, got %v", err)
	}
	name := "Hijack"
	if err := repo.UpdateHabit(ctx, "u2", id, models.HabitPatch{Name: &name}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on foreign update, got %v", err)
	}
	if err := repo.DeleteHabit(ctx, "u2", id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on foreign delete, got %v", err)
	}
	if err := repo.MarkComplete(ctx, "u2", id, "2024-03-10"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on foreign completion, got %v", err)
	}
}

func TestUpdateFields(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	for _, field := range []string{"id", constants.FieldOwnerID, constants.FieldCreatedAt, "color"} {
		err := repo.UpdateFields(ctx, "u1", id, map[string]any{field: "x"})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("field %s: expected validation error, got %v", field, err)
		}
	}

	if err := repo.UpdateFields(ctx, "u1", id, map[string]any{constants.FieldName: "Read more", constants.FieldCachedStreak: 2}); err != nil {
		t.Fatalf("UpdateFields failed: %v", err)
	}
	h, _ := repo.GetHabit(ctx, "u1", id)
	if h.Name != "Read more" || h.CachedStreak != 2 {
		t.Errorf("unexpected habit after update: %+v", h)
	}

	empty := " "
	if err := repo.UpdateHabit(ctx, "u1", id, models.HabitPatch{Name: &empty}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
}

func TestMarkCompleteIsIdempotent(t *testing.T) {
	docs := memory.New()
	repo, _ := setupRepository(t, docs)
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	for i := 0; i < 3; i++ {
		if err := repo.MarkComplete(ctx, "u1", id, "2024-03-10"); err != nil {
			t.Fatalf("MarkComplete #%d failed: %v", i, err)
		}
	}
	if n := docs.Count(constants.CollectionCompletions); n != 1 {
		t.Errorf("expected exactly one completion, got %d", n)
	}

	if err := repo.MarkIncomplete(ctx, "u1", id, "2024-03-10"); err != nil {
		t.Fatalf("MarkIncomplete failed: %v", err)
	}
	if err := repo.MarkIncomplete(ctx, "u1", id, "2024-03-10"); err != nil {
		t.Errorf("second MarkIncomplete should be a no-op, got %v", err)
	}
	if n := docs.Count(constants.CollectionCompletions); n != 0 {
		t.Errorf("expected no completions, got %d", n)
	}
}

// blindStore hides existing completions from queries, so MarkComplete's
// existence check misses a record another writer just inserted.
type blindStore struct {
	docstore.Store
}

func (b blindStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if q.Collection == constants.CollectionCompletions {
		return nil, nil
	}
	return b.Store.Query(ctx, q)
}

func TestMarkCompleteLosesInsertRace(t *testing.T) {
	docs := memory.New(memory.Unique(constants.CollectionCompletions, constants.FieldHabitID, constants.FieldDay))
	repo, _ := setupRepository(t, blindStore{docs})
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	if err := repo.MarkComplete(ctx, "u1", id, "2024-03-10"); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkComplete(ctx, "u1", id, "2024-03-10"); err != nil {
		t.Errorf("a duplicate rejected by the unique index should count as done, got %v", err)
	}
	if n := docs.Count(constants.CollectionCompletions); n != 1 {
		t.Errorf("expected exactly one completion, got %d", n)
	}
}

func TestValidatePatch(t *testing.T) {
	long := strings.Repeat("y", 121)
	blank := "   "
	padded := "  Read  "
	tooLongDesc := strings.Repeat("d", 1001)

	tests := []struct {
		name  string
		patch models.HabitPatch
		field string
	}{
		{"long name", models.HabitPatch{Name: &long}, "name"},
		{"blank name", models.HabitPatch{Name: &blank}, "name"},
		{"long description", models.HabitPatch{Description: &tooLongDesc}, "description"},
		{"valid", models.HabitPatch{Name: &padded}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.patch
			err := ValidatePatch(&p)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if *p.Name != "Read" {
					t.Errorf("name not trimmed: %q", *p.Name)
				}
				return
			}
			var verr *apperr.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("expected validation error on %q, got %v", tt.field, err)
			}
		})
	}

	if err := ValidateHabit(strings.Repeat("x", 121), ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("ValidateHabit accepted a 121 character name")
	}
	if err := ValidateHabit("Read", ""); err != nil {
		t.Errorf("ValidateHabit rejected a valid habit: %v", err)
	}
}

func TestMarkCompleteRejectsBadInput(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())
	ctx := context.Background()

	if err := repo.MarkComplete(ctx, "u1", "missing", "2024-03-10"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for missing habit, got %v", err)
	}
	id := mustCreate(t, repo, "u1", "Read")
	if err := repo.MarkComplete(ctx, "u1", id, "03/10/2024"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for bad day, got %v", err)
	}
}

func TestQueryCompletionsRange(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	for _, day := range []string{"2024-03-01", "2024-03-05", "2024-03-09", "2024-03-10"} {
		if err := repo.MarkComplete(ctx, "u1", id, day); err != nil {
			t.Fatal(err)
		}
	}

	records, err := repo.QueryCompletions(ctx, "u1", id, "2024-03-05", "2024-03-09")
	if err != nil {
		t.Fatalf("QueryCompletions failed: %v", err)
	}
	if len(records) != 2 || records[0].Day != "2024-03-05" || records[1].Day != "2024-03-09" {
		t.Errorf("unexpected records %+v", records)
	}

	all, err := repo.OwnerCompletions(ctx, "u1", "", "")
	if err != nil || len(all) != 4 {
		t.Errorf("OwnerCompletions = (%d, %v), want 4", len(all), err)
	}
}

func TestDeleteHabitCascades(t *testing.T) {
	docs := memory.New()
	repo, _ := setupRepository(t, docs)
	ctx := context.Background()

	keep := mustCreate(t, repo, "u1", "Keep")
	drop := mustCreate(t, repo, "u1", "Drop")
	for _, day := range []string{"2024-03-08", "2024-03-09"} {
		if err := repo.MarkComplete(ctx, "u1", drop, day); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.MarkComplete(ctx, "u1", keep, "2024-03-09"); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteHabit(ctx, "u1", drop); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := repo.GetHabit(ctx, "u1", drop); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("habit should be gone, got %v", err)
	}
	remaining, _ := repo.OwnerCompletions(ctx, "u1", "", "")
	if len(remaining) != 1 || remaining[0].HabitID != keep {
		t.Errorf("expected only the kept habit's completion, got %+v", remaining)
	}
}

func TestDeleteHabitRetries(t *testing.T) {
	docs := newFaultyStore()
	repo, _ := setupRepository(t, docs)
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	docs.deleteFails[constants.CollectionHabits] = 2
	if err := repo.DeleteHabit(ctx, "u1", id); err != nil {
		t.Fatalf("DeleteHabit should succeed after retries: %v", err)
	}
	if got := docs.deleteCalls[constants.CollectionHabits]; got != 3 {
		t.Errorf("expected 3 delete attempts, got %d", got)
	}
}

func TestDeleteHabitPartialFailure(t *testing.T) {
	docs := newFaultyStore()
	repo, _ := setupRepository(t, docs)
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")
	for _, day := range []string{"2024-03-08", "2024-03-09", "2024-03-10"} {
		if err := repo.MarkComplete(ctx, "u1", id, day); err != nil {
			t.Fatal(err)
		}
	}
	if st, err := repo.RecomputeStreak(ctx, "u1", id, time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)); err != nil || st.Current != 3 {
		t.Fatalf("RecomputeStreak = (%+v, %v), want current 3", st, err)
	}

	docs.deleteFails[constants.CollectionHabits] = -1
	err := repo.DeleteHabit(ctx, "u1", id)

	var berr *apperr.BackendError
	if !errors.As(err, &berr) || !berr.Partial {
		t.Fatalf("expected partial backend error, got %v", err)
	}
	if got := docs.deleteCalls[constants.CollectionHabits]; got != int(constants.DeleteMaxRetries)+1 {
		t.Errorf("expected %d attempts, got %d", constants.DeleteMaxRetries+1, got)
	}
	// The habit survives without completions; nothing is orphaned.
	h, err := repo.GetHabit(ctx, "u1", id)
	if err != nil {
		t.Fatalf("habit should still exist: %v", err)
	}
	if h.CachedStreak != 0 {
		t.Errorf("cachedStreak = %d with no completions left, want 0", h.CachedStreak)
	}
	if left, _ := repo.QueryCompletions(ctx, "u1", id, "", ""); len(left) != 0 {
		t.Errorf("completions should be deleted, got %d", len(left))
	}
}

func TestRecomputeStreak(t *testing.T) {
	repo, _ := setupRepository(t, memory.New())
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")
	asOf := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	for _, day := range []string{"2024-03-06", "2024-03-08", "2024-03-09"} {
		if err := repo.MarkComplete(ctx, "u1", id, day); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.RecomputeStreak(ctx, "u1", id, asOf)
	if err != nil {
		t.Fatalf("RecomputeStreak failed: %v", err)
	}
	if stats.Current != 2 || stats.Longest != 2 || stats.CompletedToday {
		t.Errorf("unexpected stats %+v", stats)
	}
	h, _ := repo.GetHabit(ctx, "u1", id)
	if h.CachedStreak != 2 {
		t.Errorf("cachedStreak not written back, got %d", h.CachedStreak)
	}
}

func TestRecomputeStreakWindowBound(t *testing.T) {
	docs := memory.New()
	c := &clock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	repo := New(docs, Config{Location: time.UTC, Now: c.Now, WindowDays: 3})
	ctx := context.Background()
	id := mustCreate(t, repo, "u1", "Read")

	for _, day := range []string{"2024-03-06", "2024-03-07", "2024-03-08", "2024-03-09", "2024-03-10"} {
		if err := repo.MarkComplete(ctx, "u1", id, day); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.RecomputeStreak(ctx, "u1", id, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RecomputeStreak failed: %v", err)
	}
	if stats.Current != 3 || !stats.WindowBound {
		t.Errorf("expected a window-bound streak of 3, got %+v", stats)
	}
}

func TestCompletionDatesError(t *testing.T) {
	docs := newFaultyStore()
	repo, _ := setupRepository(t, docs)
	docs.queryErr = errors.New("offline")

	set, err := repo.CompletionDates(context.Background(), "u1", "h1", 30, time.Now())
	if !errors.Is(err, apperr.ErrBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("expected empty set, got %d days", set.Len())
	}
}

func TestSubscribeMergesCompletions(t *testing.T) {
	docs := memory.New()
	repo, _ := setupRepository(t, docs)
	ctx := context.Background()
	read := mustCreate(t, repo, "u1", "Read")

	var mu sync.Mutex
	var last []models.HabitSnapshot
	var readAt []time.Time
	deliveries := 0
	unsub, err := repo.Subscribe(ctx, "u1", "2024-03-10", func(s models.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s.Habits
		readAt = append(readAt, s.ReadAt)
		deliveries++
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	mu.Lock()
	if deliveries != 1 || len(last) != 1 || last[0].CompletedToday {
		t.Errorf("unexpected initial delivery %+v", last)
	}
	mu.Unlock()

	if err := repo.MarkComplete(ctx, "u1", read, "2024-03-10"); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkComplete(ctx, "u1", read, "2024-03-09"); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, repo, "u2", "Not mine")

	mu.Lock()
	if len(last) != 1 || !last[0].CompletedToday {
		t.Errorf("expected Read completed today, got %+v", last)
	}
	for i, at := range readAt {
		if at.IsZero() {
			t.Errorf("delivery %d has no read time", i)
		}
		if i > 0 && at.Before(readAt[i-1]) {
			t.Errorf("delivery %d read before delivery %d", i, i-1)
		}
	}
	mu.Unlock()

	unsub()
	unsub()
	if n := docs.Subscriptions(); n != 0 {
		t.Errorf("expected no live subscriptions, got %d", n)
	}
}

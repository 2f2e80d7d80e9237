package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jofan-cah/logistik-core/internal/api"
	"github.com/jofan-cah/logistik-core/internal/core/apperror"
)

type record struct {
	ID   int64
	Name string
}

func (r record) Key() int64 { return r.ID }

type recordQuery struct {
	Search string
}

type recordCreate struct {
	Name string
}

type recordPatch struct {
	Name string
}

// fakeCollection is an in-memory backend with backend-shaped pagination.
type fakeCollection struct {
	mu      sync.Mutex
	records []record
	nextID  int64

	listCalls int
	failList  error
	failOp    error

	// listGate, when set, blocks List after reading state until released;
	// listEntered reports the block. Lets a test interleave a mutation
	// while a fetch is in flight.
	listGate    chan struct{}
	listEntered chan struct{}
}

func newFakeCollection(count int) *fakeCollection {
	f := &fakeCollection{}
	for i := 0; i < count; i++ {
		f.nextID++
		f.records = append(f.records, record{ID: f.nextID, Name: fmt.Sprintf("record-%02d", f.nextID)})
	}
	return f
}

func (f *fakeCollection) List(_ context.Context, q recordQuery, page, limit int) (api.Page[record], error) {
	f.mu.Lock()
	f.listCalls++
	if f.failList != nil {
		err := f.failList
		f.failList = nil
		f.mu.Unlock()
		return api.Page[record]{}, err
	}
	var matched []record
	for _, r := range f.records {
		if q.Search == "" || strings.Contains(r.Name, q.Search) {
			matched = append(matched, r)
		}
	}
	gate, entered := f.listGate, f.listEntered
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages < 1 {
		totalPages = 1
	}
	return api.Page[record]{
		Items: matched[start:end],
		Pagination: api.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}, nil
}

func (f *fakeCollection) Create(_ context.Context, in recordCreate) (record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOp != nil {
		err := f.failOp
		f.failOp = nil
		return record{}, err
	}
	f.nextID++
	r := record{ID: f.nextID, Name: in.Name}
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeCollection) Update(_ context.Context, id int64, patch recordPatch) (record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOp != nil {
		err := f.failOp
		f.failOp = nil
		return record{}, err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Name = patch.Name
			return f.records[i], nil
		}
	}
	return record{}, apperror.NewNotFound("record", id)
}

func (f *fakeCollection) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOp != nil {
		err := f.failOp
		f.failOp = nil
		return err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return apperror.NewNotFound("record", id)
}

func (f *fakeCollection) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func newTestStore(coll *fakeCollection, pageSize int) *Store[record, recordQuery, recordCreate, recordPatch] {
	return New[record, recordQuery, recordCreate, recordPatch]("records", coll, pageSize)
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("loads a page with backend pagination", func(t *testing.T) {
		coll := newFakeCollection(21)
		s := newTestStore(coll, 10)

		require.NoError(t, s.Fetch(ctx))
		assert.Len(t, s.Items(), 10)
		assert.Equal(t, 1, s.Page())
		assert.Equal(t, 3, s.TotalPages())
		assert.Equal(t, int64(21), s.TotalItems())
		assert.Equal(t, StateSuccess, s.State())

		require.NoError(t, s.FetchPage(ctx, 3))
		assert.Len(t, s.Items(), 1)
		assert.Equal(t, 3, s.Page())
	})

	t.Run("failure keeps previous items visible", func(t *testing.T) {
		coll := newFakeCollection(5)
		s := newTestStore(coll, 10)
		require.NoError(t, s.Fetch(ctx))

		coll.failList = apperror.NewNetwork(errors.New("dial tcp: connection refused"))
		err := s.Refresh(ctx)
		require.Error(t, err)

		assert.Len(t, s.Items(), 5, "a failed refresh must not blank the list")
		assert.Equal(t, StateError, s.State())
		require.NotNil(t, s.Err())
		assert.Equal(t, apperror.CodeNetwork, s.Err().Code)

		s.ClearError()
		assert.Nil(t, s.Err())
		assert.Equal(t, StateIdle, s.State())
	})

	t.Run("non-domain list error is wrapped as internal", func(t *testing.T) {
		coll := newFakeCollection(0)
		s := newTestStore(coll, 10)
		coll.failList = errors.New("boom")

		require.Error(t, s.Fetch(ctx))
		require.NotNil(t, s.Err())
		assert.Equal(t, apperror.CodeInternal, s.Err().Code)
	})

	t.Run("stale response loses to a newer change", func(t *testing.T) {
		coll := newFakeCollection(3)
		s := newTestStore(coll, 10)
		require.NoError(t, s.Fetch(ctx))

		gate := make(chan struct{})
		entered := make(chan struct{}, 1)
		coll.mu.Lock()
		coll.listGate = gate
		coll.listEntered = entered
		coll.mu.Unlock()

		done := make(chan error, 1)
		go func() { done <- s.Refresh(ctx) }()
		<-entered

		// The mutation applies while the slow fetch is still in flight.
		coll.mu.Lock()
		coll.listGate = nil
		coll.listEntered = nil
		coll.mu.Unlock()
		require.NoError(t, s.Remove(ctx, 2))
		assert.Len(t, s.Items(), 2)

		close(gate)
		require.NoError(t, <-done)

		// The slow response carried the pre-delete snapshot; it must not win.
		assert.Len(t, s.Items(), 2)
		assert.Equal(t, int64(2), s.TotalItems())
	})
}

func TestSetFilters(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection(21)
	s := newTestStore(coll, 10)

	require.NoError(t, s.FetchPage(ctx, 3))
	require.Equal(t, 3, s.Page())

	require.NoError(t, s.SetFilters(ctx, recordQuery{Search: "record-2"}))
	assert.Equal(t, 1, s.Page(), "filter changes restart pagination")
	// record-20 and record-21 match.
	assert.Len(t, s.Items(), 2)
	assert.Equal(t, "record-2", s.Filters().Search)

	// Clearing filters is a full replacement, not a merge.
	require.NoError(t, s.SetFilters(ctx, recordQuery{}))
	assert.Equal(t, int64(21), s.TotalItems())
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("prepends on page 1 without refetching", func(t *testing.T) {
		coll := newFakeCollection(10)
		s := newTestStore(coll, 10)
		require.NoError(t, s.Fetch(ctx))
		callsBefore := coll.calls()

		created, err := s.Create(ctx, recordCreate{Name: "fresh"})
		require.NoError(t, err)

		items := s.Items()
		require.NotEmpty(t, items)
		assert.Equal(t, created.ID, items[0].ID, "new record goes to the head of page 1")
		assert.Equal(t, int64(11), s.TotalItems())
		assert.Equal(t, 2, s.TotalPages())
		assert.Equal(t, callsBefore, coll.calls(), "page 1 create needs no round trip")
	})

	t.Run("refetches when not on page 1", func(t *testing.T) {
		coll := newFakeCollection(15)
		s := newTestStore(coll, 10)
		require.NoError(t, s.FetchPage(ctx, 2))
		callsBefore := coll.calls()

		_, err := s.Create(ctx, recordCreate{Name: "fresh"})
		require.NoError(t, err)

		assert.Equal(t, 2, s.Page())
		assert.Equal(t, int64(16), s.TotalItems())
		assert.Equal(t, callsBefore+1, coll.calls())
	})

	t.Run("validation error bypasses the store error field", func(t *testing.T) {
		coll := newFakeCollection(0)
		s := newTestStore(coll, 10)
		coll.failOp = apperror.NewFieldValidation([]apperror.FieldError{
			{Field: "name", Message: "name is required"},
		})

		_, err := s.Create(ctx, recordCreate{})
		require.Error(t, err)
		assert.True(t, apperror.IsValidation(err))

		assert.Nil(t, s.Err(), "field errors belong to the form, not the banner")
		assert.Equal(t, StateIdle, s.State())
	})

	t.Run("non-validation error lands in the error field", func(t *testing.T) {
		coll := newFakeCollection(0)
		s := newTestStore(coll, 10)
		coll.failOp = apperror.NewDuplicate("record", "code", "ABC")

		_, err := s.Create(ctx, recordCreate{Name: "dup"})
		require.Error(t, err)
		require.NotNil(t, s.Err())
		assert.Equal(t, apperror.CodeDuplicate, s.Err().Code)
		assert.Equal(t, StateError, s.State())
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection(10)
	s := newTestStore(coll, 10)
	require.NoError(t, s.Fetch(ctx))
	require.True(t, s.SetDetail(4))

	before := s.Items()
	var idx int
	for i, r := range before {
		if r.ID == 4 {
			idx = i
		}
	}

	updated, err := s.Update(ctx, 4, recordPatch{Name: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)

	after := s.Items()
	assert.Equal(t, "renamed", after[idx].Name, "update replaces in place, same index")
	assert.Len(t, after, len(before))

	detail, ok := s.Detail()
	require.True(t, ok)
	assert.Equal(t, "renamed", detail.Name, "detail record follows the update")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("drops and recounts on a non-empty page", func(t *testing.T) {
		coll := newFakeCollection(21)
		s := newTestStore(coll, 10)
		require.NoError(t, s.Fetch(ctx))
		callsBefore := coll.calls()

		require.NoError(t, s.Remove(ctx, 3))
		assert.Len(t, s.Items(), 9)
		assert.Equal(t, int64(20), s.TotalItems())
		assert.Equal(t, 2, s.TotalPages())
		assert.Equal(t, callsBefore, coll.calls(), "no refetch while the page still has items")
	})

	t.Run("corrects the page boundary when the last page empties", func(t *testing.T) {
		coll := newFakeCollection(21)
		s := newTestStore(coll, 10)
		require.NoError(t, s.FetchPage(ctx, 3))
		require.Len(t, s.Items(), 1)

		require.NoError(t, s.Remove(ctx, s.Items()[0].ID))
		assert.Equal(t, 2, s.Page(), "store steps back instead of pointing at a gone page")
		assert.Len(t, s.Items(), 10)
		assert.Equal(t, int64(20), s.TotalItems())
		assert.Equal(t, 2, s.TotalPages())
	})

	t.Run("page 1 may empty without a refetch", func(t *testing.T) {
		coll := newFakeCollection(1)
		s := newTestStore(coll, 10)
		require.NoError(t, s.Fetch(ctx))

		require.NoError(t, s.Remove(ctx, 1))
		assert.Empty(t, s.Items())
		assert.Equal(t, 1, s.Page())
		assert.Equal(t, int64(0), s.TotalItems())
		assert.Equal(t, 1, s.TotalPages())
	})

	t.Run("clears selection and detail of the removed record", func(t *testing.T) {
		coll := newFakeCollection(5)
		s := newTestStore(coll, 10)
		require.NoError(t, s.Fetch(ctx))
		s.Select(2)
		require.True(t, s.SetDetail(2))

		require.NoError(t, s.Remove(ctx, 2))
		assert.False(t, s.IsSelected(2))
		_, ok := s.Detail()
		assert.False(t, ok)
	})
}

func TestSelection(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection(15)
	s := newTestStore(coll, 10)
	require.NoError(t, s.Fetch(ctx))

	t.Run("only loaded records are selectable", func(t *testing.T) {
		s.Select(3)
		s.Select(99)
		assert.True(t, s.IsSelected(3))
		assert.False(t, s.IsSelected(99))
	})

	t.Run("select all and sorted keys", func(t *testing.T) {
		s.SelectAll()
		keys := s.SelectedKeys()
		require.Len(t, keys, 10)
		assert.Equal(t, int64(1), keys[0])
		assert.Equal(t, int64(10), keys[9])
	})

	t.Run("selection is pruned when the page changes", func(t *testing.T) {
		require.NoError(t, s.FetchPage(ctx, 2))
		assert.Empty(t, s.SelectedKeys(), "records no longer loaded drop out of the selection")
	})

	t.Run("clear selection", func(t *testing.T) {
		s.SelectAll()
		require.NotEmpty(t, s.SelectedKeys())
		s.ClearSelection()
		assert.Empty(t, s.SelectedKeys())
	})
}

func TestSetPageSize(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection(21)
	s := newTestStore(coll, 10)
	require.NoError(t, s.FetchPage(ctx, 2))

	require.NoError(t, s.SetPageSize(ctx, 5))
	assert.Equal(t, 1, s.Page())
	assert.Len(t, s.Items(), 5)
	assert.Equal(t, 5, s.TotalPages())

	err := s.SetPageSize(ctx, 0)
	require.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	coll := newFakeCollection(21)
	s := newTestStore(coll, 10)
	require.NoError(t, s.SetFilters(ctx, recordQuery{Search: "record-1"}))
	s.SelectAll()
	require.True(t, s.SetDetail(s.Items()[0].ID))

	s.Clear()
	assert.Empty(t, s.Items())
	assert.Equal(t, 1, s.Page())
	assert.Equal(t, int64(0), s.TotalItems())
	assert.Equal(t, recordQuery{}, s.Filters())
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.SelectedKeys())
	_, ok := s.Detail()
	assert.False(t, ok)
}

// Package store provides the generic client-side reflection of a remote
// paginated collection. One Store instance per screen holds a filtered
// page of records plus loading/error flags, and its mutation methods keep
// that slice coherent without re-deriving everything from a full refetch:
// create prepends on page 1 and refetches elsewhere, update replaces in
// place, delete corrects the page boundary when it empties the last page.
//
// Known race, resolved by design: a fetch and a mutation issued in close
// succession against the same instance could let a slower fetch response
// overwrite newer state. Every fetch carries a sequence number and every
// applied change advances the applied watermark, so responses older than
// the watermark are discarded instead of winning by arriving last.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/jofan-cah/logistik-core/internal/api"
	"github.com/jofan-cah/logistik-core/internal/core/apperror"
	"github.com/jofan-cah/logistik-core/pkg/logger"
)

// Entity is anything a store can hold: a record with a stable integer key.
type Entity interface {
	Key() int64
}

// Collection is the remote surface a store mutates through.
type Collection[T Entity, Q any, C any, P any] interface {
	List(ctx context.Context, q Q, page, limit int) (api.Page[T], error)
	Create(ctx context.Context, in C) (T, error)
	Update(ctx context.Context, id int64, patch P) (T, error)
	Delete(ctx context.Context, id int64) error
}

// OpState is the store's operation state machine.
type OpState string

const (
	StateIdle    OpState = "idle"
	StateLoading OpState = "loading"
	StateSuccess OpState = "success"
	StateError   OpState = "error"
)

// DefaultPageSize applies when a store is built without one.
const DefaultPageSize = 10

// Store holds one paginated, filtered slice of a remote collection.
type Store[T Entity, Q any, C any, P any] struct {
	name string
	coll Collection[T, Q, C, P]

	mu           sync.Mutex
	items        []T
	page         int
	totalPages   int
	totalItems   int64
	itemsPerPage int
	filters      Q

	state    OpState
	activeOp string
	err      *apperror.AppError

	selected map[int64]struct{}
	detail   *T

	// fetchSeq numbers issued fetches; appliedSeq is the watermark of the
	// last applied change. Fetch responses at or below the watermark are
	// stale and discarded.
	fetchSeq   uint64
	appliedSeq uint64
}

// New creates an empty store over a remote collection. The name only
// labels log lines.
func New[T Entity, Q any, C any, P any](name string, coll Collection[T, Q, C, P], pageSize int) *Store[T, Q, C, P] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Store[T, Q, C, P]{
		name:         name,
		coll:         coll,
		page:         1,
		totalPages:   1,
		itemsPerPage: pageSize,
		state:        StateIdle,
		selected:     make(map[int64]struct{}),
	}
}

// --- Reads ---

// Items returns a copy of the currently loaded page.
func (s *Store[T, Q, C, P]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Page returns the current page number.
func (s *Store[T, Q, C, P]) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// TotalPages returns the known page count.
func (s *Store[T, Q, C, P]) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPages
}

// TotalItems returns the known collection size.
func (s *Store[T, Q, C, P]) TotalItems() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalItems
}

// ItemsPerPage returns the page size.
func (s *Store[T, Q, C, P]) ItemsPerPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsPerPage
}

// Filters returns the active filter set.
func (s *Store[T, Q, C, P]) Filters() Q {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// State returns the operation state.
func (s *Store[T, Q, C, P]) State() OpState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the surfaced store error, nil when none.
func (s *Store[T, Q, C, P]) Err() *apperror.AppError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ClearError dismisses the surfaced error. Errors never auto-expire; the
// user may need time to read a multi-line backend message.
func (s *Store[T, Q, C, P]) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		s.err = nil
		s.state = StateIdle
	}
}

// --- Fetching ---

// Fetch loads the current page with the current filters.
func (s *Store[T, Q, C, P]) Fetch(ctx context.Context) error {
	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	return s.fetch(ctx, page)
}

// FetchPage loads a specific page with the current filters.
func (s *Store[T, Q, C, P]) FetchPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	return s.fetch(ctx, page)
}

// Refresh re-fetches the current page, keeping filters and position.
func (s *Store[T, Q, C, P]) Refresh(ctx context.Context) error {
	return s.Fetch(ctx)
}

// SetFilters replaces the active filter set, resets to page 1 and
// re-fetches. Filter changes always restart pagination; the result set
// composition may have changed entirely.
func (s *Store[T, Q, C, P]) SetFilters(ctx context.Context, q Q) error {
	s.mu.Lock()
	s.filters = q
	s.page = 1
	s.mu.Unlock()
	return s.fetch(ctx, 1)
}

// SetPageSize changes the page size, resets to page 1 and re-fetches.
func (s *Store[T, Q, C, P]) SetPageSize(ctx context.Context, size int) error {
	if size < 1 {
		return apperror.NewValidation("page size must be at least 1")
	}
	s.mu.Lock()
	s.itemsPerPage = size
	s.page = 1
	s.mu.Unlock()
	return s.fetch(ctx, 1)
}

func (s *Store[T, Q, C, P]) fetch(ctx context.Context, page int) error {
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.state = StateLoading
	s.activeOp = "fetch"
	s.err = nil
	q := s.filters
	limit := s.itemsPerPage
	s.mu.Unlock()

	result, err := s.coll.List(ctx, q, page, limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.appliedSeq {
		// A newer fetch or mutation already applied; this response lost
		// the race and must not overwrite fresher state.
		logger.Debug(ctx, "stale fetch response discarded",
			"store", s.name, "seq", seq, "applied", s.appliedSeq)
		return nil
	}

	if err != nil {
		// A failed refresh keeps the previous items visible instead of
		// blanking the list.
		s.failLocked(ctx, "fetch", err)
		return err
	}

	s.appliedSeq = seq
	s.items = result.Items
	s.page = result.Pagination.Page
	s.totalPages = result.Pagination.TotalPages
	s.totalItems = result.Pagination.Total
	if result.Pagination.Limit > 0 {
		s.itemsPerPage = result.Pagination.Limit
	}
	s.pruneSelectionLocked()
	s.state = StateSuccess
	s.activeOp = ""
	return nil
}

// --- Mutations ---

// Create sends the create request. On success the new record is prepended
// when the store shows page 1 (its position there is known without a round
// trip); on any other page the current page is re-fetched because the
// record's sorted position is unknown. Returns the created record.
func (s *Store[T, Q, C, P]) Create(ctx context.Context, in C) (T, error) {
	s.beginOp("create")

	record, err := s.coll.Create(ctx, in)
	if err != nil {
		var zero T
		s.finishOpErr(ctx, "create", err)
		return zero, err
	}
	return record, s.ApplyCreated(ctx, record)
}

// ApplyCreated folds an already-persisted record into the store using the
// same decision table as Create. Callers that persist through another path
// (the receipt intake pipeline) use this to keep the list coherent without
// a second create request.
func (s *Store[T, Q, C, P]) ApplyCreated(ctx context.Context, record T) error {
	s.mu.Lock()
	if s.page != 1 {
		page := s.page
		s.mu.Unlock()
		return s.fetch(ctx, page)
	}

	s.items = append([]T{record}, s.items...)
	s.totalItems++
	s.totalPages = pageCount(s.totalItems, s.itemsPerPage)
	s.markAppliedLocked()
	s.state = StateSuccess
	s.activeOp = ""
	s.err = nil
	s.mu.Unlock()
	return nil
}

// Update sends the update request and, on success, replaces the matching
// element in place: same index, same page. An update never reorders or
// refetches, it does not change which page an item belongs to.
func (s *Store[T, Q, C, P]) Update(ctx context.Context, key int64, patch P) (T, error) {
	s.beginOp("update")

	record, err := s.coll.Update(ctx, key, patch)
	if err != nil {
		var zero T
		s.finishOpErr(ctx, "update", err)
		return zero, err
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].Key() == key {
			s.items[i] = record
			break
		}
	}
	if s.detail != nil && (*s.detail).Key() == key {
		s.detail = &record
	}
	s.markAppliedLocked()
	s.state = StateSuccess
	s.activeOp = ""
	s.err = nil
	s.mu.Unlock()
	return record, nil
}

// Remove sends the delete request and, on success, drops the element,
// recounts, and corrects the page boundary: when the current page empties
// and is not page 1 the store moves back a page and re-fetches, never
// leaving the UI pointed at a page index that no longer exists.
func (s *Store[T, Q, C, P]) Remove(ctx context.Context, key int64) error {
	s.beginOp("remove")

	if err := s.coll.Delete(ctx, key); err != nil {
		s.finishOpErr(ctx, "remove", err)
		return err
	}

	s.mu.Lock()
	kept := s.items[:0]
	for _, item := range s.items {
		if item.Key() != key {
			kept = append(kept, item)
		}
	}
	s.items = kept
	if s.totalItems > 0 {
		s.totalItems--
	}
	s.totalPages = pageCount(s.totalItems, s.itemsPerPage)
	delete(s.selected, key)
	if s.detail != nil && (*s.detail).Key() == key {
		s.detail = nil
	}
	s.markAppliedLocked()

	if len(s.items) == 0 && s.page > 1 {
		s.page--
		page := s.page
		s.mu.Unlock()
		return s.fetch(ctx, page)
	}

	s.state = StateSuccess
	s.activeOp = ""
	s.err = nil
	s.mu.Unlock()
	return nil
}

// --- Selection (local UI bookkeeping, never a network call) ---

// Select marks a loaded record as selected.
func (s *Store[T, Q, C, P]) Select(key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.Key() == key {
			s.selected[key] = struct{}{}
			return
		}
	}
}

// Unselect clears one selection.
func (s *Store[T, Q, C, P]) Unselect(key int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selected, key)
}

// SelectAll selects every currently loaded record.
func (s *Store[T, Q, C, P]) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		s.selected[item.Key()] = struct{}{}
	}
}

// ClearSelection drops every selection.
func (s *Store[T, Q, C, P]) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[int64]struct{})
}

// SelectedKeys returns the selected keys in ascending order.
func (s *Store[T, Q, C, P]) SelectedKeys() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.selected))
	for k := range s.selected {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSelected reports whether a key is selected.
func (s *Store[T, Q, C, P]) IsSelected(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[key]
	return ok
}

// --- Detail record ---

// SetDetail marks a loaded record as the current detail record.
func (s *Store[T, Q, C, P]) SetDetail(key int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Key() == key {
			record := s.items[i]
			s.detail = &record
			return true
		}
	}
	return false
}

// Detail returns the current detail record, if any.
func (s *Store[T, Q, C, P]) Detail() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil {
		var zero T
		return zero, false
	}
	return *s.detail, true
}

// ClearDetail drops the detail record.
func (s *Store[T, Q, C, P]) ClearDetail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = nil
}

// --- Teardown ---

// Clear resets the store to its empty state. Owning views call this on
// unmount so stale cross-page state never leaks into the next instance of
// the same screen.
func (s *Store[T, Q, C, P]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zeroQ Q
	s.items = nil
	s.page = 1
	s.totalPages = 1
	s.totalItems = 0
	s.filters = zeroQ
	s.state = StateIdle
	s.activeOp = ""
	s.err = nil
	s.selected = make(map[int64]struct{})
	s.detail = nil
	s.markAppliedLocked()
}

// --- internals ---

func (s *Store[T, Q, C, P]) beginOp(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateLoading
	s.activeOp = op
	s.err = nil
}

// finishOpErr records an operation failure. Validation errors are surfaced
// to the caller only (the UI shows them per-field); everything else lands
// in the store's error field for the generic error banner.
func (s *Store[T, Q, C, P]) finishOpErr(ctx context.Context, op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if apperror.IsValidation(err) {
		s.state = StateIdle
		s.activeOp = ""
		return
	}
	s.failLocked(ctx, op, err)
}

func (s *Store[T, Q, C, P]) failLocked(ctx context.Context, op string, err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}
	s.state = StateError
	s.activeOp = ""
	s.err = appErr
	logger.Warn(ctx, "store operation failed",
		"store", s.name, "op", op, "code", appErr.Code, "error", err)
}

// markAppliedLocked advances the watermark so fetch responses issued
// before this change are recognized as stale.
func (s *Store[T, Q, C, P]) markAppliedLocked() {
	if s.fetchSeq > s.appliedSeq {
		s.appliedSeq = s.fetchSeq
	}
}

func (s *Store[T, Q, C, P]) pruneSelectionLocked() {
	if len(s.selected) == 0 {
		return
	}
	loaded := make(map[int64]struct{}, len(s.items))
	for _, item := range s.items {
		loaded[item.Key()] = struct{}{}
	}
	for k := range s.selected {
		if _, ok := loaded[k]; !ok {
			delete(s.selected, k)
		}
	}
}

func pageCount(total int64, perPage int) int {
	if perPage <= 0 {
		return 1
	}
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	if pages < 1 {
		pages = 1
	}
	return pages
}

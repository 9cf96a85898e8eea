package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thingsync/thingsync/internal/adapters/driven/storage/memory"
	"github.com/thingsync/thingsync/internal/core/domain"
	"github.com/thingsync/thingsync/internal/core/ports/driven"
)

// --- Mock implementations for driver testing ---

// driverMockSource implements driven.SourceAdapter.
type driverMockSource struct {
	typ         string
	items       []domain.Item
	itemsErr    error
	validateErr error
	closed      bool
}

func (m *driverMockSource) Type() string { return m.typ }

func (m *driverMockSource) Validate(context.Context) error { return m.validateErr }

func (m *driverMockSource) Items(context.Context) ([]domain.Item, error) {
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}
	return m.items, nil
}

func (m *driverMockSource) Close() error {
	m.closed = true
	return nil
}

// fakeTarget implements driven.TargetAdapter over an in-memory page map with
// the idempotent upsert semantics the port requires, so convergence can be
// asserted across multiple passes.
type fakeTarget struct {
	pages  map[string]domain.Item // keyed by target id
	nextID int

	itemsErr    error
	validateErr error
	createErr   map[string]error // keyed by source id
	updateErr   map[string]error // keyed by target id
	deleteErr   map[string]error // keyed by target id

	creates, updates, deletes int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{pages: make(map[string]domain.Item)}
}

func (m *fakeTarget) Type() string { return "notion" }

func (m *fakeTarget) Validate(context.Context) error { return m.validateErr }

func (m *fakeTarget) Items(context.Context) ([]domain.Item, error) {
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}
	items := make([]domain.Item, 0, len(m.pages))
	for _, p := range m.pages {
		items = append(items, p)
	}
	return items, nil
}

func (m *fakeTarget) Create(_ context.Context, item domain.Item) (string, error) {
	if err := m.createErr[item.SourceID]; err != nil {
		return "", err
	}
	m.creates++
	// Upsert by source id.
	for tid, p := range m.pages {
		if p.SourceID == item.SourceID {
			item.TargetID = tid
			m.pages[tid] = item
			return tid, nil
		}
	}
	m.nextID++
	tid := fmt.Sprintf("page-%d", m.nextID)
	item.TargetID = tid
	m.pages[tid] = item
	return tid, nil
}

func (m *fakeTarget) Update(_ context.Context, targetID string, item domain.Item) error {
	if err := m.updateErr[targetID]; err != nil {
		return err
	}
	if _, ok := m.pages[targetID]; !ok {
		return domain.ErrNotFound
	}
	m.updates++
	item.TargetID = targetID
	m.pages[targetID] = item
	return nil
}

func (m *fakeTarget) Delete(_ context.Context, targetID string) error {
	if err := m.deleteErr[targetID]; err != nil {
		return err
	}
	m.deletes++
	delete(m.pages, targetID)
	return nil
}

func (m *fakeTarget) Close() error { return nil }

// driverMockLock implements driven.PassLock.
type driverMockLock struct {
	acquireErr error
	acquired   int
	released   int
}

func (m *driverMockLock) Acquire() (driven.ReleaseFunc, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired++
	return func() { m.released++ }, nil
}

// failingStore wraps a FingerprintStore with injectable failures.
type failingStore struct {
	driven.FingerprintStore
	loadErr error
	saveErr error
	saves   int
}

func (s *failingStore) Load(ctx context.Context) (domain.Fingerprints, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.FingerprintStore.Load(ctx)
}

func (s *failingStore) Save(ctx context.Context, fps domain.Fingerprints) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	return s.FingerprintStore.Save(ctx, fps)
}

func newDriver(src *driverMockSource, tgt *fakeTarget, store driven.FingerprintStore, lock driven.PassLock) *SyncDriver {
	d := NewSyncDriver(src, nil, tgt, store, lock, time.Second)
	d.now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func TestSyncDriver_FirstPassCreates(t *testing.T) {
	src := &driverMockSource{typ: "things", items: []domain.Item{
		{SourceID: "a", Title: "Task A"},
		{SourceID: "b", Title: "Task B"},
	}}
	tgt := newFakeTarget()
	store := memory.NewFingerprintStore()
	lock := &driverMockLock{}

	summary, err := newDriver(src, tgt, store, lock).RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Zero(t, summary.Failed)
	assert.Len(t, tgt.pages, 2)

	fps, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, fps, 2)
	assert.NotEmpty(t, fps["a"].TargetID)
	assert.Equal(t, src.items[0].ContentHash(), fps["a"].ContentHash)
	assert.Equal(t, 1, lock.released)
}

func TestSyncDriver_SecondPassIsIdempotent(t *testing.T) {
	src := &driverMockSource{typ: "things", items: []domain.Item{
		{SourceID: "a", Title: "Task A"},
		{SourceID: "b", Title: "Task B"},
	}}
	tgt := newFakeTarget()
	store := memory.NewFingerprintStore()
	driver := newDriver(src, tgt, store, &driverMockLock{})

	_, err := driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)

	summary, err := driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)

	assert.Zero(t, summary.Created)
	assert.Zero(t, summary.Updated)
	assert.Zero(t, summary.Deleted)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, tgt.creates, "no writes on the second pass")
	assert.Zero(t, tgt.updates)
}

func TestSyncDriver_PartialFailureIsolation(t *testing.T) {
	// Five creates, the second fails: the other four still apply and only
	// the failed item is missing from the new mapping.
	var items []domain.Item
	for _, sid := range []string{"a", "b", "c", "d", "e"} {
		items = append(items, domain.Item{SourceID: sid, Title: "Task " + sid})
	}
	src := &driverMockSource{typ: "things", items: items}
	tgt := newFakeTarget()
	tgt.createErr = map[string]error{"b": errors.New("notion 500")}
	store := memory.NewFingerprintStore()

	summary, err := newDriver(src, tgt, store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err, "per-item failures never fail the pass")

	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, 1, summary.Failed)

	fps, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, fps, 4)
	_, hasFailed := fps["b"]
	assert.False(t, hasFailed, "failed action must not advance its fingerprint")

	// Next pass retries only the failed item.
	tgt.createErr = nil
	summary, err = newDriver(src, tgt, store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 4, summary.Skipped)
}

func TestSyncDriver_LockRefusal(t *testing.T) {
	src := &driverMockSource{typ: "things"}
	lock := &driverMockLock{acquireErr: domain.ErrSyncInProgress}
	store := &failingStore{FingerprintStore: memory.NewFingerprintStore()}

	_, err := newDriver(src, newFakeTarget(), store, lock).RunOnce(context.Background(), domain.ModeNormal)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
	assert.Zero(t, store.saves, "a refused pass touches nothing")
}

func TestSyncDriver_AdapterFailureAbortsPass(t *testing.T) {
	store := &failingStore{FingerprintStore: memory.NewFingerprintStore()}
	require.NoError(t, store.FingerprintStore.Save(context.Background(),
		domain.Fingerprints{"a": {ContentHash: "h1", TargetID: "page-1"}}))
	store.saves = 0

	t.Run("source fetch", func(t *testing.T) {
		src := &driverMockSource{typ: "things", itemsErr: errors.New("db locked")}
		_, err := newDriver(src, newFakeTarget(), store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
		assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
	})

	t.Run("target fetch", func(t *testing.T) {
		src := &driverMockSource{typ: "things"}
		tgt := newFakeTarget()
		tgt.itemsErr = errors.New("401 unauthorized")
		_, err := newDriver(src, tgt, store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
		assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
	})

	t.Run("target validation", func(t *testing.T) {
		src := &driverMockSource{typ: "things"}
		tgt := newFakeTarget()
		tgt.validateErr = errors.New("bad token")
		_, err := newDriver(src, tgt, store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
		assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)
	})

	assert.Zero(t, store.saves, "an aborted pass leaves fingerprints untouched")
}

func TestSyncDriver_ClearCacheNeverDuplicates(t *testing.T) {
	src := &driverMockSource{typ: "things", items: []domain.Item{
		{SourceID: "a", Title: "Task A"},
	}}
	tgt := newFakeTarget()
	store := memory.NewFingerprintStore()
	driver := newDriver(src, tgt, store, &driverMockLock{})

	_, err := driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)
	require.Len(t, tgt.pages, 1)

	summary, err := driver.RunOnce(context.Background(), domain.ModeClearCache)
	require.NoError(t, err)

	assert.Len(t, tgt.pages, 1, "clear-cache must not create a second page")
	assert.Equal(t, 1, summary.Skipped, "existing page adopted, not recreated")

	fps, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, fps, 1)
	assert.NotEmpty(t, fps["a"].TargetID, "mapping rebuilt from live target state")
}

func TestSyncDriver_ConvergenceAfterSourceEdits(t *testing.T) {
	a := domain.Item{SourceID: "a", Title: "Task A"}
	b := domain.Item{SourceID: "b", Title: "Task B"}
	src := &driverMockSource{typ: "things", items: []domain.Item{a, b}}
	tgt := newFakeTarget()
	store := memory.NewFingerprintStore()
	driver := newDriver(src, tgt, store, &driverMockLock{})

	_, err := driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)

	// Edit a, complete b, add c, trash nothing.
	a.Title = "Task A renamed"
	b.Completed = true
	src.items = []domain.Item{a, b, {SourceID: "c", Title: "Task C"}}

	summary, err := driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 2, summary.Updated)

	// Trash b.
	src.items = []domain.Item{a, {SourceID: "b", Deleted: true}, {SourceID: "c", Title: "Task C"}}
	summary, err = driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deleted)

	// Converged: target mirrors the live source items.
	require.Len(t, tgt.pages, 2)
	byStored := map[string]domain.Item{}
	for _, p := range tgt.pages {
		byStored[p.SourceID] = p
	}
	assert.Equal(t, "Task A renamed", byStored["a"].Title)
	assert.Equal(t, "Task C", byStored["c"].Title)

	summary, err = driver.RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)
	assert.Zero(t, summary.Created+summary.Updated+summary.Deleted)
}

func TestSyncDriver_ConflictDiscardedCountedAndApplied(t *testing.T) {
	src := &driverMockSource{typ: "things", items: []domain.Item{
		{SourceID: "a", Title: "Source edit"},
	}}
	tgt := newFakeTarget()
	tgt.pages["page-1"] = domain.Item{SourceID: "a", TargetID: "page-1", Title: "Target edit"}
	store := memory.NewFingerprintStore()
	old := domain.Item{SourceID: "a", Title: "Original"}
	require.NoError(t, store.Save(context.Background(), domain.Fingerprints{
		"a": {ContentHash: old.ContentHash(), TargetID: "page-1"},
	}))

	summary, err := newDriver(src, tgt, store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Equal(t, "Source edit", tgt.pages["page-1"].Title, "source wins")
}

func TestSyncDriver_CorruptStoreRecovered(t *testing.T) {
	src := &driverMockSource{typ: "things", items: []domain.Item{
		{SourceID: "a", Title: "Task A"},
	}}
	tgt := newFakeTarget()
	tgt.pages["page-1"] = domain.Item{SourceID: "a", TargetID: "page-1", Title: "Task A"}
	store := &failingStore{
		FingerprintStore: memory.NewFingerprintStore(),
		loadErr:          fmt.Errorf("%w: unexpected end of JSON input", domain.ErrStoreCorrupt),
	}

	summary, err := newDriver(src, tgt, store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
	require.NoError(t, err, "corruption is recovered, never fatal to the pass")

	assert.True(t, summary.StoreRecovered)
	assert.Equal(t, 1, summary.Skipped, "page adopted from live target state")
	assert.Equal(t, 1, store.saves, "mapping rewritten after recovery")
}

func TestSyncDriver_CorruptStoreUnwritable(t *testing.T) {
	src := &driverMockSource{typ: "things"}
	store := &failingStore{
		FingerprintStore: memory.NewFingerprintStore(),
		loadErr:          fmt.Errorf("%w: bad json", domain.ErrStoreCorrupt),
		saveErr:          errors.New("read-only filesystem"),
	}

	_, err := newDriver(src, newFakeTarget(), store, &driverMockLock{}).RunOnce(context.Background(), domain.ModeNormal)
	assert.ErrorIs(t, err, domain.ErrStoreCorrupt, "unreadable and unwritable store needs an operator")
}

func TestSyncDriver_LegacyMode(t *testing.T) {
	t.Run("selects the legacy adapter", func(t *testing.T) {
		modern := &driverMockSource{typ: "things"}
		legacy := &driverMockSource{typ: "things-export", items: []domain.Item{
			{SourceID: "a", Title: "Exported task"},
		}}
		driver := NewSyncDriver(modern, legacy, newFakeTarget(), memory.NewFingerprintStore(), &driverMockLock{}, 0)

		summary, err := driver.RunOnce(context.Background(), domain.ModeLegacy)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Created)
	})

	t.Run("unconfigured legacy source is a config error", func(t *testing.T) {
		driver := NewSyncDriver(&driverMockSource{typ: "things"}, nil, newFakeTarget(), memory.NewFingerprintStore(), &driverMockLock{}, 0)

		_, err := driver.RunOnce(context.Background(), domain.ModeLegacy)
		assert.ErrorIs(t, err, domain.ErrConfigInvalid)
	})
}

func TestSyncDriver_LockReleasedOnFailure(t *testing.T) {
	src := &driverMockSource{typ: "things", itemsErr: errors.New("boom")}
	lock := &driverMockLock{}

	_, err := newDriver(src, newFakeTarget(), memory.NewFingerprintStore(), lock).RunOnce(context.Background(), domain.ModeNormal)
	require.Error(t, err)
	assert.Equal(t, 1, lock.released, "release runs on every exit path")
}

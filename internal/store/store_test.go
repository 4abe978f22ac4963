package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/cartsync/internal/client"
	"github.com/shopfront/cartsync/internal/domain"
	"github.com/shopfront/cartsync/internal/storage"
)

type mockAPI struct {
	mu         sync.Mutex
	fetchItems domain.Items
	err        error
	calls      []string
}

func (m *mockAPI) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.err
}

func (m *mockAPI) FetchCart(context.Context) (domain.Items, error) {
	if err := m.record("fetch"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchItems.Clone(), nil
}

func (m *mockAPI) AddItem(_ context.Context, productID string, quantity int, variantID string) error {
	return m.record(fmt.Sprintf("add %s/%s x%d", productID, variantID, quantity))
}

func (m *mockAPI) UpdateItem(_ context.Context, productID string, quantity int, variantID string) error {
	return m.record(fmt.Sprintf("update %s/%s x%d", productID, variantID, quantity))
}

func (m *mockAPI) RemoveItem(_ context.Context, productID, variantID string) error {
	return m.record(fmt.Sprintf("remove %s/%s", productID, variantID))
}

func (m *mockAPI) ClearCart(context.Context) error {
	return m.record("clear")
}

func (m *mockAPI) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, msg)
}

func product(id string) domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: id, Name: "product " + id, Price: 10}
}

func newTestStore(api client.CartAPI) (*Store, *storage.MemoryStorage, *recordingNotifier) {
	st := storage.NewMemoryStorage()
	notifier := &recordingNotifier{}
	return New(api, NewMirror(st, nil), notifier, nil), st, notifier
}

func TestNew_SeedsFromSnapshot(t *testing.T) {
	st := storage.NewMemoryStorage()
	mirror := NewMirror(st, nil)
	mirror.Save(domain.Items{{ProductID: "p1", Product: product("p1"), Quantity: 2}})

	sut := New(&mockAPI{}, mirror, nil, nil)

	items := sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestNew_CorruptSnapshotYieldsEmptyCart(t *testing.T) {
	st := storage.NewMemoryStorage()
	require.NoError(t, st.Set(context.Background(), "cart", []byte("{not json")))

	sut := New(&mockAPI{}, NewMirror(st, nil), nil, nil)
	assert.Empty(t, sut.Items())
}

func TestRefresh_ReplacesNeverMerges(t *testing.T) {
	api := &mockAPI{fetchItems: domain.Items{
		{ProductID: "pC", Product: product("pC"), Quantity: 1},
	}}
	sut, st, _ := newTestStore(api)

	// Local state holds A and B before the fetch.
	require.NoError(t, sut.AddItem(context.Background(), product("pA"), 1, ""))
	require.NoError(t, sut.AddItem(context.Background(), product("pB"), 1, ""))
	require.Len(t, sut.Items(), 2)

	require.NoError(t, sut.Refresh(context.Background()))

	items := sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "pC", items[0].ProductID)
	assert.False(t, sut.Syncing())

	// The mirror follows the replace.
	data, err := st.Get(context.Background(), "cart")
	require.NoError(t, err)
	assert.Contains(t, string(data), "pC")
	assert.NotContains(t, string(data), "pA")
}

func TestRefresh_FailureKeepsItems(t *testing.T) {
	api := &mockAPI{}
	sut, _, _ := newTestStore(api)
	require.NoError(t, sut.AddItem(context.Background(), product("pA"), 2, ""))

	api.err = &client.APIError{Status: 503, Message: "service unavailable"}
	err := sut.Refresh(context.Background())
	require.Error(t, err)

	items := sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "service unavailable", sut.LastError())
	assert.False(t, sut.Syncing())
}

func TestAddItem_Cumulative(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, product("p1"), 2, ""))
	require.NoError(t, sut.AddItem(ctx, product("p1"), 3, ""))

	items := sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
}

func TestAddItem_VariantsOccupyDistinctSlots(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, "red"))
	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, "blue"))

	items := sut.Items()
	require.Len(t, items, 2)
	require.NoError(t, items.Validate())
}

func TestAddItem_RejectsBadInputBeforeNetwork(t *testing.T) {
	api := &mockAPI{}
	sut, _, notifier := newTestStore(api)
	ctx := context.Background()

	require.ErrorIs(t, sut.AddItem(ctx, product("p1"), 0, ""), ErrInvalidQuantity)
	require.ErrorIs(t, sut.AddItem(ctx, product("p1"), -1, ""), ErrInvalidQuantity)
	require.ErrorIs(t, sut.AddItem(ctx, domain.ProductSnapshot{}, 1, ""), ErrMissingProduct)

	assert.Zero(t, api.callCount(), "no network call for rejected input")
	assert.Empty(t, sut.Items())
	assert.Len(t, notifier.failures, 3)
}

func TestAddItem_FailureLeavesStateUntouched(t *testing.T) {
	api := &mockAPI{}
	sut, _, notifier := newTestStore(api)
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 2, ""))

	before := sut.Items()
	api.err = &client.APIError{Status: 500, Message: "inventory check failed"}
	require.Error(t, sut.AddItem(ctx, product("p1"), 1, ""))

	assert.Equal(t, before, sut.Items())
	assert.Equal(t, "inventory check failed", sut.LastError())
	assert.Contains(t, notifier.failures, "inventory check failed")
}

func TestUpdateQuantity_Absolute(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 5, ""))

	require.NoError(t, sut.UpdateQuantity(ctx, "p1", 2, ""))

	items := sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestUpdateQuantity_ZeroRemovesRow(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 5, ""))

	require.NoError(t, sut.UpdateQuantity(ctx, "p1", 0, ""))
	assert.Empty(t, sut.Items())
}

func TestUpdateQuantity_FailureLeavesStateUntouched(t *testing.T) {
	api := &mockAPI{}
	sut, _, _ := newTestStore(api)
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 5, ""))

	api.err = errors.New("connection refused")
	require.Error(t, sut.UpdateQuantity(ctx, "p1", 1, ""))

	items := sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, "cart request failed", sut.LastError())
}

func TestRemoveItem_SuccessNotifies(t *testing.T) {
	sut, _, notifier := newTestStore(&mockAPI{})
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, "red"))

	require.NoError(t, sut.RemoveItem(ctx, "p1", "red"))

	assert.Empty(t, sut.Items())
	assert.Contains(t, notifier.successes, "item removed from cart")
}

func TestClear_EmptiesCart(t *testing.T) {
	sut, st, notifier := newTestStore(&mockAPI{})
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, ""))
	require.NoError(t, sut.AddItem(ctx, product("p2"), 1, ""))

	require.NoError(t, sut.Clear(ctx))

	assert.Empty(t, sut.Items())
	assert.Contains(t, notifier.successes, "cart cleared")

	data, err := st.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestClear_FailureLeavesStateUntouched(t *testing.T) {
	api := &mockAPI{}
	sut, _, _ := newTestStore(api)
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, ""))

	api.err = errors.New("timeout")
	require.Error(t, sut.Clear(ctx))
	require.Len(t, sut.Items(), 1)
}

func TestLastError_ClearedOnNextSuccess(t *testing.T) {
	api := &mockAPI{}
	sut, _, _ := newTestStore(api)
	ctx := context.Background()

	api.err = errors.New("boom")
	require.Error(t, sut.AddItem(ctx, product("p1"), 1, ""))
	require.NotEmpty(t, sut.LastError())

	api.err = nil
	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, ""))
	assert.Empty(t, sut.LastError())
}

func TestMirror_WrittenAfterFailedIntent(t *testing.T) {
	api := &mockAPI{}
	sut, st, _ := newTestStore(api)
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 2, ""))
	require.NoError(t, st.Delete(ctx, "cart"))

	api.err = errors.New("boom")
	require.Error(t, sut.UpdateQuantity(ctx, "p1", 9, ""))

	// The snapshot is rewritten even though the intent failed, and it still
	// holds the pre-failure state.
	data, err := st.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"quantity":2`)
}

func TestPersistenceRoundTrip(t *testing.T) {
	st := storage.NewMemoryStorage()
	sut := New(&mockAPI{}, NewMirror(st, nil), nil, nil)
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 2, "red"))
	require.NoError(t, sut.AddItem(ctx, product("p2"), 1, ""))
	before := sut.Items()

	// A fresh store over the same storage seeds from the snapshot.
	reloaded := New(&mockAPI{}, NewMirror(st, nil), nil, nil)
	assert.Equal(t, before, reloaded.Items())
}

func TestReset_WipesStateAndSnapshot(t *testing.T) {
	sut, st, _ := newTestStore(&mockAPI{})
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, ""))

	sut.Reset()

	assert.Empty(t, sut.Items())
	assert.Empty(t, sut.LastError())
	_, err := st.Get(ctx, "cart")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPanelFlag(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})

	assert.False(t, sut.PanelOpen())
	sut.TogglePanel()
	assert.True(t, sut.PanelOpen())
	sut.SetPanelOpen(false)
	assert.False(t, sut.PanelOpen())
}

func TestTotals(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()
	require.NoError(t, sut.AddItem(ctx, product("p1"), 2, ""))
	require.NoError(t, sut.AddItem(ctx, product("p2"), 3, ""))

	assert.Equal(t, 5, sut.TotalQuantity())
	assert.Equal(t, float64(50), sut.Subtotal())
}

// Full lifecycle: add, add again, set absolute, remove.
func TestScenario_AddUpdateRemove(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, product("pA"), 2, ""))
	items := sut.Items()
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantity)

	require.NoError(t, sut.AddItem(ctx, product("pA"), 3, ""))
	items = sut.Items()
	require.Len(t, items, 1)
	require.Equal(t, 5, items[0].Quantity)

	require.NoError(t, sut.UpdateQuantity(ctx, "pA", 1, ""))
	items = sut.Items()
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].Quantity)

	require.NoError(t, sut.RemoveItem(ctx, "pA", ""))
	require.Empty(t, sut.Items())
}

func TestSlotUniquenessUnderMixedIntents(t *testing.T) {
	sut, _, _ := newTestStore(&mockAPI{})
	ctx := context.Background()

	require.NoError(t, sut.AddItem(ctx, product("p1"), 1, ""))
	require.NoError(t, sut.AddItem(ctx, product("p1"), 2, "red"))
	require.NoError(t, sut.AddItem(ctx, product("p1"), 3, ""))
	require.NoError(t, sut.UpdateQuantity(ctx, "p1", 7, "red"))
	require.NoError(t, sut.AddItem(ctx, product("p2"), 1, ""))

	items := sut.Items()
	require.NoError(t, items.Validate())
	require.Len(t, items, 3)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, 7, items[1].Quantity)
}

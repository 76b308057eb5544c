package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryStoreLoadDefaultsToIdle(t *testing.T) {
	store := NewMemoryStore()
	state, err := store.Load(context.Background(), 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.Kind() != KindIdle {
		t.Fatalf("expected idle, got %s", state.Kind())
	}
}

func TestMemoryStoreSaveCopiesProductIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ids := []string{"a", "b"}
	if err := store.Save(ctx, 1, Browsing{SubcategoryID: "s", ProductIDs: ids}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ids[0] = "mutated"

	state, err := store.Load(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Browsing{SubcategoryID: "s", ProductIDs: []string{"a", "b"}}
	if diff := cmp.Diff(want, state); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreSavingIdleClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Save(ctx, 1, CollectingName{AttemptID: "x"})
	if store.Len() != 1 {
		t.Fatalf("expected one state, got %d", store.Len())
	}
	_ = store.Save(ctx, 1, Idle{})
	if store.Len() != 0 {
		t.Fatalf("expected idle save to clear, got %d", store.Len())
	}
}

func TestMemoryStoreConcurrentChats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(chatID int64) {
			defer wg.Done()
			_ = store.Save(ctx, chatID, CollectingPhone{AttemptID: "a", Name: "Анна"})
			if _, err := store.Load(ctx, chatID); err != nil {
				t.Errorf("load %d: %v", chatID, err)
			}
			_ = store.Clear(ctx, chatID)
		}(i)
	}
	wg.Wait()
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}

func TestBrowsingOf(t *testing.T) {
	b := Browsing{ProductIDs: []string{"p1", "p2"}, Cursor: 1}
	for _, state := range []State{b, AwaitingQuantity{Browsing: b}, ConfirmingQuantity{Browsing: b, Quantity: 2}} {
		got, ok := BrowsingOf(state)
		if !ok || got.ProductID() != "p2" {
			t.Fatalf("%s: expected cursor at p2, got %+v ok=%v", state.Kind(), got, ok)
		}
	}
	if _, ok := BrowsingOf(CollectingName{}); ok {
		t.Fatalf("checkout states carry no cursor")
	}
	if !InCheckout(AwaitingConfirmation{}) || InCheckout(b) {
		t.Fatalf("InCheckout misclassified states")
	}
}

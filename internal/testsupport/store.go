package testsupport

import (
	"context"
	"testing"

	"nudge/internal/config"
	"nudge/internal/userdata"
)

// MustOpenStore opens a userdata.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *userdata.Store {
	t.Helper()

	store, err := userdata.Open(cfg)
	if err != nil {
		t.Fatalf("userdata.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewUser registers a console user subscribed to categories.
func NewUser(t testing.TB, store *userdata.Store, id string, categories ...string) {
	t.Helper()

	ctx := context.Background()
	if err := store.UpsertUser(ctx, userdata.User{ID: id, Name: id, Channel: config.ChannelConsole, CheckinsEnabled: true}); err != nil {
		t.Fatalf("store.UpsertUser: %v", err)
	}
	for _, category := range categories {
		if err := store.AddCategory(ctx, id, category, ""); err != nil {
			t.Fatalf("store.AddCategory: %v", err)
		}
	}
}

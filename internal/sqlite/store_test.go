package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cwrk-planet/spaces/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "spaces.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatal("expected error")
	}
}

func TestStore_CreateGetUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sp := &domain.Space{
		ID: "sp1", Host: "h", Capacity: 5, Active: true, CreatedAt: 1000,
		AskToJoin: true, RemoteName: domain.RemoteNameNone,
		Participants: []domain.Participant{{ID: "h", Role: domain.RoleHost}},
	}
	if err := store.Create(ctx, sp); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sp); !errors.Is(err, domain.ErrSpaceExists) {
		t.Fatalf("expected ErrSpaceExists, got %v", err)
	}

	updated, err := store.Update(ctx, "sp1", func(sp *domain.Space) error {
		return sp.EnqueueJoin(domain.JoinRequest{ID: "u1", DisplayName: "Alice"})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, "sp1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Equal(updated) || !got.InJoinQueue("u1") {
		t.Fatalf("update not persisted: %+v", got)
	}

	_, err = store.Update(ctx, "sp1", func(sp *domain.Space) error {
		sp.Host = "other"
		return domain.ErrInvariant
	})
	if !errors.Is(err, domain.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if got, _ := store.Get(ctx, "sp1"); got.Host != "h" {
		t.Fatal("failed update committed")
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSpaceNotFound) {
		t.Fatalf("expected ErrSpaceNotFound, got %v", err)
	}
}

func TestStore_ListPages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := range 5 {
		sp := &domain.Space{ID: fmt.Sprintf("sp%d", i), Host: "h", Active: true, CreatedAt: int64(1000 + i)}
		if err := store.Create(ctx, sp); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, next, err := store.List(ctx, 3, "")
	if err != nil || len(page) != 3 || page[0].ID != "sp4" || next == "" {
		t.Fatalf("first page: %d items next=%q err=%v", len(page), next, err)
	}
	page, next, err = store.List(ctx, 3, next)
	if err != nil || len(page) != 2 || page[0].ID != "sp1" || next != "" {
		t.Fatalf("second page: %d items next=%q err=%v", len(page), next, err)
	}
}

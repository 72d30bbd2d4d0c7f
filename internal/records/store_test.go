package records

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryPutGet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	if _, err := s.Get(ctx, "a@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec, err := s.Put(ctx, " A@B.com ", map[string]any{"grade": "L4"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if rec.OwnerEmail != "a@b.com" {
		t.Fatalf("owner = %q", rec.OwnerEmail)
	}

	got, err := s.Get(ctx, "A@B.COM")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Document["grade"] != "L4" {
		t.Fatalf("document = %v", got.Document)
	}

	// Put replaces the whole document.
	if _, err := s.Put(ctx, "a@b.com", map[string]any{"grade": "L5"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ = s.Get(ctx, "a@b.com")
	if got.Document["grade"] != "L5" {
		t.Fatalf("document after update = %v", got.Document)
	}
}

func TestInMemoryList(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for _, email := range []string{"c@b.com", "a@b.com", "b@b.com"} {
		if _, err := s.Put(ctx, email, map[string]any{"email": email}); err != nil {
			t.Fatalf("Put %s: %v", email, err)
		}
	}

	recs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	// Deterministic owner order.
	if recs[0].OwnerEmail != "a@b.com" || recs[1].OwnerEmail != "b@b.com" {
		t.Fatalf("order = %q, %q", recs[0].OwnerEmail, recs[1].OwnerEmail)
	}
}

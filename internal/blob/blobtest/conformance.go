// Package blobtest holds the behaviour checks shared by blob Store drivers.
package blobtest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"markercompare/internal/blob/core"
)

// RunStoreConformance exercises the core.Store contract against a fresh store.
func RunStoreConformance(t *testing.T, s core.Store) {
	t.Helper()
	ctx := context.Background()
	key := core.ReportKey("V24", "batch-1", "V2445", "V2445A.txt")

	info, err := s.Put(ctx, key, strings.NewReader("Sample Name\tMarker\n"), core.PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"casefolder": "V2445"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != key || info.Size != 19 || info.Checksum == "" {
		t.Fatalf("unexpected put info %+v", info)
	}
	if _, err := s.Put(ctx, key, strings.NewReader("dup"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}

	head, err := s.Head(ctx, key)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.ContentType != "text/plain" || head.Metadata["casefolder"] != "V2445" || head.Checksum != info.Checksum {
		t.Fatalf("unexpected head %+v", head)
	}

	_, rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != "Sample Name\tMarker\n" {
		t.Fatalf("unexpected body %q (%v)", body, err)
	}

	other := core.ReportKey("V24", "batch-2", "V2446", "V2446A.txt")
	if _, err := s.Put(ctx, other, strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("Put other: %v", err)
	}
	list, err := s.List(ctx, core.BatchPrefix("V24", "batch-1"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Key != key {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected two keys in order, got %+v", all)
	}

	if ok, err := s.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("Delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, key); err != nil || ok {
		t.Fatalf("Delete missing: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

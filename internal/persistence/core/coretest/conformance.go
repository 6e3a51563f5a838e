// Package coretest holds the behaviour checks every core.Store driver must pass.
package coretest

import (
	"context"
	"errors"
	"testing"

	"markercompare/internal/persistence/core"
)

// RunStoreConformance exercises the core.Store contract against stores built by
// open. Each subtest receives a fresh store.
func RunStoreConformance(t *testing.T, open func(t *testing.T) core.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("tables keep creation order", func(t *testing.T) {
		s := open(t)
		for _, name := range []string{"V24", "Sheet1", "T23"} {
			if _, err := s.CreateTable(ctx, name); err != nil {
				t.Fatalf("CreateTable %s: %v", name, err)
			}
		}
		names, err := s.ListTables(ctx)
		if err != nil {
			t.Fatalf("ListTables: %v", err)
		}
		if len(names) != 3 || names[0] != "V24" || names[2] != "T23" {
			t.Fatalf("unexpected table order %v", names)
		}
		if _, err := s.CreateTable(ctx, "V24"); !errors.Is(err, core.ErrTableExists) {
			t.Fatalf("expected ErrTableExists, got %v", err)
		}
	})

	t.Run("append trims trailing blanks", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "V24")
		rows := []core.Row{{"V2401A A", "", ""}, {"", "", ""}, {"D3S1358", "14", "15"}}
		if err := s.AppendRows(ctx, "V24", rows); err != nil {
			t.Fatalf("AppendRows: %v", err)
		}
		got, err := s.GetRows(ctx, "V24", core.All)
		if err != nil {
			t.Fatalf("GetRows: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(got))
		}
		if len(got[0]) != 1 || len(got[1]) != 0 || len(got[2]) != 3 {
			t.Fatalf("unexpected row widths %v", got)
		}
	})

	t.Run("ranges and projection", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "V24")
		seed(t, s, "V24", 5)
		got, err := s.GetRows(ctx, "V24", core.Range{Start: 1, Count: 2})
		if err != nil {
			t.Fatalf("GetRows: %v", err)
		}
		if len(got) != 2 || got[0][0] != "r1" || got[1][0] != "r2" {
			t.Fatalf("unexpected window %v", got)
		}
		col, err := s.GetRows(ctx, "V24", core.FirstColumn)
		if err != nil {
			t.Fatalf("GetRows first column: %v", err)
		}
		if len(col) != 5 || len(col[4]) != 1 {
			t.Fatalf("unexpected projection %v", col)
		}
		tail, err := s.GetRows(ctx, "V24", core.Range{Start: 10})
		if err != nil {
			t.Fatalf("GetRows past end: %v", err)
		}
		if len(tail) != 0 {
			t.Fatalf("expected no rows past end, got %v", tail)
		}
	})

	t.Run("delete shifts later rows", func(t *testing.T) {
		s := open(t)
		mustCreate(t, s, "V24")
		seed(t, s, "V24", 6)
		if err := s.DeleteRowRange(ctx, "V24", 1, 2); err != nil {
			t.Fatalf("DeleteRowRange: %v", err)
		}
		if err := s.DeleteRowRange(ctx, "V24", 2, 50); err != nil {
			t.Fatalf("DeleteRowRange clamp: %v", err)
		}
		got, err := s.GetRows(ctx, "V24", core.FirstColumn)
		if err != nil {
			t.Fatalf("GetRows: %v", err)
		}
		if len(got) != 2 || got[0][0] != "r0" || got[1][0] != "r3" {
			t.Fatalf("unexpected rows after delete %v", got)
		}
		if err := s.DeleteRowRange(ctx, "V24", -1, 1); !errors.Is(err, core.ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange, got %v", err)
		}
	})

	t.Run("unknown table", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetRows(ctx, "missing", core.All); !errors.Is(err, core.ErrTableNotFound) {
			t.Fatalf("GetRows: expected ErrTableNotFound, got %v", err)
		}
		if err := s.AppendRows(ctx, "missing", []core.Row{{"x"}}); !errors.Is(err, core.ErrTableNotFound) {
			t.Fatalf("AppendRows: expected ErrTableNotFound, got %v", err)
		}
		if err := s.DeleteRowRange(ctx, "missing", 0, 1); !errors.Is(err, core.ErrTableNotFound) {
			t.Fatalf("DeleteRowRange: expected ErrTableNotFound, got %v", err)
		}
	})
}

func mustCreate(t *testing.T, s core.Store, name string) {
	t.Helper()
	if _, err := s.CreateTable(context.Background(), name); err != nil {
		t.Fatalf("CreateTable %s: %v", name, err)
	}
}

func seed(t *testing.T, s core.Store, name string, n int) {
	t.Helper()
	rows := make([]core.Row, n)
	for i := range rows {
		rows[i] = core.Row{"r" + string(rune('0'+i)), "x", "y"}
	}
	if err := s.AppendRows(context.Background(), name, rows); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
}

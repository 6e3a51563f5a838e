package core

import (
	"errors"
	"testing"
)

func TestReportKey(t *testing.T) {
	got := ReportKey("V24", "b1", "V2445", "C:\\data\\V2445A.txt")
	if got != "reports/V24/b1/V2445/V2445A.txt" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := ReportKey("V24", "b1", "", "x.txt"); got != "reports/V24/b1/x.txt" {
		t.Fatalf("unexpected key without folder %s", got)
	}
	if BatchPrefix("V24", "b1") != "reports/V24/b1/" {
		t.Fatalf("unexpected batch prefix")
	}
}

func TestCleanKey(t *testing.T) {
	for _, bad := range []string{"", "  ", "/abs", "a/../b"} {
		if _, err := CleanKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", bad, err)
		}
	}
	if k, err := CleanKey("a//b/./c"); err != nil || k != "a/b/c" {
		t.Fatalf("unexpected clean result %q %v", k, err)
	}
}

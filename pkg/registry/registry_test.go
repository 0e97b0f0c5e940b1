package registry

import (
	"errors"
	"testing"

	treeerrors "github.com/bobboyms/ctreebench/pkg/errors"
)

func TestNewConstructsEveryRegisteredVariant(t *testing.T) {
	for _, name := range Names() {
		tr, err := New(name, 64)
		if err != nil {
			t.Fatalf("New(%q): unexpected error: %v", name, err)
		}
		if tr == nil {
			t.Fatalf("New(%q): expected non-nil tree", name)
		}
		if tr.Name() == "" {
			t.Fatalf("New(%q): expected a non-empty Name()", name)
		}
	}
}

func TestNewUnknownVariant(t *testing.T) {
	_, err := New("does-not-exist", 64)
	if err == nil {
		t.Fatal("expected an error for an unknown variant")
	}
	if !errors.Is(err, treeerrors.ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestNamesSortedAndComplete(t *testing.T) {
	want := []string{"citrus", "cop", "fghtm", "fgspinlock", "relaxed", "tarjantd"}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %d: %v", len(want), len(got), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected Names()[%d] == %q, got %q (full: %v)", i, name, got[i], got)
		}
	}
}

func TestIsRelaxed(t *testing.T) {
	if !IsRelaxed("relaxed") {
		t.Fatal("expected IsRelaxed(\"relaxed\") true")
	}
	if IsRelaxed("tarjantd") {
		t.Fatal("expected IsRelaxed(\"tarjantd\") false")
	}
}

package memstore

import (
	"slices"
	"testing"

	"github.com/afpipeline/runtime/pkg/attribute"
)

func TestStore_SharedReference(t *testing.T) {
	s := New()
	f := attribute.NewForest(attribute.New("A", "x"))
	s.Put("kept", f)

	got, ok := s.Get("kept")
	if !ok {
		t.Fatal("Get(kept) not found")
	}
	if got != f {
		t.Fatal("Get() returned a different forest")
	}

	f.Append(attribute.New("B", "y"))
	if got.Len() != 2 {
		t.Errorf("stored forest has %d roots, want 2 (store must alias, not copy)", got.Len())
	}

	if names := s.Names(); !slices.Equal(names, []string{"kept"}) {
		t.Errorf("Names() = %v, want [kept]", names)
	}
	s.Delete("kept")
	if _, ok = s.Get("kept"); ok {
		t.Error("Get(kept) found after Delete")
	}
}

func TestStore_ZeroValue(t *testing.T) {
	var s Store
	if _, ok := s.Get("x"); ok {
		t.Error("zero store reported an entry")
	}
	s.Put("x", attribute.NewForest())
	if names := s.Names(); !slices.Equal(names, []string{"x"}) {
		t.Errorf("Names() = %v, want [x]", names)
	}
}

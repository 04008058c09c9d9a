package services

import (
	"errors"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(ErrTransient, "producer", "fetch", "lectures", base)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "importer", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", Wrap(ErrTransient, "s", "o", "", nil), true},
		{"timeout", Wrap(ErrTimeout, "s", "o", "", nil), true},
		{"validation", Wrap(ErrValidation, "s", "o", "", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

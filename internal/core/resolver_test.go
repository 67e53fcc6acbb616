package core

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/valter-silva-au/flow/pkg/models"
	"pgregory.net/rapid"
)

func TestResolveID(t *testing.T) {
	ids := []string{"f-a3f8c9d2", "f-a3f1b7e4", "f-7c2e9a01"}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "exact match", input: "f-a3f8c9d2", want: "f-a3f8c9d2"},
		{name: "unique prefix of hash", input: "a3f8", want: "f-a3f8c9d2"},
		{name: "prefixed partial", input: "f-7c2e", want: "f-7c2e9a01"},
		{name: "substring in the middle", input: "9a0", want: "f-7c2e9a01"},
		{name: "surrounding whitespace", input: "  7c2e  ", want: "f-7c2e9a01"},
		{name: "ambiguous", input: "a3f", wantErr: ErrAmbiguousID},
		{name: "no match", input: "zzzz", wantErr: ErrNotFound},
		{name: "empty", input: "", wantErr: ErrNotFound},
		{name: "bare prefix", input: "f-", wantErr: ErrNotFound},
		{name: "case sensitive", input: "A3F8", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveID(models.KindTask, tt.input, ids)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveID(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveID(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ResolveID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveID_AmbiguousListsSortedCandidates(t *testing.T) {
	ids := []string{"f-a3f8c9d2", "f-7c2e9a01", "f-a3f1b7e4"}
	_, err := ResolveID(models.KindTask, "a3f", ids)

	var amb *AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousIDError, got %v", err)
	}
	want := []string{"f-a3f1b7e4", "f-a3f8c9d2"}
	if !slices.Equal(amb.Matches, want) {
		t.Errorf("Matches = %v, want %v", amb.Matches, want)
	}
	if !strings.Contains(err.Error(), "f-a3f1b7e4, f-a3f8c9d2") {
		t.Errorf("error message should list candidates, got %q", err.Error())
	}
}

func TestResolveID_ExactMatchBeatsPartial(t *testing.T) {
	// "f-abcd" is an exact ID and also a substring of the other hash.
	ids := []string{"f-abcd", "f-abcdef12"}
	got, err := ResolveID(models.KindTask, "f-abcd", ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "f-abcd" {
		t.Errorf("got %q, want f-abcd", got)
	}
}

func TestResolveID_PrefixIsPerKind(t *testing.T) {
	ids := []string{"e-1234abcd"}
	got, err := ResolveID(models.KindEpic, "e-1234", ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "e-1234abcd" {
		t.Errorf("got %q, want e-1234abcd", got)
	}
	// A task prefix is not stripped for an epic lookup.
	if _, err := ResolveID(models.KindEpic, "f-1234", ids); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for foreign prefix, got %v", err)
	}
}

func TestIDResolver_ReadsStore(t *testing.T) {
	store := newMemStore()
	store.put(seedTask("f-11112222", models.StatusOpen))
	store.epics["e-33334444"] = models.Epic{ID: "e-33334444", Title: "epic"}
	store.backlog["b-55556666"] = models.BacklogItem{ID: "b-55556666", Title: "idea"}
	r := NewIDResolver(store)

	cases := map[models.Kind][2]string{
		models.KindTask:    {"1111", "f-11112222"},
		models.KindEpic:    {"3333", "e-33334444"},
		models.KindBacklog: {"5555", "b-55556666"},
	}
	for kind, c := range cases {
		got, err := r.Resolve(kind, c[0])
		if err != nil {
			t.Fatalf("Resolve(%s, %q) failed: %v", kind, c[0], err)
		}
		if got != c[1] {
			t.Errorf("Resolve(%s, %q) = %q, want %q", kind, c[0], got, c[1])
		}
	}
	if _, err := r.Resolve(models.Kind("widget"), "x"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestHashSegment(t *testing.T) {
	if got := HashSegment("f-a3f8c9d2"); got != "a3f8c9d2" {
		t.Errorf("HashSegment = %q", got)
	}
	if got := HashSegment("plain"); got != "plain" {
		t.Errorf("HashSegment without prefix = %q", got)
	}
}

// Any full ID always resolves to itself, and any hash substring resolves to
// an ID containing it or reports every candidate.
func TestProperty_ResolveID(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		hashes := rapid.SliceOfNDistinct(rapid.StringMatching(`[0-9a-f]{8}`), 1, 20, rapid.ID[string]).Draw(rt, "hashes")
		ids := make([]string, len(hashes))
		for i, h := range hashes {
			ids[i] = "f-" + h
		}

		full := rapid.SampledFrom(ids).Draw(rt, "full")
		got, err := ResolveID(models.KindTask, full, ids)
		if err != nil || got != full {
			rt.Fatalf("ResolveID(%q) = %q, %v", full, got, err)
		}

		needle := rapid.StringMatching(`[0-9a-f]{1,4}`).Draw(rt, "needle")
		var want []string
		for _, id := range ids {
			if strings.Contains(HashSegment(id), needle) {
				want = append(want, id)
			}
		}
		got, err = ResolveID(models.KindTask, needle, ids)
		switch len(want) {
		case 0:
			if !errors.Is(err, ErrNotFound) {
				rt.Fatalf("expected not found for %q, got %q, %v", needle, got, err)
			}
		case 1:
			if err != nil || got != want[0] {
				rt.Fatalf("ResolveID(%q) = %q, %v; want %q", needle, got, err, want[0])
			}
		default:
			var amb *AmbiguousIDError
			if !errors.As(err, &amb) {
				rt.Fatalf("expected ambiguity for %q, got %q, %v", needle, got, err)
			}
			slices.Sort(want)
			if !slices.Equal(amb.Matches, want) {
				rt.Fatalf("Matches = %v, want %v", amb.Matches, want)
			}
		}
	})
}

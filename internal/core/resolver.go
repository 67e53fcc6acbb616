package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valter-silva-au/flow/pkg/models"
)

// IDResolver maps a user-supplied full or partial identifier to exactly one
// stored entity ID of the requested kind.
type IDResolver interface {
	Resolve(kind models.Kind, input string) (string, error)
}

type storeResolver struct {
	store Store
}

// NewIDResolver creates an IDResolver that reads candidate IDs from store on
// every call.
func NewIDResolver(store Store) IDResolver {
	return &storeResolver{store: store}
}

func (r *storeResolver) Resolve(kind models.Kind, input string) (string, error) {
	ids, err := listIDs(r.store, kind)
	if err != nil {
		return "", fmt.Errorf("resolving %s %q: %w", kind, input, err)
	}
	return ResolveID(kind, input, ids)
}

// ResolveID picks the single ID in ids that input identifies.
//
// An exact match wins outright. Otherwise input, with an optional leading
// "<prefix>-" for kind stripped, must occur as a case-sensitive substring of
// the hash segment of exactly one ID. Multiple matches are reported as an
// AmbiguousIDError listing the candidates in sorted order.
func ResolveID(kind models.Kind, input string, ids []string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", &NotFoundError{Kind: kind, Input: input}
	}
	for _, id := range ids {
		if id == input {
			return id, nil
		}
	}

	needle := strings.TrimPrefix(input, kind.Prefix()+"-")
	if needle == "" {
		return "", &NotFoundError{Kind: kind, Input: input}
	}

	var matches []string
	for _, id := range ids {
		if strings.Contains(HashSegment(id), needle) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Kind: kind, Input: input}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousIDError{Kind: kind, Input: input, Matches: matches}
	}
}

// HashSegment returns the part of id after the first "-", or id itself when
// it has no prefix.
func HashSegment(id string) string {
	if i := strings.IndexByte(id, '-'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func listIDs(store Store, kind models.Kind) ([]string, error) {
	var ids []string
	switch kind {
	case models.KindTask:
		tasks, err := store.LoadTasks()
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
	case models.KindEpic:
		epics, err := store.LoadEpics()
		if err != nil {
			return nil, err
		}
		for _, e := range epics {
			ids = append(ids, e.ID)
		}
	case models.KindBacklog:
		items, err := store.LoadBacklog()
		if err != nil {
			return nil, err
		}
		for _, b := range items {
			ids = append(ids, b.ID)
		}
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	return ids, nil
}

package service

import (
	"cmp"
	"slices"
	"strings"

	"github.com/iliyamo/locator-validation/internal/model"
)

// OrderCandidates returns the consumption order: sequence ascending with
// missing sequences last, ties broken by ticket key.  Repeated keys keep
// their first occurrence.  The input slice is not modified.
func OrderCandidates(in []model.TicketCandidate) []model.TicketCandidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.TicketCandidate, 0, len(in))
	for _, c := range in {
		if _, dup := seen[c.TicketKey]; dup {
			continue
		}
		seen[c.TicketKey] = struct{}{}
		out = append(out, c)
	}
	slices.SortStableFunc(out, compareCandidates)
	return out
}

func compareCandidates(a, b model.TicketCandidate) int {
	switch {
	case a.Sequence != nil && b.Sequence != nil:
		if c := cmp.Compare(*a.Sequence, *b.Sequence); c != 0 {
			return c
		}
	case a.Sequence != nil:
		return -1
	case b.Sequence != nil:
		return 1
	}
	return strings.Compare(a.TicketKey, b.TicketKey)
}

// EligibleCandidates filters an ordered candidate set by identity.  When
// any candidate is bound to a document the whole set is identity-bound
// and only candidates bound to dni survive; otherwise all are eligible.
func EligibleCandidates(ordered []model.TicketCandidate, dni string) []model.TicketCandidate {
	bound := slices.ContainsFunc(ordered, func(c model.TicketCandidate) bool {
		return NormalizeDocument(c.BoundIdentity) != ""
	})
	if !bound {
		return ordered
	}
	out := make([]model.TicketCandidate, 0, len(ordered))
	for _, c := range ordered {
		if NormalizeDocument(c.BoundIdentity) == dni {
			out = append(out, c)
		}
	}
	return out
}

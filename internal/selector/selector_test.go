package selector_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/bryan-buckman/cringecast/internal/model"
	"github.com/bryan-buckman/cringecast/internal/selector"
)

type idSet map[string]bool

func (s idSet) Contains(id string) bool { return s[id] }

func intPtr(v int) *int { return &v }

func episodes(now time.Time, n int) []model.Episode {
	eps := make([]model.Episode, n)
	for i := range eps {
		eps[i] = model.Episode{
			ID:        fmt.Sprintf("ep-%d", i),
			Title:     fmt.Sprintf("Episode %d", i),
			Index:     i,
			Published: now.Add(-time.Duration(n-i) * 24 * time.Hour),
		}
	}
	return eps
}

func indices(eps []model.Episode) []int {
	out := make([]int, len(eps))
	for i, ep := range eps {
		out[i] = ep.Index
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStandardMaxEpisodesKeepsNewestFirst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	eps := episodes(now, 3)

	got := selector.Select(model.StandardPolicy{MaxEpisodes: intPtr(2)}, eps, idSet{}, len(eps), now)
	if !equalInts(indices(got), []int{2, 1}) {
		t.Fatalf("expected [2 1], got %v", indices(got))
	}
}

func TestStandardBoundsAreConjunctive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	eps := episodes(now, 6) // episode i published (6-i) days ago
	earliest := now.Add(-4*24*time.Hour - time.Hour)

	tests := []struct {
		name   string
		policy model.StandardPolicy
		want   []int
	}{
		{name: "no bounds", policy: model.StandardPolicy{}, want: []int{5, 4, 3, 2, 1, 0}},
		{name: "max age", policy: model.StandardPolicy{MaxAgeDays: intPtr(3)}, want: []int{5, 4, 3}},
		{name: "max episodes", policy: model.StandardPolicy{MaxEpisodes: intPtr(4)}, want: []int{5, 4, 3, 2}},
		{name: "earliest date", policy: model.StandardPolicy{EarliestDate: &earliest}, want: []int{5, 4, 3, 2}},
		{name: "age and count", policy: model.StandardPolicy{MaxAgeDays: intPtr(5), MaxEpisodes: intPtr(2)}, want: []int{5, 4}},
		{name: "all three", policy: model.StandardPolicy{MaxAgeDays: intPtr(2), MaxEpisodes: intPtr(5), EarliestDate: &earliest}, want: []int{5, 4}},
		{name: "count larger than feed", policy: model.StandardPolicy{MaxEpisodes: intPtr(50)}, want: []int{5, 4, 3, 2, 1, 0}},
		{name: "zero episodes", policy: model.StandardPolicy{MaxEpisodes: intPtr(0)}, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selector.Select(tt.policy, eps, nil, len(eps), now)
			if !equalInts(indices(got), tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, indices(got))
			}
		})
	}
}

func TestStandardSkipsRetrieved(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	eps := episodes(now, 3)

	got := selector.Select(model.StandardPolicy{}, eps, idSet{"ep-2": true}, len(eps), now)
	if !equalInts(indices(got), []int{1, 0}) {
		t.Fatalf("expected [1 0], got %v", indices(got))
	}
}

func TestBacklogPacing(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eps := episodes(start, 4)
	policy := model.BacklogPolicy{Start: start, IntervalDays: 7}

	tests := []struct {
		name string
		now  time.Time
		want []int
	}{
		{name: "before start", now: start.Add(-time.Hour), want: []int{}},
		{name: "at start", now: start, want: []int{0}},
		{name: "just before first interval", now: start.Add(7*24*time.Hour - time.Second), want: []int{0}},
		{name: "first interval", now: start.Add(7 * 24 * time.Hour), want: []int{0, 1}},
		{name: "far future", now: start.Add(365 * 24 * time.Hour), want: []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selector.Select(policy, eps, nil, len(eps), tt.now)
			if !equalInts(indices(got), tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, indices(got))
			}
		})
	}
}

func TestBacklogNeverReselectsRetrieved(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eps := episodes(start, 3)
	policy := model.BacklogPolicy{Start: start, IntervalDays: 1}

	got := selector.Select(policy, eps, idSet{"ep-0": true, "ep-1": true}, len(eps), start.Add(30*24*time.Hour))
	if !equalInts(indices(got), []int{2}) {
		t.Fatalf("expected [2], got %v", indices(got))
	}
}

func TestBacklogOrderIsOldestFirst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	eps := episodes(now, 5)
	policy := model.BacklogPolicy{Start: now.Add(-2 * 24 * time.Hour), IntervalDays: 1}

	got := selector.Select(policy, eps, idSet{}, len(eps), now)
	if !equalInts(indices(got), []int{0, 1, 2}) {
		t.Fatalf("expected [0 1 2], got %v", indices(got))
	}
}

func TestCurrentBucketRejectsNonPositiveInterval(t *testing.T) {
	if _, ok := selector.CurrentBucket(model.BacklogPolicy{Start: time.Unix(0, 0)}, time.Unix(1_000_000, 0)); ok {
		t.Fatal("expected zero interval to release nothing")
	}
}

// Package selector decides which episodes of a feed should be fetched.
package selector

import (
	"sort"
	"time"

	"github.com/bryan-buckman/cringecast/internal/model"
)

const secondsPerDay = 86400

// Retrieved reports whether an episode id has already been fetched.
type Retrieved interface {
	Contains(id string) bool
}

// Select returns the episodes to fetch, in fetch order.
//
// episodes must be ordered by ascending Index. total is the number of usable
// episodes in the listing. Standard policies yield newest first, backlog
// policies oldest first.
func Select(policy model.RetentionPolicy, episodes []model.Episode, retrieved Retrieved, total int, now time.Time) []model.Episode {
	var out []model.Episode
	for _, ep := range episodes {
		if retrieved != nil && retrieved.Contains(ep.ID) {
			continue
		}
		if eligible(policy, ep, total, now) {
			out = append(out, ep)
		}
	}

	switch policy.(type) {
	case model.BacklogPolicy, *model.BacklogPolicy:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Index > out[j].Index })
	}
	return out
}

func eligible(policy model.RetentionPolicy, ep model.Episode, total int, now time.Time) bool {
	switch p := policy.(type) {
	case model.BacklogPolicy:
		return backlogEligible(p, ep, now)
	case *model.BacklogPolicy:
		return backlogEligible(*p, ep, now)
	case model.StandardPolicy:
		return standardEligible(p, ep, total, now)
	case *model.StandardPolicy:
		return standardEligible(*p, ep, total, now)
	default:
		return true
	}
}

func standardEligible(p model.StandardPolicy, ep model.Episode, total int, now time.Time) bool {
	if p.MaxAgeDays != nil {
		age := now.Unix() - ep.Published.Unix()
		if age > int64(*p.MaxAgeDays)*secondsPerDay {
			return false
		}
	}
	if p.MaxEpisodes != nil && total-*p.MaxEpisodes > ep.Index {
		return false
	}
	if p.EarliestDate != nil && ep.Published.Before(*p.EarliestDate) {
		return false
	}
	return true
}

func backlogEligible(p model.BacklogPolicy, ep model.Episode, now time.Time) bool {
	bucket, ok := CurrentBucket(p, now)
	return ok && int64(ep.Index) <= bucket
}

// CurrentBucket returns the highest episode index released by a backlog
// policy at now. ok is false before the backlog has started or when the
// interval is not positive.
func CurrentBucket(p model.BacklogPolicy, now time.Time) (bucket int64, ok bool) {
	if p.IntervalDays <= 0 {
		return 0, false
	}
	daysPassed := floorDiv(now.Unix()-p.Start.Unix(), secondsPerDay)
	if daysPassed < 0 {
		return 0, false
	}
	return floorDiv(daysPassed, int64(p.IntervalDays)), true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

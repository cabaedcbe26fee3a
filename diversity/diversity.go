// Package diversity implements the post-sort re-ranker (§4.5.1): a
// deterministic top-down scan enforcing per-merchant and per-category
// quotas plus a no-run-of-consecutive-same-merchant rule, relaxing to
// advisory-only when no candidate qualifies.
package diversity

import "math"

// Policy carries the three tunable constraints. Zero values are not
// meaningful; callers should start from Default() and override.
type Policy struct {
	MaxConsecutive   int
	MaxMerchantRatio float64
	MaxCategoryRatio float64
}

// Default returns the specification's literal default policy.
func Default() Policy {
	return Policy{MaxConsecutive: 1, MaxMerchantRatio: 0.25, MaxCategoryRatio: 0.40}
}

// Item is the minimal shape the re-ranker needs: an opaque id plus the
// merchant/category it belongs to. Callers map their scored products
// into Items, re-rank, then project back.
type Item struct {
	ID         string
	MerchantID string
	CategoryID string
}

// Rerank reorders items (already score-sorted descending) to satisfy
// the policy's quotas, preserving the original relative order as the
// tie-break and fallback order. Rerank is deterministic given the
// input order.
func Rerank(items []Item, policy Policy) []Item {
	n := len(items)
	if n == 0 {
		return items
	}

	mMax := ceilRatio(n, policy.MaxMerchantRatio)
	cMax := ceilRatio(n, policy.MaxCategoryRatio)
	maxConsecutive := policy.MaxConsecutive
	if maxConsecutive < 1 {
		maxConsecutive = 1
	}

	pool := make([]Item, len(items))
	copy(pool, items)

	out := make([]Item, 0, n)
	merchantCount := make(map[string]int)
	categoryCount := make(map[string]int)
	tailMerchant := ""
	tailRun := 0

	for len(out) < n && len(pool) > 0 {
		idx := -1
		for i, it := range pool {
			if merchantCount[it.MerchantID] >= mMax {
				continue
			}
			if categoryCount[it.CategoryID] >= cMax {
				continue
			}
			if it.MerchantID == tailMerchant && tailRun >= maxConsecutive {
				continue
			}
			idx = i
			break
		}
		if idx == -1 {
			// Relaxation: constraints become advisory, take the pool head.
			idx = 0
		}

		chosen := pool[idx]
		pool = append(pool[:idx], pool[idx+1:]...)
		out = append(out, chosen)

		merchantCount[chosen.MerchantID]++
		categoryCount[chosen.CategoryID]++
		if chosen.MerchantID == tailMerchant {
			tailRun++
		} else {
			tailMerchant = chosen.MerchantID
			tailRun = 1
		}

		if len(out) == n {
			break
		}
	}

	return out
}

func ceilRatio(n int, ratio float64) int {
	v := int(math.Ceil(float64(n) * ratio))
	if v < 1 {
		v = 1
	}
	return v
}

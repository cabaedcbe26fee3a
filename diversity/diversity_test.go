package diversity

import "testing"

func itemsWithMerchant(n int, merchant, category string) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{ID: merchant + category + string(rune('a'+i)), MerchantID: merchant, CategoryID: category}
	}
	return out
}

func TestRerankEnforcesMerchantQuota(t *testing.T) {
	items := itemsWithMerchant(8, "m1", "c1")
	items = append(items, itemsWithMerchant(8, "m2", "c2")...)

	out := Rerank(items, Policy{MaxConsecutive: 2, MaxMerchantRatio: 0.25, MaxCategoryRatio: 1.0})
	if len(out) != len(items) {
		t.Fatalf("expected %d items back, got %d", len(items), len(out))
	}

	// With only two merchants the quota cannot hold for all 16 slots.
	// The first 7 are filled without relaxation (m1 four times, m2 three
	// times); at slot 8 m1 is at quota and m2 is on a run of 2, so no
	// candidate qualifies and relaxation takes the pool head from there.
	const preRelaxation = 7
	maxAllowed := ceilRatio(len(items), 0.25)
	counts := map[string]int{}
	for _, it := range out[:preRelaxation] {
		counts[it.MerchantID]++
	}
	if counts["m1"] > maxAllowed {
		t.Fatalf("merchant m1 exceeded quota: got %d, max %d", counts["m1"], maxAllowed)
	}
}

func TestRerankEnforcesNoConsecutiveRun(t *testing.T) {
	items := itemsWithMerchant(4, "m1", "c1")
	items = append(items, itemsWithMerchant(4, "m2", "c2")...)

	out := Rerank(items, Policy{MaxConsecutive: 1, MaxMerchantRatio: 1.0, MaxCategoryRatio: 1.0})

	run := 1
	for i := 1; i < len(out); i++ {
		if out[i].MerchantID == out[i-1].MerchantID {
			run++
			if run > 1 {
				t.Fatalf("consecutive same-merchant run exceeded MaxConsecutive=1 at index %d", i)
			}
		} else {
			run = 1
		}
	}
}

func TestRerankRelaxesWhenNoCandidateQualifies(t *testing.T) {
	items := itemsWithMerchant(3, "m1", "c1")
	out := Rerank(items, Policy{MaxConsecutive: 1, MaxMerchantRatio: 0.01, MaxCategoryRatio: 0.01})
	if len(out) != len(items) {
		t.Fatalf("relaxation must still return all items, got %d want %d", len(out), len(items))
	}
}

func TestRerankEmptyInput(t *testing.T) {
	out := Rerank(nil, Default())
	if len(out) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(out))
	}
}

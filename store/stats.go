package store

// Approximate tier statistics. Counters are bumped lock-free on the
// hot path, so every rate below is best-effort: under churn the hit
// and miss snapshots for one segment may straddle a mutation.
//
// Each rate is the mean of the per-segment rates, not their sum: a sum
// would grow with the segment count and stop being a rate at all, and
// could never be compared between stores sharded differently.

// ApproximateHeapHitRate estimates the fraction of heap-tier reads
// that hit, averaged across segments.
func (st *Store[K, V]) ApproximateHeapHitRate() float64 {
	return st.meanRate(func(hh, hm, dh, dm int64) (int64, int64) { return hh, hh + hm })
}

// ApproximateHeapMissRate estimates the fraction of heap-tier reads
// that missed, averaged across segments.
func (st *Store[K, V]) ApproximateHeapMissRate() float64 {
	return st.meanRate(func(hh, hm, dh, dm int64) (int64, int64) { return hm, hh + hm })
}

// ApproximateDiskHitRate estimates the fraction of disk-tier reads
// that hit, averaged across segments.
func (st *Store[K, V]) ApproximateDiskHitRate() float64 {
	return st.meanRate(func(hh, hm, dh, dm int64) (int64, int64) { return dh, dh + dm })
}

// ApproximateDiskMissRate estimates the fraction of disk-tier reads
// that missed, averaged across segments.
func (st *Store[K, V]) ApproximateDiskMissRate() float64 {
	return st.meanRate(func(hh, hm, dh, dm int64) (int64, int64) { return dm, dh + dm })
}

func (st *Store[K, V]) meanRate(pick func(hh, hm, dh, dm int64) (num, den int64)) float64 {
	sum := 0.0
	for _, seg := range st.segments {
		num, den := pick(seg.tierCounters())
		if den > 0 {
			sum += float64(num) / float64(den)
		}
	}
	return sum / float64(len(st.segments))
}

// IsResident reports whether key's current substitute is the in-heap
// identity representation, i.e. the Element itself rather than a
// proxy. Absent keys report false. No decode happens and no hit/miss
// is recorded.
func (st *Store[K, V]) IsResident(key K) bool {
	sub, ok := st.UnretrievedGet(key)
	if !ok {
		return false
	}
	_, isElement := sub.(*Element[K, V])
	return isElement
}

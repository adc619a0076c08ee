package raster

// firstTrueIndex returns the smallest i in [lo, hi) with pred(i) true,
// assuming pred is false...false true...true over the range. It returns hi
// when pred is false everywhere.
func firstTrueIndex(lo, hi int, pred func(i int) bool) int {
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pred(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

package utils

// SafeInt64ToUint64 safely converts int64 to uint64.
// If the value is negative, it returns 0.
func SafeInt64ToUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

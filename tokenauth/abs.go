package tokenauth // import "github.com/seafhttp/upload/tokenauth"

// abs64 returns the distance between two Unix timestamps regardless of
// which one is larger, tolerating the wrap-around that a naive
// subtraction of two uint64 clock readings would otherwise produce.
func abs64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

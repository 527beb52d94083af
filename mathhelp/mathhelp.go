package mathhelp

// EuclidianMod is d mod m with the sign of m, so ring indices wrap around in both directions.
func EuclidianMod(d, m int) int {
	r := d % m
	if (r < 0 && m > 0) || (r > 0 && m < 0) {
		return r + m
	}
	return r
}

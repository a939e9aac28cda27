package selfcheck

// Drift оценивает уход CLOCK_REALTIME относительно CLOCK_MONOTONIC_RAW по строкам проверки:
// наклон регрессии (realtime - raw) по raw в ppm. ok == false, если строк меньше трёх
// или все показания raw совпадают.
func Drift(rs []Row) (ppm float64, ok bool) {
	if len(rs) < 3 {
		return 0, false
	}
	x0, y0 := rs[0].RawNs, rs[0].RealNs-rs[0].RawNs
	n := float64(len(rs))
	var sumX, sumY, sumXY, sumX2 float64
	for _, r := range rs {
		x := float64(r.RawNs-x0) / 1e9
		y := float64(r.RealNs - r.RawNs - y0)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	// ns/s == ppb
	return (n*sumXY - sumX*sumY) / denom / 1e3, true
}

package correlation

import "math"

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Pearson returns the linear correlation coefficient of two equally long
// series. Zero variance in either series yields 0.
func Pearson(x []float64, y []float64) float64 {
	n := len(x)
	if n == 0 || len(y) != n {
		return 0
	}
	meanX := mean(x)
	meanY := mean(y)

	var numerator float64
	var denomX float64
	var denomY float64

	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		numerator += dx * dy
		denomX += dx * dx
		denomY += dy * dy
	}

	if denomX == 0 || denomY == 0 {
		return 0
	}

	corr := numerator / math.Sqrt(denomX*denomY)
	if corr > 1 {
		return 1
	}
	if corr < -1 {
		return -1
	}
	return corr
}

// PercentReturns returns the period-over-period percentage change of a
// series, skipping steps whose base is not positive.
func PercentReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 {
			continue
		}
		returns = append(returns, (series[i]-series[i-1])/series[i-1]*100)
	}
	return returns
}

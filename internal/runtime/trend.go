package runtime

import "math"

// Significance thresholds for trend detection. The leak check uses the
// stricter correlation bound.
const (
	minTrendPoints       = 5
	trendConfidenceBound = 0.6
	leakConfidenceBound  = 0.7
	trendSlopeBound      = 0.1
)

// TrendAnalyzer fits linear trends to metric time series. It is a simple,
// explainable heuristic: ordinary least squares over sample index, with
// Pearson correlation as the confidence measure.
type TrendAnalyzer struct{}

// NewTrendAnalyzer creates a trend analyzer.
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{}
}

// Analyze fits a line to values (sampled at uniform intervals) and reports
// direction, confidence, and significance. Fewer than five points is never
// significant.
func (t *TrendAnalyzer) Analyze(values []float64, metric string) Trend {
	trend := Trend{Metric: metric}
	if len(values) < minTrendPoints {
		return trend
	}

	slope, confidence := fitLine(values)
	trend.Slope = slope
	trend.Confidence = confidence

	if slope > 0 {
		trend.Direction = "increasing"
	} else {
		trend.Direction = "decreasing"
	}

	trend.Significant = math.Abs(confidence) > trendConfidenceBound &&
		math.Abs(slope) > trendSlopeBound
	if trend.Significant {
		trend.Severity = severityFor(metric, values, slope)
	}
	return trend
}

// AnalyzeLeak applies the stricter memory-leak significance check: it keeps
// the slope requirement out (RSS slopes are in bytes and always large) but
// demands a correlation above the leak bound.
func (t *TrendAnalyzer) AnalyzeLeak(values []float64) Trend {
	trend := Trend{Metric: "memory_rss"}
	if len(values) < minTrendPoints {
		return trend
	}

	slope, confidence := fitLine(values)
	trend.Slope = slope
	trend.Confidence = confidence
	if slope > 0 {
		trend.Direction = "increasing"
	} else {
		trend.Direction = "decreasing"
	}
	trend.Significant = math.Abs(confidence) > leakConfidenceBound
	if trend.Significant && slope > 0 {
		trend.Severity = SeverityHigh
	}
	return trend
}

// fitLine computes the OLS slope of values over their indices and the
// Pearson correlation between index and value.
func fitLine(values []float64) (slope, correlation float64) {
	n := float64(len(values))

	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}

	denomX := n*sumXX - sumX*sumX
	if denomX == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denomX

	denomY := n*sumYY - sumY*sumY
	if denomY <= 0 {
		// Constant series: no correlation with time.
		return slope, 0
	}
	correlation = (n*sumXY - sumX*sumY) / math.Sqrt(denomX*denomY)
	return slope, correlation
}

// severityFor maps a significant trend to a severity by metric.
func severityFor(metric string, values []float64, slope float64) string {
	current := values[len(values)-1]

	switch metric {
	case "cpu_percent":
		switch {
		case current > 90:
			return SeverityCritical
		case current > 70:
			return SeverityHigh
		case math.Abs(slope) > 1:
			return SeverityMedium
		default:
			return SeverityLow
		}
	case "memory_percent":
		// Sustained growth of ~10% of the running average per interval.
		if slope >= mean(values)*0.1 {
			return SeverityHigh
		}
		return SeverityMedium
	default:
		if math.Abs(slope) > 1 {
			return SeverityMedium
		}
		return SeverityLow
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

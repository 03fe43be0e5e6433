package sales

import "fmt"

// Metric selects which accumulator a ranking or anomaly query reads.
type Metric string

const (
	MetricQuantity    Metric = "quantity"
	MetricRevenue     Metric = "revenue"
	MetricOccurrences Metric = "occurrences"
)

// ParseMetric parses the wire form of a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricQuantity, MetricRevenue, MetricOccurrences:
		return Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q (must be quantity, revenue, or occurrences)", s)
	}
}

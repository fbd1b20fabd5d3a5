package ranking

import (
	"math"
	"slices"

	"github.com/aclements/go-moremath/stats"

	"github.com/abelbrown/lineup/internal/model"
)

// BoxPlot summarizes the distribution of a numeric column over some rows.
// Quartiles are interpolated; missing values are counted but not included.
type BoxPlot struct {
	Min     float64 `json:"min"`
	Q1      float64 `json:"q1"`
	Median  float64 `json:"median"`
	Q3      float64 `json:"q3"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
}

// Empty reports whether no present value contributed.
func (b BoxPlot) Empty() bool { return b.Count == 0 }

// Summarize computes a box plot over values. NaN counts as missing.
func Summarize(values []float64) BoxPlot {
	xs := make([]float64, 0, len(values))
	var bp BoxPlot
	for _, v := range values {
		if math.IsNaN(v) {
			bp.Missing++
			continue
		}
		xs = append(xs, v)
	}
	bp.Count = len(xs)
	if bp.Count == 0 {
		return bp
	}
	slices.Sort(xs)
	s := stats.Sample{Xs: xs, Sorted: true}
	bp.Min = xs[0]
	bp.Max = xs[len(xs)-1]
	bp.Q1 = s.Quantile(0.25)
	bp.Median = s.Quantile(0.5)
	bp.Q3 = s.Quantile(0.75)
	bp.Mean = s.Mean()
	return bp
}

// SummarizeColumn collects the normalized values of col over the rows with
// the given indices and summarizes them.
func SummarizeColumn(col model.NumericLike, rows []model.Row, indices []int) BoxPlot {
	values := make([]float64, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(rows) {
			continue
		}
		values = append(values, col.NormalizedValue(rows[idx]))
	}
	return Summarize(values)
}

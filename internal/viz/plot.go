package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/metrics"
)

// Plot charts one summary quantity against the report index. A width or
// height of zero lets asciigraph pick.
func Plot(summaries []dynamo.Summary, quantity string, width, height int) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("viz: nothing to plot")
	}
	q, err := metrics.Lookup(quantity)
	if err != nil {
		return "", err
	}
	data := make([]float64, len(summaries))
	for i, s := range summaries {
		data[i] = q(s)
	}

	opts := []asciigraph.Option{
		asciigraph.Caption(fmt.Sprintf("%s, steps %d-%d", quantity, summaries[0].Step, summaries[len(summaries)-1].Step)),
	}
	if width > 0 {
		opts = append(opts, asciigraph.Width(width))
	}
	if height > 0 {
		opts = append(opts, asciigraph.Height(height))
	}
	return asciigraph.Plot(data, opts...), nil
}

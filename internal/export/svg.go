package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/metrics"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/viz"
)

const background = "#0a0a0a"

// Style sets the colours and size of an exported image.
type Style struct {
	Background string
	Foreground string
	// Scale is the size of one canvas dot in SVG units.
	Scale float64
}

// StyleFor derives an SVG style from a terminal theme.
func StyleFor(theme viz.Theme) Style {
	return Style{Background: background, Foreground: string(theme.Primary), Scale: 4}
}

// CanvasToSVG writes every set dot of the canvas as a circle.
func CanvasToSVG(w io.Writer, c *viz.Canvas, style Style) error {
	if c == nil {
		return fmt.Errorf("export: nil canvas")
	}
	pw, ph := c.Pixels()
	width := float64(pw) * style.Scale
	height := float64(ph) * style.Scale

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
<g fill="%s">
`, width, height, width, height, style.Background, style.Foreground)

	r := style.Scale * 0.4
	for y := 0; y < ph; y++ {
		for x := 0; x < pw; x++ {
			if !c.IsSet(x, y) {
				continue
			}
			cx := float64(x)*style.Scale + style.Scale/2
			cy := float64(y)*style.Scale + style.Scale/2
			fmt.Fprintf(bw, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n", cx, cy, r)
		}
	}
	bw.WriteString("</g>\n</svg>\n")
	return bw.Flush()
}

// SnapshotToSVG projects a stored configuration onto a canvas of
// width x height characters and writes it as SVG.
func SnapshotToSVG(w io.Writer, snap particles.Snapshot, p *viz.Projection, width, height int, style Style) error {
	st, err := particles.FromSnapshot(snap)
	if err != nil {
		return err
	}
	c := viz.NewCanvas(width, height)
	p.Draw(c, st)
	return CanvasToSVG(w, c, style)
}

// SeriesToSVG draws one summary quantity against simulated time as a
// polyline with 10% padding around its range.
func SeriesToSVG(w io.Writer, summaries []dynamo.Summary, quantity string, width, height int, style Style) error {
	if len(summaries) < 2 {
		return fmt.Errorf("export: need at least two summaries to draw %s", quantity)
	}
	q, err := metrics.Lookup(quantity)
	if err != nil {
		return err
	}

	minX, maxX := summaries[0].Time, summaries[0].Time
	minY, maxY := q(summaries[0]), q(summaries[0])
	for _, s := range summaries {
		v := q(s)
		minX, maxX = math.Min(minX, s.Time), math.Max(maxX, s.Time)
		minY, maxY = math.Min(minY, v), math.Max(maxY, v)
	}
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="`, width, height, width, height, style.Background, style.Foreground)

	for i, s := range summaries {
		x := (s.Time - minX) / rangeX * float64(width)
		y := float64(height) - (q(s)-minY)/rangeY*float64(height)
		if i == 0 {
			fmt.Fprintf(bw, "M%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(bw, " L%.1f,%.1f", x, y)
		}
	}
	fmt.Fprintf(bw, "\"/>\n<text x=\"8\" y=\"16\" fill=\"%s\" font-family=\"monospace\" font-size=\"12\">%s</text>\n</svg>\n", style.Foreground, quantity)
	return bw.Flush()
}

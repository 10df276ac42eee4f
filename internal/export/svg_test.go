package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/particles"
	"github.com/san-kum/mdsim/internal/viz"
)

func TestCanvasToSVG(t *testing.T) {
	c := viz.NewCanvas(2, 1)
	c.Set(0, 0)
	c.Set(3, 3)

	var buf bytes.Buffer
	style := StyleFor(viz.Themes[0])
	if err := CanvasToSVG(&buf, c, style); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if got := strings.Count(out, "<circle"); got != 2 {
		t.Fatalf("circles = %d, want 2", got)
	}
	if !strings.Contains(out, `width="16" height="16"`) {
		t.Errorf("unexpected size in %q", out[:120])
	}
	if !strings.Contains(out, `cx="14.0" cy="14.0"`) {
		t.Error("missing dot at pixel (3, 3)")
	}
	if !strings.Contains(out, string(viz.Themes[0].Primary)) {
		t.Error("foreground colour not applied")
	}

	if err := CanvasToSVG(&buf, nil, style); err == nil {
		t.Error("expected an error for a nil canvas")
	}
}

func TestSnapshotToSVG(t *testing.T) {
	st, err := particles.Lattice(particles.SimpleCubic, 2, 16, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	p := viz.NewProjection()
	p.Outline = false

	var buf bytes.Buffer
	if err := SnapshotToSVG(&buf, st.Snapshot(), p, 40, 20, StyleFor(viz.ThemeMinimal)); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(buf.String(), "<circle"); got != 16 {
		t.Errorf("circles = %d, want one per particle", got)
	}
}

func TestSeriesToSVG(t *testing.T) {
	summaries := []dynamo.Summary{
		{Step: 10, Time: 0.1, Temperature: 1.0},
		{Step: 20, Time: 0.2, Temperature: 1.5},
		{Step: 30, Time: 0.3, Temperature: 1.2},
	}
	var buf bytes.Buffer
	if err := SeriesToSVG(&buf, summaries, "temperature", 300, 100, StyleFor(viz.ThemeRetro)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, " L") != 2 || !strings.Contains(out, `d="M`) {
		t.Errorf("path does not visit every summary: %s", out)
	}
	if !strings.Contains(out, ">temperature</text>") {
		t.Error("missing caption")
	}

	if err := SeriesToSVG(&buf, summaries[:1], "temperature", 300, 100, Style{}); err == nil {
		t.Error("expected an error for a single summary")
	}
	if err := SeriesToSVG(&buf, summaries, "entropy", 300, 100, Style{}); err == nil {
		t.Error("expected an error for an unknown quantity")
	}
}

package viz

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/san-kum/mdsim/internal/dynamo"
	"github.com/san-kum/mdsim/internal/sim"
)

const (
	canvasWidth     = 48
	canvasHeight    = 20
	historyCapacity = 600
	frameInterval   = time.Second / 30
)

// Quantities that can be charted in the live view, cycled with tab.
var charted = []string{"total", "temperature", "pressure", "potential"}

type TickMsg time.Time

// Live runs a simulator one report at a time and draws the particles and
// a chart of the recent summaries.
type Live struct {
	sim  *sim.Simulator
	name string

	next func() (dynamo.Summary, error, bool)
	stop func()

	canvas *Canvas
	view   *Projection
	theme  Theme
	styles styles

	history []dynamo.Summary
	chart   int
	started time.Time

	paused   bool
	done     bool
	showHelp bool
	err      error
}

// NewLive prepares a live view of numSteps steps reported every
// reportInterval steps. Close must be called if the program exits before
// the run is done.
func NewLive(ctx context.Context, s *sim.Simulator, name string, numSteps, reportInterval int) *Live {
	next, stop := iter.Pull2(s.Run(ctx, numSteps, reportInterval))
	theme := Themes[0]
	return &Live{
		sim:     s,
		name:    name,
		next:    next,
		stop:    stop,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		view:    NewProjection(),
		theme:   theme,
		styles:  newStyles(theme),
		history: make([]dynamo.Summary, 0, historyCapacity),
	}
}

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (l *Live) Init() tea.Cmd {
	l.started = time.Now()
	return tick()
}

func (l *Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			l.Close()
			return l, tea.Quit
		case " ":
			l.paused = !l.paused
		case "tab":
			l.chart = (l.chart + 1) % len(charted)
		case "t":
			l.theme = nextTheme(l.theme)
			l.styles = newStyles(l.theme)
		case "o":
			l.view.Outline = !l.view.Outline
		case "x":
			l.view.Camera.RotateX(0.1)
		case "X":
			l.view.Camera.RotateX(-0.1)
		case "y":
			l.view.Camera.RotateY(0.1)
		case "Y":
			l.view.Camera.RotateY(-0.1)
		case "z":
			l.view.Camera.RotateZ(0.1)
		case "Z":
			l.view.Camera.RotateZ(-0.1)
		case "+", "=":
			l.view.Camera.ZoomIn()
		case "-", "_":
			l.view.Camera.ZoomOut()
		case "?":
			l.showHelp = !l.showHelp
		}
	case TickMsg:
		if !l.paused && !l.done {
			l.advance()
		}
		return l, tick()
	}
	return l, nil
}

// advance pulls the next report from the run.
func (l *Live) advance() {
	s, err, ok := l.next()
	if !ok {
		l.finish(nil)
		return
	}
	if err != nil {
		l.finish(err)
		return
	}
	l.history = append(l.history, s)
	if len(l.history) > historyCapacity {
		l.history = l.history[1:]
	}
}

func (l *Live) finish(err error) {
	l.done, l.err = true, err
	l.stop()
}

// Close stops the run. It is safe to call more than once.
func (l *Live) Close() { l.stop() }

// Err is the error that ended the run, if any.
func (l *Live) Err() error { return l.err }

func (l *Live) Done() bool { return l.done }

// Summaries returns the reports still held in the history window.
func (l *Live) Summaries() []dynamo.Summary { return l.history }

func (l *Live) status() string {
	switch {
	case l.err != nil:
		return l.styles.failed.Render("FAILED")
	case l.done:
		return l.styles.status.Render("DONE")
	case l.paused:
		return l.styles.paused.Render("PAUSED")
	}
	return l.styles.status.Render("RUNNING")
}

func (l *Live) row(label, value string) string {
	return l.styles.label.Render(label) + l.styles.value.Render(value) + "\n"
}

func (l *Live) View() string {
	st := l.sim.State()
	l.view.Draw(l.canvas, st)
	canvasView := l.styles.canvas.Render(l.canvas.String())

	var b strings.Builder
	b.WriteString(l.styles.header.Render(strings.ToUpper(l.name)) + "\n")
	b.WriteString(l.status() + "\n\n")

	if n := len(l.history); n > 0 {
		s := l.history[n-1]
		b.WriteString(l.row("Step", humanize.Comma(int64(s.Step))))
		b.WriteString(l.row("Time", fmt.Sprintf("%.4f", s.Time)))
		b.WriteString(l.row("Total", fmt.Sprintf("%.6f", s.Total()/float64(max(st.N, 1)))))
		b.WriteString(l.row("Potential", fmt.Sprintf("%.6f", s.Potential/float64(max(st.N, 1)))))
		b.WriteString(l.row("Temperature", fmt.Sprintf("%.4f", s.Temperature)))
		b.WriteString(l.row("Pressure", fmt.Sprintf("%.4f", s.Pressure)))
		b.WriteString(l.row("Rebuilds", humanize.Comma(int64(s.Rebuilds))))
		if elapsed := time.Since(l.started).Seconds(); !l.started.IsZero() && elapsed > 0 {
			b.WriteString(l.row("Rate", humanize.SIWithDigits(float64(s.Step)/elapsed, 1, "steps/s")))
		}
	}
	b.WriteString(l.row("Particles", humanize.Comma(int64(st.N))))
	b.WriteString(l.row("Integrator", l.sim.Integrator().Name()))
	b.WriteString(l.row("Launch", l.sim.Launch().String()))

	if len(l.history) > 1 {
		chart, err := Plot(l.history, charted[l.chart], 30, 5)
		if err == nil {
			b.WriteString(l.styles.graph.Render(chart) + "\n")
		}
	}
	if l.err != nil {
		b.WriteString(l.styles.failed.Render(l.err.Error()) + "\n")
	}
	b.WriteString(l.styles.help.Render("space:pause  tab:chart  t:theme  q:quit  ?:help"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, l.styles.panel.Render(b.String()))
	if l.showHelp {
		return l.styles.panel.Render(helpText) + "\n" + main
	}
	return main
}

const helpText = `space     pause or resume
tab       cycle the charted quantity
x y z     rotate the view (shift reverses)
+ -       zoom
o         toggle the box outline
t         cycle themes
q         quit`

// Package viz draws simulations in the terminal.
//
// [Live] is a Bubble Tea model that advances a simulator one report per
// frame, plots the particles on a braille [Canvas] and charts recent
// summaries. [Plot] renders a stored scalar series for the plot command.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	Tab   - Cycle the charted quantity
//	x y z - Rotate the view of 3D systems (shift reverses)
//	+ -   - Zoom
//	T     - Cycle color themes
//	?     - Show help
//	Q     - Quit
package viz

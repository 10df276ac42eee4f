package viz

import (
	"math"

	"github.com/san-kum/mdsim/internal/particles"
)

type Vec3 struct {
	X, Y, Z float64
}

// Camera looks at the box centre from +z and projects with a weak
// perspective. Rotations are applied in x, y, z order.
type Camera struct {
	RotX, RotY, RotZ float64
	Zoom             float64
	// Distance from the eye to the box centre in units of the box size.
	Distance float64
}

func NewCamera() *Camera {
	return &Camera{RotX: 0.35, RotY: -0.5, Zoom: 1, Distance: 3}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

func (c *Camera) rotate(p Vec3) Vec3 {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p.X, p.Y = p.X*cz-p.Y*sz, p.X*sz+p.Y*cz
	return p
}

// Project maps p, given in units of the box size around its centre, to
// pixel coordinates on a w x h canvas. Points behind the eye are not
// visible.
func (c *Camera) Project(p Vec3, w, h int) (x, y int, visible bool) {
	r := c.rotate(p)
	if r.Z >= c.Distance {
		return 0, 0, false
	}
	scale := c.Zoom * c.Distance / (c.Distance - r.Z) * 0.35 * float64(min(w, h))
	x = int(math.Round(r.X*scale)) + w/2
	y = int(math.Round(-r.Y*scale)) + h/2
	return x, y, x >= 0 && x < w && y >= 0 && y < h
}

// Projection draws particle configurations. Three dimensional systems go
// through the camera; one and two dimensional systems are drawn flat.
type Projection struct {
	Camera *Camera
	// Outline draws the box edges.
	Outline bool
}

func NewProjection() *Projection {
	return &Projection{Camera: NewCamera(), Outline: true}
}

// Draw clears c and plots every particle of st as a dot.
func (p *Projection) Draw(c *Canvas, st *particles.State) int {
	c.Clear()
	w, h := c.Pixels()
	size := 0.0
	for k := 0; k < st.D; k++ {
		size = math.Max(size, st.Box.Length(k))
	}
	if size == 0 {
		return 0
	}

	toUnit := func(x []float64) Vec3 {
		var v Vec3
		coords := []*float64{&v.X, &v.Y, &v.Z}
		for k := 0; k < st.D && k < 3; k++ {
			*coords[k] = (x[k] - 0.5*st.Box.Length(k)) / size
		}
		return v
	}

	if p.Outline {
		p.drawBox(c, st, size)
	}
	drawn := 0
	for i := 0; i < st.N; i++ {
		x, y, ok := p.project(toUnit(st.Pos(i)), st.D, w, h)
		if ok {
			c.Set(x, y)
			drawn++
		}
	}
	return drawn
}

func (p *Projection) project(v Vec3, dim, w, h int) (int, int, bool) {
	if dim == 3 {
		return p.Camera.Project(v, w, h)
	}
	scale := 0.9 * float64(min(w, h)) * p.Camera.Zoom
	x := int(math.Round(v.X*scale)) + w/2
	y := int(math.Round(-v.Y*scale)) + h/2
	return x, y, x >= 0 && x < w && y >= 0 && y < h
}

func (p *Projection) drawBox(c *Canvas, st *particles.State, size float64) {
	w, h := c.Pixels()
	half := make([]float64, 3)
	for k := 0; k < st.D && k < 3; k++ {
		half[k] = 0.5 * st.Box.Length(k) / size
	}
	corners := make([]Vec3, 0, 8)
	for m := 0; m < 8; m++ {
		v := Vec3{-half[0], -half[1], -half[2]}
		if m&1 != 0 {
			v.X = half[0]
		}
		if m&2 != 0 {
			v.Y = half[1]
		}
		if m&4 != 0 {
			v.Z = half[2]
		}
		corners = append(corners, v)
	}
	for a := range corners {
		for _, bit := range []int{1, 2, 4} {
			b := a | bit
			if b == a {
				continue
			}
			x0, y0, ok0 := p.project(corners[a], st.D, w, h)
			x1, y1, ok1 := p.project(corners[b], st.D, w, h)
			if ok0 && ok1 {
				c.DrawLine(x0, y0, x1, y1)
			}
		}
	}
}

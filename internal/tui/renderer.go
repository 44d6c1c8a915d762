// Package tui renders a liquidbox World into a terminal.
package tui

import (
	"math"

	"github.com/bytearena/liquidbox"
	"github.com/gdamore/tcell/v2"
)

// Renderer implements liquidbox.Draw on a tcell screen. World points map
// to cells around Center, Scale cells per metre vertically and twice that
// horizontally, since terminal cells are about twice as tall as wide.
type Renderer struct {
	screen tcell.Screen
	flags  liquidbox.DrawFlags

	Center liquidbox.Vec2
	Scale  float64
}

var _ liquidbox.Draw = (*Renderer)(nil)

func NewRenderer(screen tcell.Screen, flags liquidbox.DrawFlags) *Renderer {
	return &Renderer{screen: screen, flags: flags, Scale: 2}
}

func (r *Renderer) Flags() liquidbox.DrawFlags {
	return r.flags
}

func (r *Renderer) SetFlags(flags liquidbox.DrawFlags) {
	r.flags = flags
}

// Cell maps a world point to a screen cell. The result may be off
// screen.
func (r *Renderer) Cell(p liquidbox.Vec2) (x, y int) {
	w, h := r.screen.Size()
	x = w/2 + int(math.Round((p.X-r.Center.X)*r.Scale*2))
	y = h/2 - int(math.Round((p.Y-r.Center.Y)*r.Scale))
	return x, y
}

func style(c liquidbox.Color) tcell.Style {
	return tcell.StyleDefault.Foreground(tcell.NewRGBColor(
		int32(c.R*255), int32(c.G*255), int32(c.B*255),
	))
}

func (r *Renderer) set(x, y int, ch rune, st tcell.Style) {
	w, h := r.screen.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	r.screen.SetContent(x, y, ch, nil, st)
}

// line draws a cell line with Bresenham's algorithm.
func (r *Renderer) line(x0, y0, x1, y1 int, ch rune, st tcell.Style) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		r.set(x0, y0, ch, st)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (r *Renderer) segment(p1, p2 liquidbox.Vec2, ch rune, st tcell.Style) {
	x0, y0 := r.Cell(p1)
	x1, y1 := r.Cell(p2)
	r.line(x0, y0, x1, y1, ch, st)
}

func (r *Renderer) polygon(vertices []liquidbox.Vec2, ch rune, st tcell.Style) {
	for i := range vertices {
		r.segment(vertices[i], vertices[(i+1)%len(vertices)], ch, st)
	}
}

func (r *Renderer) DrawPolygon(vertices []liquidbox.Vec2, color liquidbox.Color) {
	r.polygon(vertices, '.', style(color))
}

func (r *Renderer) DrawSolidPolygon(vertices []liquidbox.Vec2, color liquidbox.Color) {
	r.polygon(vertices, '#', style(color))
}

func (r *Renderer) circle(center liquidbox.Vec2, radius float64, ch rune, st tcell.Style) {
	// Enough vertices that neighbouring cells touch.
	n := max(8, int(2*math.Pi*radius*r.Scale*2))
	vertices := make([]liquidbox.Vec2, n)
	for i := range vertices {
		a := 2 * math.Pi * float64(i) / float64(n)
		vertices[i] = center.Add(liquidbox.Vec2{X: radius * math.Cos(a), Y: radius * math.Sin(a)})
	}
	r.polygon(vertices, ch, st)
}

func (r *Renderer) DrawCircle(center liquidbox.Vec2, radius float64, color liquidbox.Color) {
	r.circle(center, radius, '.', style(color))
}

func (r *Renderer) DrawSolidCircle(center liquidbox.Vec2, radius float64, axis liquidbox.Vec2, color liquidbox.Color) {
	st := style(color)
	r.circle(center, radius, 'o', st)
	r.segment(center, center.Add(axis.Scale(radius)), '-', st)
}

func (r *Renderer) DrawSegment(p1, p2 liquidbox.Vec2, color liquidbox.Color) {
	r.segment(p1, p2, '=', style(color))
}

func (r *Renderer) DrawTransform(xf liquidbox.Transform) {
	x, y := r.Cell(xf.P)
	r.set(x, y, '+', tcell.StyleDefault.Foreground(tcell.ColorWhite))
}

func (r *Renderer) DrawPoint(p liquidbox.Vec2, size float64, color liquidbox.Color) {
	x, y := r.Cell(p)
	r.set(x, y, '*', style(color))
}

// DrawParticles draws one cell per particle; particles sharing a cell
// overwrite each other.
func (r *Renderer) DrawParticles(centers []liquidbox.Vec2, radius float64, colors []liquidbox.ParticleColor) {
	water := tcell.StyleDefault.Foreground(tcell.ColorDodgerBlue)
	for i, p := range centers {
		st := water
		if colors != nil && !colors[i].IsZero() {
			st = style(colors[i].Color())
		}
		x, y := r.Cell(p)
		r.set(x, y, '~', st)
	}
}

// Text writes s starting at cell (x, y).
func (r *Renderer) Text(x, y int, s string) {
	for i, ch := range []rune(s) {
		r.set(x+i, y, ch, tcell.StyleDefault)
	}
}

// Render draws w onto the screen with a status line and shows it.
func (r *Renderer) Render(w *liquidbox.World, status string) {
	r.screen.Clear()
	w.SetDebugDraw(r)
	w.DrawDebugData()
	r.Text(0, 0, status)
	r.screen.Show()
}

package drift

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorMarker  = color.RGBA{0x1f, 0x77, 0xb4, 0xff}
	colorHeading = color.RGBA{0x0b, 0x3c, 0x5d, 0xff}
	colorMapX    = color.RGBA{0xd6, 0x27, 0x28, 0xff}
	colorMapY    = color.RGBA{0x2c, 0xa0, 0x2c, 0xff}
	colorOdom    = color.RGBA{0xff, 0x7f, 0x0e, 0xff}
	colorLabel   = color.RGBA{0x00, 0x00, 0x00, 0xff}
)

// LayoutRenderer draws the marker layout in the map frame together with the
// odom frame placed by the current correction.
type LayoutRenderer struct {
	Layout         MarkerLayout
	Correction     *TransformStamped
	PixelsPerMeter float64
	Padding        float64 // meters around the drawn content
	MarkerRadius   float64 // meters
	AxisLength     float64 // meters
}

// NewLayoutRenderer creates a renderer with default scale
func NewLayoutRenderer(layout MarkerLayout, correction *TransformStamped) *LayoutRenderer {
	return &LayoutRenderer{
		Layout:         layout,
		Correction:     correction,
		PixelsPerMeter: 100,
		Padding:        0.5,
		MarkerRadius:   0.08,
		AxisLength:     0.3,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the layout as SVG
func (r *LayoutRenderer) RenderToSVG(w io.Writer) error {
	bound := r.bounds()
	width, height := r.canvasSize(bound)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, bound, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the layout as PNG with marker ids labelled
func (r *LayoutRenderer) RenderToPNG(w io.Writer) error {
	bound := r.bounds()
	width, height := r.canvasSize(bound)

	// one canvas unit per pixel
	rast := rasterizer.New(width, height, canvas.DPMM(1.0), canvas.DefaultColorSpace)
	r.renderToCanvas(rast, bound, width, height)

	pixelHeight := rast.Bounds().Dy()
	for _, km := range r.sortedMarkers() {
		cx, cy := r.toCanvas(bound, km.Position.X, km.Position.Y)
		labelX := int(cx + r.MarkerRadius*r.PixelsPerMeter + 2)
		labelY := pixelHeight - int(cy) + 4
		drawText(rast, labelX, labelY, fmt.Sprintf("%d", km.ID), colorLabel)
	}

	return png.Encode(w, rast)
}

func (r *LayoutRenderer) renderToCanvas(renderer canvasRenderer, bound orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	// map frame axes at the origin
	ox, oy := r.toCanvas(bound, 0, 0)
	r.drawAxes(renderer, ox, oy, 0, colorMapX, colorMapY)

	markerStyle := canvas.DefaultStyle
	markerStyle.Fill = canvas.Paint{Color: colorMarker}
	markerStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	headingStyle := strokeStyle(colorHeading, 2)
	radius := r.MarkerRadius * r.PixelsPerMeter

	for _, km := range r.sortedMarkers() {
		cx, cy := r.toCanvas(bound, km.Position.X, km.Position.Y)
		renderer.RenderPath(canvas.Circle(radius), markerStyle, canvas.Identity.Translate(cx, cy))

		yaw := deg2rad(km.Yaw)
		heading := &canvas.Path{}
		heading.MoveTo(cx, cy)
		heading.LineTo(cx+2*radius*math.Cos(yaw), cy+2*radius*math.Sin(yaw))
		renderer.RenderPath(heading, headingStyle, canvas.Identity)
	}

	if r.Correction != nil {
		t := r.Correction.Transform
		_, _, yaw := EulerFromQuaternion(t.Rotation)
		cx, cy := r.toCanvas(bound, t.Translation.X, t.Translation.Y)
		r.drawAxes(renderer, cx, cy, yaw, colorOdom, colorOdom)
	}
}

func (r *LayoutRenderer) drawAxes(renderer canvasRenderer, cx, cy, yaw float64, xColor, yColor color.RGBA) {
	length := r.AxisLength * r.PixelsPerMeter

	xAxis := &canvas.Path{}
	xAxis.MoveTo(cx, cy)
	xAxis.LineTo(cx+length*math.Cos(yaw), cy+length*math.Sin(yaw))
	renderer.RenderPath(xAxis, strokeStyle(xColor, 3), canvas.Identity)

	yAxis := &canvas.Path{}
	yAxis.MoveTo(cx, cy)
	yAxis.LineTo(cx-length*math.Sin(yaw), cy+length*math.Cos(yaw))
	renderer.RenderPath(yAxis, strokeStyle(yColor, 3), canvas.Identity)
}

// bounds returns the map-frame extent of everything drawn
func (r *LayoutRenderer) bounds() orb.Bound {
	points := orb.MultiPoint{{0, 0}}
	for _, km := range r.Layout {
		points = append(points, orb.Point{km.Position.X, km.Position.Y})
	}
	if r.Correction != nil {
		t := r.Correction.Transform.Translation
		points = append(points, orb.Point{t.X, t.Y})
	}
	return points.Bound()
}

func (r *LayoutRenderer) canvasSize(bound orb.Bound) (float64, float64) {
	width := (bound.Max.X() - bound.Min.X() + 2*r.Padding) * r.PixelsPerMeter
	height := (bound.Max.Y() - bound.Min.Y() + 2*r.Padding) * r.PixelsPerMeter
	return width, height
}

// toCanvas maps map-frame meters to canvas units (origin bottom-left)
func (r *LayoutRenderer) toCanvas(bound orb.Bound, x, y float64) (float64, float64) {
	return (x - bound.Min.X() + r.Padding) * r.PixelsPerMeter,
		(y - bound.Min.Y() + r.Padding) * r.PixelsPerMeter
}

func (r *LayoutRenderer) sortedMarkers() []KnownMarker {
	markers := make([]KnownMarker, 0, len(r.Layout))
	for _, km := range r.Layout {
		markers = append(markers, km)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
	return markers
}

func strokeStyle(c color.RGBA, width float64) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: canvas.Transparent}
	style.Stroke = canvas.Paint{Color: c}
	style.StrokeWidth = width
	return style
}

// drawText renders text onto an image at the specified pixel position
func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

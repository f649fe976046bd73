package deepsort

import (
	"image"
	"math"
)

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func NewPointFrom(point image.Point) Point {
	return Point{
		X: float64(point.X),
		Y: float64(point.Y),
	}
}

// Box is an axis-aligned rectangle given by its edges
type Box struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

func NewBox(left, top, right, bottom float64) Box {
	return Box{
		Left:   left,
		Top:    top,
		Right:  right,
		Bottom: bottom,
	}
}

func NewBoxFrom(rect image.Rectangle) Box {
	return Box{
		Left:   float64(rect.Min.X),
		Top:    float64(rect.Min.Y),
		Right:  float64(rect.Max.X),
		Bottom: float64(rect.Max.Y),
	}
}

// Center returns box's center point
func (b Box) Center() Point {
	return Point{
		X: (b.Left + b.Right) / 2.0,
		Y: (b.Top + b.Bottom) / 2.0,
	}
}

// Width returns box's width
func (b Box) Width() float64 {
	return b.Right - b.Left
}

// Height returns box's height
func (b Box) Height() float64 {
	return b.Bottom - b.Top
}

// Empty reports whether box is the zero-area sentinel
func (b Box) Empty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

// minMeasurementHeight guards degenerate detections: a box with zero or
// negative height must not divide by zero in the aspect ratio nor zero out
// the height-scaled noise terms of the filter.
const minMeasurementHeight = 1e-5

// MeasurementXYAH is the filter's measurement parameterisation of a box:
// center, aspect ratio (width/height) and height.
type MeasurementXYAH struct {
	CenterX     float64
	CenterY     float64
	AspectRatio float64
	Height      float64
}

func NewMeasurementXYAH(box Box) MeasurementXYAH {
	center := box.Center()
	height := box.Height()
	if height < minMeasurementHeight {
		height = minMeasurementHeight
	}
	return MeasurementXYAH{
		CenterX:     center.X,
		CenterY:     center.Y,
		AspectRatio: box.Width() / height,
		Height:      height,
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

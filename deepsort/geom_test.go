package deepsort

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxDerived(t *testing.T) {
	box := NewBox(0.0, 0.0, 10.0, 20.0)
	assert.Equal(t, Point{X: 5.0, Y: 10.0}, box.Center())
	assert.Equal(t, 10.0, box.Width())
	assert.Equal(t, 20.0, box.Height())
	assert.False(t, box.Empty())
	assert.True(t, Box{}.Empty())
}

func TestBoxFromImageRect(t *testing.T) {
	box := NewBoxFrom(image.Rect(3, 4, 13, 24))
	assert.Equal(t, NewBox(3.0, 4.0, 13.0, 24.0), box)
}

func TestMeasurementXYAH(t *testing.T) {
	m := NewMeasurementXYAH(NewBox(0.0, 0.0, 10.0, 20.0))
	assert.Equal(t, 5.0, m.CenterX)
	assert.Equal(t, 10.0, m.CenterY)
	assert.Equal(t, 0.5, m.AspectRatio)
	assert.Equal(t, 20.0, m.Height)
}

func TestMeasurementXYAHDegenerateBox(t *testing.T) {
	// Zero-height boxes must not divide by zero
	m := NewMeasurementXYAH(NewBox(10.0, 10.0, 20.0, 10.0))
	assert.Greater(t, m.Height, 0.0)
	assert.False(t, m.AspectRatio != m.AspectRatio, "aspect ratio must not be NaN")
}

func TestEuclideanDistance(t *testing.T) {
	assert.InDelta(t, 5.0, euclideanDistance(Point{X: 0, Y: 0}, Point{X: 3, Y: 4}), 1e-12)
	assert.Equal(t, 0.0, euclideanDistance(Point{X: 1, Y: 2}, Point{X: 1, Y: 2}))
}

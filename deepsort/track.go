package deepsort

import (
	"log/slog"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TrackState is the lifecycle state of a track
type TrackState uint8

const (
	// TrackStateTentative marks a freshly created track that has not yet
	// accumulated enough hits to be trusted
	TrackStateTentative TrackState = iota
	// TrackStateConfirmed marks an established track
	TrackStateConfirmed
	// TrackStateDeleted marks a track scheduled for removal; it is never
	// visible outside the tracker
	TrackStateDeleted
)

func (s TrackState) String() string {
	switch s {
	case TrackStateTentative:
		return "Tentative"
	case TrackStateConfirmed:
		return "Confirmed"
	case TrackStateDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

const (
	// confirmHits promotes a tentative track once it has been associated
	// this many times
	confirmHits = 3
	// maxTimeSinceUpdate deletes a confirmed track missed for more than
	// this many consecutive frames
	maxTimeSinceUpdate = 30
	// DefaultMaxTraceLength bounds the per-track history of associated
	// boxes
	DefaultMaxTraceLength = 80
	// traceSmoothWindow is the moving-average window of TraceLine
	traceSmoothWindow = 5
)

// TrackObject is the read-only view of a live track exposed to
// collaborators. The concrete track is mutated by the tracker only.
type TrackObject interface {
	ID() int
	State() TrackState
	IsConfirmed() bool
	TimeSinceUpdate() int
	Age() int
	Hits() int
	LastPosition() Box
	PredictBox() Box
	TraceSize() int
	Location(k int) Box
	TraceLine() []Point
}

// Track is a single tracked identity: a smoothed kinematic estimate, a
// lifecycle state and a bounded history of associated boxes.
type Track struct {
	id              int
	state           TrackState
	age             int
	hits            int
	timeSinceUpdate int
	lastPosition    Box
	trace           []Box
	maxTraceLen     int

	mean       *mat.VecDense
	covariance *mat.Dense

	logger *slog.Logger
}

func newTrack(filter *KalmanFilter, box Box, id, maxTraceLen int, logger *slog.Logger) *Track {
	mean, covariance := filter.Initiate(NewMeasurementXYAH(box))
	track := Track{
		id:           id,
		state:        TrackStateTentative,
		age:          1,
		hits:         1,
		lastPosition: box,
		trace:        make([]Box, 0, maxTraceLen),
		maxTraceLen:  maxTraceLen,
		mean:         mean,
		covariance:   covariance,
		logger:       logger,
	}
	track.trace = append(track.trace, box)
	return &track
}

// predict advances the kinematic estimate by one frame and ages the track
func (track *Track) predict(filter *KalmanFilter) {
	filter.Predict(track.mean, track.covariance)
	track.age++
	track.timeSinceUpdate++
}

// update associates a detection with the track: the history and last
// position take the raw box, the filter absorbs its xyah measurement, and
// a tentative track with enough hits is promoted
func (track *Track) update(filter *KalmanFilter, box Box) error {
	track.trace = append(track.trace, box)
	if len(track.trace) > track.maxTraceLen {
		track.trace = track.trace[1:]
	}

	err := filter.Update(NewMeasurementXYAH(box), track.mean, track.covariance)
	if err != nil {
		return errors.Wrapf(err, "can't update track %d", track.id)
	}
	track.lastPosition = box
	track.hits++
	track.timeSinceUpdate = 0

	if track.state == TrackStateTentative && track.hits >= confirmHits {
		track.state = TrackStateConfirmed
	}
	return nil
}

// markMissed is called when no detection was associated this frame.
// A tentative track dies immediately; a confirmed one survives up to
// maxTimeSinceUpdate consecutive misses.
func (track *Track) markMissed() {
	if track.state == TrackStateTentative || track.timeSinceUpdate > maxTimeSinceUpdate {
		track.state = TrackStateDeleted
	}
}

// ID returns track's stable identifier
func (track *Track) ID() int {
	return track.id
}

// State returns track's lifecycle state
func (track *Track) State() TrackState {
	return track.state
}

// IsConfirmed reports whether the track has been confirmed
func (track *Track) IsConfirmed() bool {
	return track.state == TrackStateConfirmed
}

// TimeSinceUpdate returns the number of frames since the last association
func (track *Track) TimeSinceUpdate() int {
	return track.timeSinceUpdate
}

// Age returns the number of frames the track has existed
func (track *Track) Age() int {
	return track.age
}

// Hits returns the number of associations the track has accumulated
func (track *Track) Hits() int {
	return track.hits
}

// LastPosition returns the most recently associated box
func (track *Track) LastPosition() Box {
	return track.lastPosition
}

// PredictBox reconstructs a box from the current state estimate
func (track *Track) PredictBox() Box {
	centerX := track.mean.AtVec(0)
	centerY := track.mean.AtVec(1)
	aspectRatio := track.mean.AtVec(2)
	height := track.mean.AtVec(3)
	width := aspectRatio * height

	return Box{
		Left:   centerX - width/2.0,
		Top:    centerY - height/2.0,
		Right:  centerX + width/2.0,
		Bottom: centerY + height/2.0,
	}
}

// TraceSize returns the number of boxes kept in the history
func (track *Track) TraceSize() int {
	return len(track.trace)
}

// Location returns the k-th most recent box of the history. An
// out-of-range k yields an empty sentinel box and a diagnostic log line.
func (track *Track) Location(k int) Box {
	if k < 0 || k >= len(track.trace) {
		track.logger.Warn("trace location out of range", "track_id", track.id, "k", k, "trace_size", len(track.trace))
		return Box{}
	}
	return track.trace[len(track.trace)-1-k]
}

// TraceLine returns the history as a polyline of (center x, bottom y)
// points smoothed with a centred moving average.
func (track *Track) TraceLine() []Point {
	count := len(track.trace)
	line := make([]Point, 0, count)
	for i := 0; i < count; i++ {
		begin := max(0, i-traceSmoothWindow/2)
		end := min(i+traceSmoothWindow/2+1, count)
		x := 0.0
		y := 0.0
		for j := begin; j < end; j++ {
			x += track.trace[j].Center().X
			y += track.trace[j].Bottom
		}
		span := float64(end - begin)
		line = append(line, Point{X: x / span, Y: y / span})
	}
	return line
}

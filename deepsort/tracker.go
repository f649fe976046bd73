package deepsort

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// cascadeDepth is how many time-since-update levels the matching
	// cascade visits per lifecycle state
	cascadeDepth = 30
	// gatedCost is the sentinel written into cost cells whose pair failed
	// the chi-square gate. Must stay far above maxMatchDistance so a
	// gated-out pair can never be accepted.
	gatedCost = 1e5
	// maxMatchDistance is the acceptance bound on a winning cell cost
	maxMatchDistance = 200.0
)

// Tracker assigns stable integer identities to a stream of per-frame
// detections. It owns the track table, the shared Kalman filter and the
// assignment solver. A tracker must not be driven concurrently; several
// independent trackers may run in parallel.
type Tracker struct {
	id          uuid.UUID
	objects     []*Track
	filter      *KalmanFilter
	solver      *assignmentSolver
	nextID      int
	maxTraceLen int
	logger      *slog.Logger
}

// TrackerOption customizes a Tracker
type TrackerOption func(*Tracker)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(tracker *Tracker) {
		tracker.logger = logger
	}
}

// WithMaxTraceLength sets the per-track history bound
func WithMaxTraceLength(maxTraceLen int) TrackerOption {
	return func(tracker *Tracker) {
		tracker.maxTraceLen = maxTraceLen
	}
}

// NewTracker creates an empty tracker. Track identifiers start at 1.
func NewTracker(options ...TrackerOption) *Tracker {
	tracker := &Tracker{
		id:          uuid.New(),
		objects:     make([]*Track, 0),
		filter:      NewKalmanFilter(),
		nextID:      1,
		maxTraceLen: DefaultMaxTraceLength,
		logger:      slog.Default(),
	}
	for _, option := range options {
		option(tracker)
	}
	tracker.logger = tracker.logger.With("tracker_id", tracker.id.String())
	tracker.solver = newAssignmentSolver(tracker.logger)
	return tracker
}

// ID returns the identifier of this tracker instance
func (tracker *Tracker) ID() uuid.UUID {
	return tracker.id
}

// Objects returns the live tracks (tentative and confirmed). Deleted
// tracks are reaped before Update returns and are never observable here.
func (tracker *Tracker) Objects() []TrackObject {
	objects := make([]TrackObject, 0, len(tracker.objects))
	for _, track := range tracker.objects {
		objects = append(objects, track)
	}
	return objects
}

type matchPair struct {
	trackIndex     int
	detectionIndex int
}

// Update advances the tracker by one frame: predict every track, run the
// cascaded association against the detections, apply the matches, mark
// the unmatched tracks missed, create tracks for the unmatched detections
// and reap deleted tracks. On error the tracker instance should be
// abandoned.
func (tracker *Tracker) Update(detections []Box) error {
	for _, track := range tracker.objects {
		track.predict(tracker.filter)
	}

	unmatchedTracks := make([]int, 0, len(tracker.objects))
	for i := range tracker.objects {
		unmatchedTracks = append(unmatchedTracks, i)
	}
	unmatchedDetections := make([]int, 0, len(detections))
	for i := range detections {
		unmatchedDetections = append(unmatchedDetections, i)
	}

	// Association is staged: no track is updated, marked missed or
	// created until the whole cascade has run without error. Every track
	// has already been predicted above.
	matches := make([]matchPair, 0, len(tracker.objects))
	candidates := make([]int, 0, len(tracker.objects))

	// Confirmed tracks get first claim on detections, recently updated
	// tracks before long-missed ones.
	for _, state := range [2]TrackState{TrackStateConfirmed, TrackStateTentative} {
		for level := 0; level < cascadeDepth; level++ {
			if len(unmatchedDetections) == 0 || len(unmatchedTracks) == 0 {
				break
			}
			candidates = candidates[:0]
			for _, index := range unmatchedTracks {
				track := tracker.objects[index]
				if track.state == state && track.timeSinceUpdate == level+1 {
					candidates = append(candidates, index)
				}
			}
			if len(candidates) == 0 {
				continue
			}

			matchedTracks, matchedDetections, err := tracker.match(candidates, unmatchedDetections, detections)
			if err != nil {
				return errors.Wrap(err, "can't associate detections")
			}
			for i := range matchedTracks {
				matches = append(matches, matchPair{
					trackIndex:     matchedTracks[i],
					detectionIndex: matchedDetections[i],
				})
			}
			unmatchedTracks = removeMatched(unmatchedTracks, matchedTracks)
			unmatchedDetections = removeMatched(unmatchedDetections, matchedDetections)
		}
	}

	for _, pair := range matches {
		err := tracker.objects[pair.trackIndex].update(tracker.filter, detections[pair.detectionIndex])
		if err != nil {
			return err
		}
	}
	for _, index := range unmatchedTracks {
		tracker.objects[index].markMissed()
	}
	for _, index := range unmatchedDetections {
		tracker.newObject(detections[index])
	}

	live := make([]*Track, 0, len(tracker.objects))
	for _, track := range tracker.objects {
		if track.state != TrackStateDeleted {
			live = append(live, track)
		}
	}
	tracker.objects = live
	return nil
}

// match associates one cascade level of candidate tracks with the
// remaining detections. Pairs failing the chi-square gate on Mahalanobis
// distance get the sentinel cost; everything else costs the Euclidean
// distance between the track's last position and the detection center.
// A solver assignment is accepted only when its cell cost is below
// maxMatchDistance.
func (tracker *Tracker) match(candidates, remaining []int, detections []Box) ([]int, []int, error) {
	costMatrix := make([][]float64, len(candidates))
	for i, trackIndex := range candidates {
		track := tracker.objects[trackIndex]
		row := make([]float64, len(remaining))
		for j, detectionIndex := range remaining {
			detection := detections[detectionIndex]
			squaredMaha, err := tracker.filter.MahalanobisDistance(track.mean, track.covariance, NewMeasurementXYAH(detection), false)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "can't gate track %d", track.id)
			}
			if squaredMaha > GatingThreshold {
				row[j] = gatedCost
			} else {
				row[j] = euclideanDistance(track.lastPosition.Center(), detection.Center())
			}
		}
		costMatrix[i] = row
	}

	assignment, _, err := tracker.solver.solve(costMatrix)
	if err != nil {
		return nil, nil, err
	}

	matchedTracks := make([]int, 0, len(assignment))
	matchedDetections := make([]int, 0, len(assignment))
	for row, col := range assignment {
		if col < 0 {
			continue
		}
		if costMatrix[row][col] < maxMatchDistance {
			matchedTracks = append(matchedTracks, candidates[row])
			matchedDetections = append(matchedDetections, remaining[col])
		}
	}
	return matchedTracks, matchedDetections, nil
}

func (tracker *Tracker) newObject(box Box) {
	track := newTrack(tracker.filter, box, tracker.nextID, tracker.maxTraceLen, tracker.logger)
	tracker.nextID++
	tracker.objects = append(tracker.objects, track)
}

// removeMatched drops the matched values from an unmatched index set,
// preserving order.
func removeMatched(unmatched, matched []int) []int {
	if len(matched) == 0 {
		return unmatched
	}
	drop := make(map[int]struct{}, len(matched))
	for _, v := range matched {
		drop[v] = struct{}{}
	}
	kept := unmatched[:0]
	for _, v := range unmatched {
		if _, found := drop[v]; !found {
			kept = append(kept, v)
		}
	}
	return kept
}

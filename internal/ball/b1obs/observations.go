package b1obs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wicket-data/trajectory.report/internal/ball"
)

// Observation is a single per-frame measurement from the detector.
// Immutable once produced by Load.
type Observation struct {
	FrameIndex int     // strictly increasing, gaps allowed
	Timestamp  float64 // seconds; synthesized from frame rate when absent
	X, Y       float64 // image-plane position, pixels
	RadiusPx   float64 // apparent ball radius in pixels; 0 when not tracked
	Depth      *float64 // optional camera-frame depth (metres) from a depth-augmented detector
	Confidence float64 // detector confidence in [0,1]
	Detected   bool
}

// record is the wire format, the raw_tracks.json schema of the
// detector. Positions are null on frames with no detection, matching
// the upstream encoder.
type record struct {
	Frame      int      `json:"frame"`
	Timestamp  *float64 `json:"t,omitempty"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	RadiusPx   *float64 `json:"radius_px,omitempty"`
	Depth      *float64 `json:"z,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Detected   *bool    `json:"detected,omitempty"`
}

// Load decodes an ordered observation sequence from r and validates
// the stream invariants. frameRate is used to synthesize timestamps
// for records that carry none. Violations are *ball.MalformedInputError.
func Load(r io.Reader, frameRate float64) ([]Observation, error) {
	var records []record
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, &ball.MalformedInputError{Frame: -1, Reason: fmt.Sprintf("invalid JSON record list: %v", err)}
	}
	if len(records) == 0 {
		return nil, &ball.MalformedInputError{Frame: -1, Reason: "empty record list"}
	}
	if frameRate <= 0 {
		return nil, &ball.ConfigurationError{Field: "frame_rate", Reason: fmt.Sprintf("must be positive, got %f", frameRate)}
	}

	obs := make([]Observation, 0, len(records))
	lastFrame := -1
	for _, rec := range records {
		if rec.Frame < 0 {
			return nil, &ball.MalformedInputError{Frame: rec.Frame, Reason: "negative frame index"}
		}
		if rec.Frame == lastFrame {
			return nil, &ball.MalformedInputError{Frame: rec.Frame, Reason: "duplicate frame index"}
		}
		if rec.Frame < lastFrame {
			return nil, &ball.MalformedInputError{Frame: rec.Frame, Reason: fmt.Sprintf("frame index regression after %d", lastFrame)}
		}
		lastFrame = rec.Frame

		o := Observation{
			FrameIndex: rec.Frame,
			Confidence: 1.0,
			Depth:      rec.Depth,
		}

		if rec.Timestamp != nil {
			o.Timestamp = *rec.Timestamp
		} else {
			o.Timestamp = float64(rec.Frame) / frameRate
		}

		// Null positions mark missed frames in the detector output.
		detected := rec.X != nil && rec.Y != nil
		if rec.Detected != nil {
			detected = *rec.Detected && detected
		}
		o.Detected = detected
		if rec.X != nil {
			o.X = *rec.X
		}
		if rec.Y != nil {
			o.Y = *rec.Y
		}
		if rec.RadiusPx != nil {
			if *rec.RadiusPx < 0 {
				return nil, &ball.MalformedInputError{Frame: rec.Frame, Reason: fmt.Sprintf("negative radius_px %f", *rec.RadiusPx)}
			}
			o.RadiusPx = *rec.RadiusPx
		}
		if rec.Confidence != nil {
			if *rec.Confidence < 0 || *rec.Confidence > 1 {
				return nil, &ball.MalformedInputError{Frame: rec.Frame, Reason: fmt.Sprintf("confidence %f outside [0,1]", *rec.Confidence)}
			}
			o.Confidence = *rec.Confidence
		}
		if !o.Detected {
			o.Confidence = 0
		}

		obs = append(obs, o)
	}

	return obs, nil
}

// LoadFile loads observations from a JSON file on disk.
func LoadFile(path string, frameRate float64) ([]Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations file: %w", err)
	}
	defer f.Close()
	return Load(f, frameRate)
}

// DetectedCount returns the number of observations with a valid detection.
func DetectedCount(obs []Observation) int {
	n := 0
	for _, o := range obs {
		if o.Detected {
			n++
		}
	}
	return n
}

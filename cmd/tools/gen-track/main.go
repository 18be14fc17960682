// Command gen-track generates sample raw track files for testing the
// analysis pipeline: a ballistic delivery projected through the planar
// camera model with optional pixel noise and detection dropout.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
)

var (
	output   = flag.String("o", "raw_tracks.json", "output path")
	frames   = flag.Int("n", 30, "number of frames")
	fps      = flag.Float64("fps", 30, "frame rate")
	lateral  = flag.Float64("lateral", 0, "lateral offset at the stump plane in metres")
	speed    = flag.Float64("speed", 30, "delivery speed along the pitch in m/s")
	noise    = flag.Float64("noise", 1.5, "pixel noise sigma")
	dropout  = flag.Float64("dropout", 0.05, "per-frame probability of a missed detection")
	seed     = flag.Int64("seed", 1, "rng seed")
	imgW     = flag.Float64("w", 960, "image width in pixels")
	imgH     = flag.Float64("h", 540, "image height in pixels")
	pitchLen = flag.Float64("pitch", 20.12, "pitch length in metres")
	span     = flag.Float64("span", 3.0, "lateral span in metres")
)

type record struct {
	Frame      int      `json:"frame"`
	T          float64  `json:"t"`
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	Confidence float64  `json:"confidence"`
	Detected   bool     `json:"detected"`
}

func main() {
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	records := make([]record, 0, *frames)

	// World-frame delivery: released near the far crease, travelling
	// toward the stump plane with a fixed lateral offset.
	along0 := *pitchLen * 0.95
	for i := 0; i < *frames; i++ {
		t := float64(i) / *fps
		along := along0 - *speed*t
		if along < 0 {
			break
		}

		// Inverse of the planar camera mapping, plus noise.
		px := (*lateral + *span/2) / *span * *imgW
		py := (1 - along / *pitchLen) * *imgH
		px += rng.NormFloat64() * *noise
		py += rng.NormFloat64() * *noise

		rec := record{Frame: i, T: t, Detected: true, Confidence: 0.85 + 0.15*rng.Float64()}
		if rng.Float64() < *dropout {
			rec.Detected = false
			rec.Confidence = 0
		} else {
			rec.X = &px
			rec.Y = &py
		}
		records = append(records, rec)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		log.Fatalf("failed to write records: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames)", *output, len(records))
}

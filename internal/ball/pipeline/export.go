package pipeline

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wicket-data/trajectory.report/internal/ball/b4flight"
	"github.com/wicket-data/trajectory.report/internal/ball/b5verdict"
	"github.com/wicket-data/trajectory.report/internal/monitoring"
	"github.com/wicket-data/trajectory.report/internal/security"
)

// ExportSchemaVersion identifies the export file layout. Consumers
// must reject files with a version they do not understand.
const ExportSchemaVersion = 1

// sampleStep is the time step for the sampled trajectory block.
const sampleStep = 1.0 / 120

// exportDir is the base directory all exports are confined to.
// User-supplied paths contribute only their final component.
var exportDir = func() string {
	abs, err := filepath.Abs(os.TempDir())
	if err != nil {
		monitoring.Logf("export: could not resolve absolute temp dir: %v", err)
		return os.TempDir()
	}
	return filepath.Clean(abs)
}()

// SetExportDir replaces the export base directory. Intended for the
// CLI, which anchors exports next to its output database.
func SetExportDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("cannot resolve export directory: %w", err)
	}
	exportDir = filepath.Clean(abs)
	return nil
}

// safeExportPath anchors a user-supplied filename under exportDir and
// validates the result never escapes it.
func safeExportPath(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("empty export path")
	}
	base := filepath.Base(userPath)
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid export filename")
	}
	joined := filepath.Join(exportDir, security.SanitizeFilename(base))
	if err := security.ValidatePathWithinDirectory(joined, exportDir); err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return joined, nil
}

type exportPoint struct {
	T float64 `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type exportArc struct {
	T0       float64    `json:"t0"`
	Duration float64    `json:"duration"`
	P0       [3]float64 `json:"p0"`
	V0       [3]float64 `json:"v0"`
	Gravity  float64    `json:"gravity"`
	DragK    float64    `json:"drag_k,omitempty"`
}

type exportBounce struct {
	Time     float64    `json:"t"`
	Pos      [3]float64 `json:"pos"`
	Incoming [3]float64 `json:"incoming"`
	Outgoing [3]float64 `json:"outgoing"`
}

type exportDecision struct {
	Verdict      b5verdict.Verdict `json:"verdict"`
	ImpactTime   float64           `json:"impact_time"`
	ImpactPoint  [3]float64        `json:"impact_point"`
	ImpactHeight float64           `json:"impact_height"`
	Margin       float64           `json:"margin"`
}

type exportFile struct {
	SchemaVersion int              `json:"schema_version"`
	RunID         string           `json:"run_id"`
	GeneratedAt   string           `json:"generated_at"`
	WorldStates   []exportPoint    `json:"world_states"`
	Arcs          []exportArc      `json:"arcs"`
	Bounces       []exportBounce   `json:"bounces"`
	Predicted     []exportPoint    `json:"predicted"`
	Decision      exportDecision   `json:"decision"`
}

// buildExport flattens a result into the versioned export layout. The
// predicted block samples the trajectory from launch to just past the
// stump-plane crossing.
func buildExport(res *Result) exportFile {
	out := exportFile{
		SchemaVersion: ExportSchemaVersion,
		RunID:         res.RunID,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Decision: exportDecision{
			Verdict:      res.Decision.Verdict,
			ImpactTime:   res.Decision.ImpactTime,
			ImpactPoint:  res.Decision.ImpactPoint,
			ImpactHeight: res.Decision.ImpactHeight,
			Margin:       res.Decision.Margin,
		},
	}

	for _, w := range res.WorldStates {
		out.WorldStates = append(out.WorldStates, exportPoint{T: w.Timestamp, X: w.Pos[0], Y: w.Pos[1], Z: w.Pos[2]})
	}
	for _, a := range res.Segment.Arcs {
		out.Arcs = append(out.Arcs, exportArc{
			T0: a.T0, Duration: a.Duration, P0: a.P0, V0: a.V0, Gravity: a.Gravity, DragK: a.DragK,
		})
	}
	for _, b := range res.Segment.Bounces() {
		out.Bounces = append(out.Bounces, exportBounce{Time: b.Time, Pos: b.Pos, Incoming: b.Incoming, Outgoing: b.Outgoing})
	}
	out.Predicted = samplePredicted(res.Segment, res.Decision.ImpactTime)
	return out
}

func samplePredicted(seg *b4flight.TrajectorySegment, impactTime float64) []exportPoint {
	end := impactTime + 2*sampleStep
	if end > seg.EndTime() {
		end = seg.EndTime()
	}
	var pts []exportPoint
	for t := seg.LaunchTime; t <= end; t += sampleStep {
		p := seg.PositionAt(t)
		pts = append(pts, exportPoint{T: t, X: p[0], Y: p[1], Z: p[2]})
	}
	return pts
}

// WriteExport streams the export JSON for a result to w.
func WriteExport(w io.Writer, res *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(buildExport(res)); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Export writes a result to a file under the export directory. A
// .gz suffix on the filename selects gzip compression.
func Export(res *Result, path string) error {
	safePath, err := safeExportPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(safePath)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if filepath.Ext(safePath) == ".gz" {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}

	if err := WriteExport(w, res); err != nil {
		return err
	}
	monitoring.Logf("export: wrote run %s to %s", res.RunID, safePath)
	return nil
}

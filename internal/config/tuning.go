package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wicket-data/trajectory.report/internal/ball"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for a tracking run. All fields
// are optional in the JSON; the Get* accessors carry the documented
// defaults, so partial configs are safe. Unrecognized keys are rejected
// at load time.
type TuningConfig struct {
	// Timing
	FrameRate *float64 `json:"frame_rate,omitempty"` // frames/second, used when records carry no timestamp

	// Smoother params
	ProcessNoisePos      *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel      *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise     *float64 `json:"measurement_noise,omitempty"`
	InitialPosVariance   *float64 `json:"initial_pos_variance,omitempty"`
	InitialVelVariance   *float64 `json:"initial_vel_variance,omitempty"`
	MinConfidence        *float64 `json:"min_confidence,omitempty"`
	MaxConsecutiveMisses *int     `json:"max_consecutive_misses,omitempty"`
	ConvergenceTolerance *float64 `json:"convergence_tolerance,omitempty"`

	// Camera/scene params
	ImageWidthPx   *float64 `json:"image_width_px,omitempty"`
	ImageHeightPx  *float64 `json:"image_height_px,omitempty"`
	PitchLengthM   *float64 `json:"pitch_length_m,omitempty"`
	LateralSpanM   *float64 `json:"lateral_span_m,omitempty"`
	ReleaseHeightM *float64 `json:"release_height_m,omitempty"`
	ImpactHeightM  *float64 `json:"impact_height_m,omitempty"`
	BallRadiusM    *float64 `json:"ball_radius_m,omitempty"`
	FocalLengthPx  *float64 `json:"focal_length_px,omitempty"`
	CameraHeightM  *float64 `json:"camera_height_m,omitempty"`

	// Physics params
	GravityMps2        *float64 `json:"gravity_mps2,omitempty"`
	DragModel          *string  `json:"drag_model,omitempty"` // "none" or "linear"
	DragCoefficient    *float64 `json:"drag_coefficient,omitempty"`
	Restitution        *float64 `json:"restitution,omitempty"`
	BounceFriction     *float64 `json:"bounce_friction,omitempty"`
	FitWindowFrames    *int     `json:"fit_window_frames,omitempty"`
	MinForwardSpeedMps *float64 `json:"min_forward_speed_mps,omitempty"`
	MaxExtrapolationS  *float64 `json:"max_extrapolation_s,omitempty"`
	MaxBounces         *int     `json:"max_bounces,omitempty"`

	// Decision params
	StumpHalfWidthM  *float64 `json:"stump_half_width_m,omitempty"`
	StumpHeightM     *float64 `json:"stump_height_m,omitempty"`
	StumpRadiusM     *float64 `json:"stump_radius_m,omitempty"`
	MarginToleranceM *float64 `json:"margin_tolerance_m,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Every Get* accessor then answers with its documented default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults; unrecognized fields are a
// *ball.ConfigurationError.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, &ball.ConfigurationError{Field: "config", Reason: fmt.Sprintf("file must have .json extension, got %q", ext)}
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, &ball.ConfigurationError{Field: "config", Reason: fmt.Sprintf("file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)}
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseTuningConfig(data)
}

// ParseTuningConfig parses a TuningConfig from raw JSON bytes.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, &ball.ConfigurationError{Field: "config", Reason: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the current directory.
// Panics if the file cannot be loaded. Intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/ball/b2smooth/ etc.
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are physically and
// numerically valid. Violations are *ball.ConfigurationError so the
// caller can fail before any stage runs.
func (c *TuningConfig) Validate() error {
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return &ball.ConfigurationError{Field: "frame_rate", Reason: fmt.Sprintf("must be positive, got %f", *c.FrameRate)}
	}
	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return &ball.ConfigurationError{Field: "min_confidence", Reason: fmt.Sprintf("must be in [0,1], got %f", *c.MinConfidence)}
	}
	if c.MaxConsecutiveMisses != nil && *c.MaxConsecutiveMisses < 1 {
		return &ball.ConfigurationError{Field: "max_consecutive_misses", Reason: fmt.Sprintf("must be at least 1, got %d", *c.MaxConsecutiveMisses)}
	}
	if c.Restitution != nil && (*c.Restitution <= 0 || *c.Restitution > 1) {
		return &ball.ConfigurationError{Field: "restitution", Reason: fmt.Sprintf("must be in (0,1], got %f", *c.Restitution)}
	}
	if c.BounceFriction != nil && (*c.BounceFriction <= 0 || *c.BounceFriction > 1) {
		return &ball.ConfigurationError{Field: "bounce_friction", Reason: fmt.Sprintf("must be in (0,1], got %f", *c.BounceFriction)}
	}
	if c.DragModel != nil && *c.DragModel != "none" && *c.DragModel != "linear" {
		return &ball.ConfigurationError{Field: "drag_model", Reason: fmt.Sprintf("must be \"none\" or \"linear\", got %q", *c.DragModel)}
	}
	if c.DragCoefficient != nil && *c.DragCoefficient < 0 {
		return &ball.ConfigurationError{Field: "drag_coefficient", Reason: fmt.Sprintf("must be non-negative, got %f", *c.DragCoefficient)}
	}
	if c.FitWindowFrames != nil && *c.FitWindowFrames < 2 {
		return &ball.ConfigurationError{Field: "fit_window_frames", Reason: fmt.Sprintf("must be at least 2, got %d", *c.FitWindowFrames)}
	}
	if c.MaxBounces != nil && *c.MaxBounces < 0 {
		return &ball.ConfigurationError{Field: "max_bounces", Reason: fmt.Sprintf("must be non-negative, got %d", *c.MaxBounces)}
	}
	if c.MarginToleranceM != nil && *c.MarginToleranceM < 0 {
		return &ball.ConfigurationError{Field: "margin_tolerance_m", Reason: fmt.Sprintf("must be non-negative, got %f", *c.MarginToleranceM)}
	}
	for field, v := range map[string]*float64{
		"image_width_px":  c.ImageWidthPx,
		"image_height_px": c.ImageHeightPx,
		"pitch_length_m":  c.PitchLengthM,
		"lateral_span_m":  c.LateralSpanM,
		"ball_radius_m":   c.BallRadiusM,
		"stump_height_m":  c.StumpHeightM,
	} {
		if v != nil && *v <= 0 {
			return &ball.ConfigurationError{Field: field, Reason: fmt.Sprintf("must be positive, got %f", *v)}
		}
	}
	return nil
}

// GetFrameRate returns the frame_rate value or the default.
func (c *TuningConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30.0 // default
	}
	return *c.FrameRate
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 1e-3
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 1e-2
	}
	return *c.ProcessNoiseVel
}

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 25.0 // pixel variance of the upstream detector
	}
	return *c.MeasurementNoise
}

// GetInitialPosVariance returns the initial_pos_variance value or the default.
func (c *TuningConfig) GetInitialPosVariance() float64 {
	if c.InitialPosVariance == nil {
		return 500.0
	}
	return *c.InitialPosVariance
}

// GetInitialVelVariance returns the initial_vel_variance value or the default.
func (c *TuningConfig) GetInitialVelVariance() float64 {
	if c.InitialVelVariance == nil {
		return 500.0
	}
	return *c.InitialVelVariance
}

// GetMinConfidence returns the min_confidence value or the default.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.1
	}
	return *c.MinConfidence
}

// GetMaxConsecutiveMisses returns the max_consecutive_misses value or the default.
func (c *TuningConfig) GetMaxConsecutiveMisses() int {
	if c.MaxConsecutiveMisses == nil {
		return 15 // half a second at 30 fps
	}
	return *c.MaxConsecutiveMisses
}

// GetConvergenceTolerance returns the convergence_tolerance value or the default.
func (c *TuningConfig) GetConvergenceTolerance() float64 {
	if c.ConvergenceTolerance == nil {
		return 1e-3
	}
	return *c.ConvergenceTolerance
}

// GetImageWidthPx returns the image_width_px value or the default.
func (c *TuningConfig) GetImageWidthPx() float64 {
	if c.ImageWidthPx == nil {
		return 960.0
	}
	return *c.ImageWidthPx
}

// GetImageHeightPx returns the image_height_px value or the default.
func (c *TuningConfig) GetImageHeightPx() float64 {
	if c.ImageHeightPx == nil {
		return 540.0
	}
	return *c.ImageHeightPx
}

// GetPitchLengthM returns the pitch_length_m value or the default.
func (c *TuningConfig) GetPitchLengthM() float64 {
	if c.PitchLengthM == nil {
		return 20.12 // stump plane to stump plane
	}
	return *c.PitchLengthM
}

// GetLateralSpanM returns the lateral_span_m value or the default.
func (c *TuningConfig) GetLateralSpanM() float64 {
	if c.LateralSpanM == nil {
		return 3.0 // visible lateral extent of the frame at the pitch
	}
	return *c.LateralSpanM
}

// GetReleaseHeightM returns the release_height_m value or the default.
func (c *TuningConfig) GetReleaseHeightM() float64 {
	if c.ReleaseHeightM == nil {
		return 1.6
	}
	return *c.ReleaseHeightM
}

// GetImpactHeightM returns the impact_height_m value or the default.
func (c *TuningConfig) GetImpactHeightM() float64 {
	if c.ImpactHeightM == nil {
		return 0.2
	}
	return *c.ImpactHeightM
}

// GetBallRadiusM returns the ball_radius_m value or the default.
func (c *TuningConfig) GetBallRadiusM() float64 {
	if c.BallRadiusM == nil {
		return 0.036
	}
	return *c.BallRadiusM
}

// GetFocalLengthPx returns the focal_length_px value or the default.
// Zero means no apparent-size depth anchor is available.
func (c *TuningConfig) GetFocalLengthPx() float64 {
	if c.FocalLengthPx == nil {
		return 0
	}
	return *c.FocalLengthPx
}

// GetCameraHeightM returns the camera_height_m value or the default.
func (c *TuningConfig) GetCameraHeightM() float64 {
	if c.CameraHeightM == nil {
		return 2.2
	}
	return *c.CameraHeightM
}

// GetGravityMps2 returns the gravity_mps2 value or the default.
func (c *TuningConfig) GetGravityMps2() float64 {
	if c.GravityMps2 == nil {
		return 9.81
	}
	return *c.GravityMps2
}

// GetDragModel returns the drag_model value or the default.
func (c *TuningConfig) GetDragModel() string {
	if c.DragModel == nil {
		return "none"
	}
	return *c.DragModel
}

// GetDragCoefficient returns the drag_coefficient value or the default.
func (c *TuningConfig) GetDragCoefficient() float64 {
	if c.DragCoefficient == nil {
		return 0.05 // per-second linear decay rate
	}
	return *c.DragCoefficient
}

// GetRestitution returns the restitution value or the default.
func (c *TuningConfig) GetRestitution() float64 {
	if c.Restitution == nil {
		return 0.78
	}
	return *c.Restitution
}

// GetBounceFriction returns the bounce_friction value or the default.
func (c *TuningConfig) GetBounceFriction() float64 {
	if c.BounceFriction == nil {
		return 0.72
	}
	return *c.BounceFriction
}

// GetFitWindowFrames returns the fit_window_frames value or the default.
func (c *TuningConfig) GetFitWindowFrames() int {
	if c.FitWindowFrames == nil {
		return 8 // ~0.27s at 30 fps
	}
	return *c.FitWindowFrames
}

// GetMinForwardSpeedMps returns the min_forward_speed_mps value or the default.
func (c *TuningConfig) GetMinForwardSpeedMps() float64 {
	if c.MinForwardSpeedMps == nil {
		return 0.5
	}
	return *c.MinForwardSpeedMps
}

// GetMaxExtrapolationS returns the max_extrapolation_s value or the default.
func (c *TuningConfig) GetMaxExtrapolationS() float64 {
	if c.MaxExtrapolationS == nil {
		return 4.0
	}
	return *c.MaxExtrapolationS
}

// GetMaxBounces returns the max_bounces value or the default.
func (c *TuningConfig) GetMaxBounces() int {
	if c.MaxBounces == nil {
		return 2
	}
	return *c.MaxBounces
}

// GetStumpHalfWidthM returns the stump_half_width_m value or the default.
func (c *TuningConfig) GetStumpHalfWidthM() float64 {
	if c.StumpHalfWidthM == nil {
		return 0.1143 // 22.86cm wicket / 2
	}
	return *c.StumpHalfWidthM
}

// GetStumpHeightM returns the stump_height_m value or the default.
func (c *TuningConfig) GetStumpHeightM() float64 {
	if c.StumpHeightM == nil {
		return 0.711
	}
	return *c.StumpHeightM
}

// GetStumpRadiusM returns the stump_radius_m value or the default.
func (c *TuningConfig) GetStumpRadiusM() float64 {
	if c.StumpRadiusM == nil {
		return 0.019
	}
	return *c.StumpRadiusM
}

// GetMarginToleranceM returns the margin_tolerance_m value or the default.
func (c *TuningConfig) GetMarginToleranceM() float64 {
	if c.MarginToleranceM == nil {
		return 0.02 // umpire's call band either side of the edge
	}
	return *c.MarginToleranceM
}

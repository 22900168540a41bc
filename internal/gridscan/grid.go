package gridscan

import (
	"errors"
	"fmt"
)

// Sentinel errors for grid geometry.
var (
	// ErrInvalidGrid is returned when a grid's steps or sizes are not
	// physically meaningful.
	ErrInvalidGrid = errors.New("gridscan: invalid grid geometry")

	// errFrameOutOfRange is returned when a frame number falls outside
	// the grid.
	errFrameOutOfRange = errors.New("gridscan: frame number outside grid")
)

// GridDescriptor defines the raster geometry of one scan in motor
// units. X is the fast axis, Y the slow axis of the first sweep, Z the
// slow axis of the orthogonal second sweep of a 3D scan.
type GridDescriptor struct {
	// Start positions of box (0,0,0), in millimetres.
	XStartMM float64 `json:"x_start_mm"`
	YStartMM float64 `json:"y_start_mm"`
	ZStartMM float64 `json:"z_start_mm"`

	// Box sizes, in millimetres.
	XStepMM float64 `json:"x_step_mm"`
	YStepMM float64 `json:"y_step_mm"`
	ZStepMM float64 `json:"z_step_mm"`

	// Box counts per axis. A 2D scan has ZSteps == 1.
	XSteps int `json:"x_steps"`
	YSteps int `json:"y_steps"`
	ZSteps int `json:"z_steps"`

	// Snake selects boustrophedon traversal: odd rows run the fast
	// axis backwards, so the stage never flies back across the grid.
	Snake bool `json:"snake"`
}

// Validate checks the grid is physically meaningful.
func (g GridDescriptor) Validate() error {
	if g.XSteps < 1 || g.YSteps < 1 || g.ZSteps < 1 {
		return fmt.Errorf("%w: step counts %dx%dx%d", ErrInvalidGrid, g.XSteps, g.YSteps, g.ZSteps)
	}
	if g.XStepMM <= 0 || g.YStepMM <= 0 {
		return fmt.Errorf("%w: box size %gx%g mm", ErrInvalidGrid, g.XStepMM, g.YStepMM)
	}
	if g.ZSteps > 1 && g.ZStepMM <= 0 {
		return fmt.Errorf("%w: 3D scan with z box size %g mm", ErrInvalidGrid, g.ZStepMM)
	}
	return nil
}

// ThreeD reports whether the grid has depth, requiring the orthogonal
// second sweep.
func (g GridDescriptor) ThreeD() bool {
	return g.ZSteps > 1
}

// FramesPerSweep returns the image count of one sweep.
func (g GridDescriptor) FramesPerSweep() int {
	return g.XSteps * g.YSteps
}

// MotorPosition converts fractional grid coordinates to motor
// positions in millimetres. Index (0, 0, 0) is the centre of the first
// box.
func (g GridDescriptor) MotorPosition(index [3]float64) [3]float64 {
	return [3]float64{
		g.XStartMM + g.XStepMM*index[0],
		g.YStartMM + g.YStepMM*index[1],
		g.ZStartMM + g.ZStepMM*index[2],
	}
}

// Centre returns the grid's midpoint in fractional grid coordinates.
// Used as the fallback centring position when analysis finds nothing.
func (g GridDescriptor) Centre() [3]float64 {
	return [3]float64{
		float64(g.XSteps-1) / 2,
		float64(g.YSteps-1) / 2,
		float64(g.ZSteps-1) / 2,
	}
}

// frameToIndex converts a sweep-local frame number to whole-box grid
// indices, honouring snake traversal on odd rows.
func (g GridDescriptor) frameToIndex(frame int) ([2]int, error) {
	if frame < 0 || frame >= g.FramesPerSweep() {
		return [2]int{}, fmt.Errorf("%w: frame %d of %d", errFrameOutOfRange, frame, g.FramesPerSweep())
	}
	row := frame / g.XSteps
	col := frame % g.XSteps
	if g.Snake && row%2 == 1 {
		col = g.XSteps - 1 - col
	}
	return [2]int{col, row}, nil
}

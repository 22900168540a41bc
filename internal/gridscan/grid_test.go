package gridscan

import (
	"errors"
	"testing"
)

func testGrid() GridDescriptor {
	return GridDescriptor{
		XStartMM: -0.2, YStartMM: 0.1, ZStartMM: 0.0,
		XStepMM: 0.02, YStepMM: 0.02, ZStepMM: 0.02,
		XSteps: 20, YSteps: 10, ZSteps: 1,
	}
}

func TestGridValidate(t *testing.T) {
	if err := testGrid().Validate(); err != nil {
		t.Errorf("Validate() on a sound grid = %v", err)
	}

	bad := testGrid()
	bad.XSteps = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Validate() with zero steps = %v, want ErrInvalidGrid", err)
	}

	bad = testGrid()
	bad.YStepMM = -0.02
	if err := bad.Validate(); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Validate() with negative box size = %v, want ErrInvalidGrid", err)
	}

	bad = testGrid()
	bad.ZSteps = 5
	bad.ZStepMM = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidGrid) {
		t.Errorf("Validate() 3D without z box size = %v, want ErrInvalidGrid", err)
	}
}

func TestMotorPosition(t *testing.T) {
	grid := testGrid()

	origin := grid.MotorPosition([3]float64{0, 0, 0})
	if origin != [3]float64{-0.2, 0.1, 0.0} {
		t.Errorf("MotorPosition(origin) = %v", origin)
	}

	// Fractional indices land between box centres.
	mid := grid.MotorPosition([3]float64{1.5, 2.0, 0})
	want := [3]float64{-0.2 + 0.02*1.5, 0.1 + 0.02*2.0, 0.0}
	if mid != want {
		t.Errorf("MotorPosition(fractional) = %v, want %v", mid, want)
	}
}

func TestGridCentre(t *testing.T) {
	grid := testGrid()
	if got := grid.Centre(); got != [3]float64{9.5, 4.5, 0} {
		t.Errorf("Centre() = %v, want [9.5 4.5 0]", got)
	}
}

func TestThreeD(t *testing.T) {
	grid := testGrid()
	if grid.ThreeD() {
		t.Error("ThreeD() true for a single-layer grid")
	}
	grid.ZSteps = 8
	if !grid.ThreeD() {
		t.Error("ThreeD() false for a deep grid")
	}
}

func TestFrameToIndex_RasterOrder(t *testing.T) {
	grid := GridDescriptor{XSteps: 3, YSteps: 2, ZSteps: 1, XStepMM: 1, YStepMM: 1}

	cases := []struct {
		frame int
		want  [2]int
	}{
		{0, [2]int{0, 0}},
		{2, [2]int{2, 0}},
		{3, [2]int{0, 1}},
		{5, [2]int{2, 1}},
	}
	for _, tc := range cases {
		got, err := grid.frameToIndex(tc.frame)
		if err != nil {
			t.Fatalf("frameToIndex(%d) error = %v", tc.frame, err)
		}
		if got != tc.want {
			t.Errorf("frameToIndex(%d) = %v, want %v", tc.frame, got, tc.want)
		}
	}
}

func TestFrameToIndex_Snake(t *testing.T) {
	grid := GridDescriptor{XSteps: 3, YSteps: 2, ZSteps: 1, XStepMM: 1, YStepMM: 1, Snake: true}

	// Odd rows run backwards: frame 3 is the rightmost box of row 1.
	cases := []struct {
		frame int
		want  [2]int
	}{
		{0, [2]int{0, 0}},
		{2, [2]int{2, 0}},
		{3, [2]int{2, 1}},
		{5, [2]int{0, 1}},
	}
	for _, tc := range cases {
		got, err := grid.frameToIndex(tc.frame)
		if err != nil {
			t.Fatalf("frameToIndex(%d) error = %v", tc.frame, err)
		}
		if got != tc.want {
			t.Errorf("frameToIndex(%d) = %v, want %v", tc.frame, got, tc.want)
		}
	}
}

func TestFrameToIndex_OutOfRange(t *testing.T) {
	grid := GridDescriptor{XSteps: 3, YSteps: 2, ZSteps: 1, XStepMM: 1, YStepMM: 1}
	if _, err := grid.frameToIndex(6); !errors.Is(err, errFrameOutOfRange) {
		t.Errorf("frameToIndex(6) error = %v, want errFrameOutOfRange", err)
	}
	if _, err := grid.frameToIndex(-1); !errors.Is(err, errFrameOutOfRange) {
		t.Errorf("frameToIndex(-1) error = %v, want errFrameOutOfRange", err)
	}
}

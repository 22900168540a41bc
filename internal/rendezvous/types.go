package rendezvous

import "sort"

// Candidate is one crystal the analysis service found, in grid
// coordinates.
type Candidate struct {
	// CentreOfMass is the candidate's centre in fractional grid
	// coordinates.
	CentreOfMass [3]float64 `json:"centre_of_mass"`

	// Strength is the service's figure of merit for the candidate.
	Strength float64 `json:"strength"`

	// BBoxMin and BBoxMax bound the candidate in whole grid boxes,
	// max exclusive.
	BBoxMin [3]float64 `json:"bounding_box_min"`
	BBoxMax [3]float64 `json:"bounding_box_max"`
}

// BBoxSize returns the candidate's bounding box extent per axis.
func (c Candidate) BBoxSize() [3]float64 {
	return [3]float64{
		c.BBoxMax[0] - c.BBoxMin[0],
		c.BBoxMax[1] - c.BBoxMin[1],
		c.BBoxMax[2] - c.BBoxMin[2],
	}
}

// BBoxVolume returns the bounding box volume in grid boxes.
func (c Candidate) BBoxVolume() float64 {
	size := c.BBoxSize()
	return size[0] * size[1] * size[2]
}

// Rank orders candidates best first: strongest, then largest bounding
// box as the tie break. The sort is stable so service order decides
// exact ties.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Strength != ranked[j].Strength {
			return ranked[i].Strength > ranked[j].Strength
		}
		return ranked[i].BBoxVolume() > ranked[j].BBoxVolume()
	})
	return ranked
}

// Outcome is a group's final centring answer.
type Outcome struct {
	// Centre is where to move, in fractional grid coordinates. On
	// fallback this is the caller's fallback position.
	Centre [3]float64

	// BBoxSize is the chosen candidate's bounding box extent, nil when
	// no crystal was found.
	BBoxSize *[3]float64

	// Fallback reports that no usable result arrived and Centre is the
	// caller's fallback.
	Fallback bool
}

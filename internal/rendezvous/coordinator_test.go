package rendezvous

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeService serves scripted per-collection results and counts calls.
type fakeService struct {
	mu      sync.Mutex
	submits []string
	awaits  []string
	results map[string][]Candidate
	errs    map[string]error
}

func newFakeService() *fakeService {
	return &fakeService{
		results: make(map[string][]Candidate),
		errs:    make(map[string]error),
	}
}

func (s *fakeService) Submit(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, collectionID)
	return nil
}

func (s *fakeService) NotifyComplete(ctx context.Context, collectionID string) error {
	return nil
}

func (s *fakeService) Await(ctx context.Context, collectionID string, timeout time.Duration) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaits = append(s.awaits, collectionID)
	if err := s.errs[collectionID]; err != nil {
		return nil, err
	}
	return s.results[collectionID], nil
}

func (s *fakeService) submitCount(collectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.submits {
		if id == collectionID {
			n++
		}
	}
	return n
}

func (s *fakeService) awaitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.awaits)
}

// fakeComments records appended audit text.
type fakeComments struct {
	mu       sync.Mutex
	appended []string
	err      error
}

func (c *fakeComments) AppendComment(ctx context.Context, groupUID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.appended = append(c.appended, text)
	return nil
}

func (c *fakeComments) comments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.appended))
	copy(out, c.appended)
	return out
}

var testFallback = [3]float64{2.0, 2.0, 0.0}

func TestSubmit_IdempotentPerCollection(t *testing.T) {
	svc := newFakeService()
	coord := NewCoordinator(svc, nil, time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := coord.Submit(ctx, "grp-77", "rec-1"); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if got := svc.submitCount("rec-1"); got != 1 {
		t.Errorf("collection submitted %d times, want exactly 1", got)
	}
}

func TestAwaitCentre_RanksMergedCandidates(t *testing.T) {
	svc := newFakeService()
	svc.results["rec-1"] = []Candidate{
		{Strength: 80, CentreOfMass: [3]float64{1, 1, 0}, BBoxMin: [3]float64{0, 0, 0}, BBoxMax: [3]float64{1, 1, 1}},
	}
	svc.results["rec-2"] = []Candidate{
		{Strength: 120, CentreOfMass: [3]float64{3, 2, 1}, BBoxMin: [3]float64{2, 1, 0}, BBoxMax: [3]float64{5, 2, 1}},
	}
	comments := &fakeComments{}
	coord := NewCoordinator(svc, comments, time.Second, nil)
	ctx := context.Background()

	if err := coord.Submit(ctx, "grp-77", "rec-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := coord.Submit(ctx, "grp-77", "rec-2"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	out := coord.AwaitCentre(ctx, "grp-77", testFallback)
	if out.Fallback {
		t.Fatal("AwaitCentre() fell back with candidates available")
	}
	if out.Centre != [3]float64{3, 2, 1} {
		t.Errorf("Centre = %v, want the strongest candidate's centre", out.Centre)
	}
	if out.BBoxSize == nil || *out.BBoxSize != [3]float64{3, 1, 1} {
		t.Errorf("BBoxSize = %v, want [3 1 1]", out.BBoxSize)
	}

	// Every candidate appears in the audit comment, best first.
	got := comments.comments()
	if len(got) != 1 {
		t.Fatalf("appended %d comments, want 1", len(got))
	}
	if !strings.Contains(got[0], "Crystal 1: strength 120") ||
		!strings.Contains(got[0], "Crystal 2: strength 80") {
		t.Errorf("audit comment missing candidates: %q", got[0])
	}
}

func TestRank_StrengthThenVolume(t *testing.T) {
	small := Candidate{Strength: 100, BBoxMin: [3]float64{0, 0, 0}, BBoxMax: [3]float64{1, 1, 1}}
	large := Candidate{Strength: 100, BBoxMin: [3]float64{0, 0, 0}, BBoxMax: [3]float64{2, 2, 1}}
	weak := Candidate{Strength: 50, BBoxMin: [3]float64{0, 0, 0}, BBoxMax: [3]float64{5, 5, 5}}

	ranked := Rank([]Candidate{weak, small, large})
	if ranked[0] != large || ranked[1] != small || ranked[2] != weak {
		t.Errorf("Rank() order wrong: %+v", ranked)
	}
}

func TestAwaitCentre_NoDiffractionFallsBack(t *testing.T) {
	svc := newFakeService()
	svc.results["rec-1"] = nil // analysis succeeded, nothing found
	comments := &fakeComments{}
	coord := NewCoordinator(svc, comments, time.Second, nil)
	ctx := context.Background()

	if err := coord.Submit(ctx, "grp-77", "rec-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	out := coord.AwaitCentre(ctx, "grp-77", testFallback)
	if !out.Fallback {
		t.Error("AwaitCentre() should fall back when nothing was found")
	}
	if out.Centre != testFallback {
		t.Errorf("Centre = %v, want fallback %v", out.Centre, testFallback)
	}
	if out.BBoxSize != nil {
		t.Errorf("BBoxSize = %v, want nil on fallback", out.BBoxSize)
	}

	got := comments.comments()
	if len(got) != 1 {
		t.Fatalf("appended %d comments, want exactly 1", len(got))
	}
	if !strings.Contains(got[0], "no diffraction") {
		t.Errorf("comment = %q, want a no-diffraction note", got[0])
	}
}

func TestAwaitCentre_ServiceErrorFallsBack(t *testing.T) {
	svc := newFakeService()
	svc.errs["rec-1"] = errors.New("timed out")
	comments := &fakeComments{}
	coord := NewCoordinator(svc, comments, time.Second, nil)
	ctx := context.Background()

	if err := coord.Submit(ctx, "grp-77", "rec-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	out := coord.AwaitCentre(ctx, "grp-77", testFallback)
	if !out.Fallback || out.Centre != testFallback {
		t.Errorf("AwaitCentre() = %+v, want fallback outcome", out)
	}
	if got := len(comments.comments()); got != 0 {
		t.Errorf("service error appended %d comments, want 0", got)
	}
}

func TestAwaitCentre_OutcomeCached(t *testing.T) {
	svc := newFakeService()
	svc.results["rec-1"] = []Candidate{{Strength: 100, CentreOfMass: [3]float64{1, 2, 3}}}
	coord := NewCoordinator(svc, nil, time.Second, nil)
	ctx := context.Background()

	if err := coord.Submit(ctx, "grp-77", "rec-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	first := coord.AwaitCentre(ctx, "grp-77", testFallback)
	second := coord.AwaitCentre(ctx, "grp-77", testFallback)

	if first != second {
		t.Errorf("cached outcome differs: %+v vs %+v", first, second)
	}
	if got := svc.awaitCount(); got != 1 {
		t.Errorf("service awaited %d times, want 1", got)
	}

	cached, ok := coord.Outcome("grp-77")
	if !ok || cached != first {
		t.Errorf("Outcome() = %+v, %v", cached, ok)
	}
}

func TestAwaitCentre_NoCollectionsFallsBack(t *testing.T) {
	coord := NewCoordinator(newFakeService(), nil, time.Second, nil)

	out := coord.AwaitCentre(context.Background(), "grp-empty", testFallback)
	if !out.Fallback || out.Centre != testFallback {
		t.Errorf("AwaitCentre() = %+v, want fallback outcome", out)
	}
}

func TestAwaitCentre_CommentFaultDoesNotFail(t *testing.T) {
	svc := newFakeService()
	svc.results["rec-1"] = []Candidate{{Strength: 100, CentreOfMass: [3]float64{1, 2, 3}}}
	comments := &fakeComments{err: errors.New("database locked")}
	coord := NewCoordinator(svc, comments, time.Second, nil)
	ctx := context.Background()

	if err := coord.Submit(ctx, "grp-77", "rec-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	out := coord.AwaitCentre(ctx, "grp-77", testFallback)
	if out.Fallback {
		t.Error("comment fault must not degrade the outcome")
	}
}

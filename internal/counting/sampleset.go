package counting

import (
	"math"
	"math/rand"
	"sort"
)

// SampleSet holds the counter values picked for mandatory review in the
// current sampling cycle. Ids are drawn from [1, modulus] without replacement.
type SampleSet struct {
	rng        *rand.Rand
	modulus    int
	percentage float64

	ids        map[int]struct{}
	drawn      int
	generation uint64
}

// NewSampleSet validates the parameters and draws the first generation.
// A nil rng falls back to a fixed seed.
func NewSampleSet(modulus int, percentage float64, rng *rand.Rand) (*SampleSet, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	s := &SampleSet{rng: rng}
	if err := s.Regenerate(modulus, percentage); err != nil {
		return nil, err
	}
	return s, nil
}

// SampleSize is round(modulus·percentage/100), capped at modulus.
func SampleSize(modulus int, percentage float64) int {
	n := int(math.Round(float64(modulus) * percentage / 100))
	if n > modulus {
		return modulus
	}
	return n
}

// Regenerate replaces the set with a fresh draw.
func (s *SampleSet) Regenerate(modulus int, percentage float64) error {
	if modulus < 1 {
		return configErr("loop_sample", modulus, "must be a positive integer")
	}
	if math.IsNaN(percentage) || percentage < 0 || percentage > 100 {
		return configErr("percentage_sample", percentage, "must be between 0 and 100")
	}
	s.modulus, s.percentage = modulus, percentage

	want := SampleSize(modulus, percentage)
	ids := make(map[int]struct{}, want)
	if want >= modulus {
		for id := 1; id <= modulus; id++ {
			ids[id] = struct{}{}
		}
	} else {
		// Rejection sampling: redraw until want distinct ids are held.
		for len(ids) < want {
			ids[s.rng.Intn(modulus)+1] = struct{}{}
		}
	}
	s.ids = ids
	s.drawn = want
	s.generation++
	return nil
}

// Refresh redraws with the current parameters.
func (s *SampleSet) Refresh() {
	// Parameters were validated when stored.
	_ = s.Regenerate(s.modulus, s.percentage)
}

// Contains reports whether id is still pending review.
func (s *SampleSet) Contains(id int) bool {
	_, ok := s.ids[id]
	return ok
}

// Consume removes id so it cannot trigger again this generation.
// It reports whether id was present.
func (s *SampleSet) Consume(id int) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Len is the number of ids still pending.
func (s *SampleSet) Len() int { return len(s.ids) }

// Drawn is the size of the set when it was last generated.
func (s *SampleSet) Drawn() int { return s.drawn }

// Generation increments on every regeneration.
func (s *SampleSet) Generation() uint64 { return s.generation }

// Modulus returns the id range upper bound.
func (s *SampleSet) Modulus() int { return s.modulus }

// Percentage returns the configured sampling percentage.
func (s *SampleSet) Percentage() float64 { return s.percentage }

// IDs returns the pending ids in ascending order.
func (s *SampleSet) IDs() []int {
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

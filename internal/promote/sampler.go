package promote

import "github.com/hexveil/obscura/internal/ir"

// Sampler makes the probabilistic promotion decision. It is a pure
// function of the policy seed and a variable's stable content-addressed
// identity - never of pipeline invocation order or runtime entropy - so
// repeated runs over an unchanged program with the same configuration
// promote exactly the same set. Tests fix the seed and assert exact
// promotion sets.
type Sampler struct {
	seed        uint64
	probability int
}

// NewSampler creates a sampler for one run.
func NewSampler(seed uint64, probability int) *Sampler {
	return &Sampler{seed: seed, probability: probability}
}

// Admit reports whether the identified variable passes the sample.
// Probability 100 admits everything, 0 admits nothing.
func (s *Sampler) Admit(id string) bool {
	if s.probability >= 100 {
		return true
	}
	if s.probability <= 0 {
		return false
	}
	return ir.Mix64(s.seed^ir.IDWord(id))%100 < uint64(s.probability)
}

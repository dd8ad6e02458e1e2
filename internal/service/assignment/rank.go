package assignment

import (
	"bytes"
	"math"
	"sort"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/service/eligibility"
)

// Candidate is one professional as seen by the ranking step.
type Candidate struct {
	Professional *model.MedicalProfessional `json:"professional"`
	OpenLoad     int                        `json:"open_load"`
	Eligibility  eligibility.Result         `json:"eligibility"`
}

// Rank orders candidates in place: eligible first, then level descending,
// score descending, open load ascending, license expiry descending and
// finally professional id. The order is total, so equal inputs always rank
// identically.
func Rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
}

func less(a, b Candidate) bool {
	if a.Eligibility.Eligible != b.Eligibility.Eligible {
		return a.Eligibility.Eligible
	}

	pa, pb := a.Professional, b.Professional
	if ra, rb := pa.Level.Rank(), pb.Level.Rank(); ra != rb {
		return ra > rb
	}
	if sa, sb := scoreOf(pa), scoreOf(pb); sa != sb {
		return sa > sb
	}
	if a.OpenLoad != b.OpenLoad {
		return a.OpenLoad < b.OpenLoad
	}
	if !pa.LicenseExpiry.Equal(pb.LicenseExpiry) {
		return pa.LicenseExpiry.After(pb.LicenseExpiry)
	}
	return bytes.Compare(pa.ID[:], pb.ID[:]) < 0
}

// scoreOf sorts unscored professionals last. They are never eligible, but
// the candidates view still lists them. NaN counts as unscored so the
// comparison stays a total order.
func scoreOf(p *model.MedicalProfessional) float64 {
	if p.Score == nil || math.IsNaN(*p.Score) {
		return math.Inf(-1)
	}
	return *p.Score
}

// Package eligibility decides whether a professional may take a case.
package eligibility

import (
	"math"
	"time"

	"github.com/jwalitptl/opinion-api/internal/model"
)

// Reason names one failed eligibility check.
type Reason string

const (
	ReasonNotVetted            Reason = "not_vetted"
	ReasonLicenseExpired       Reason = "license_expired"
	ReasonUnscored             Reason = "unscored"
	ReasonSubspecialtyMismatch Reason = "subspecialty_mismatch"
	ReasonAlreadyAssigned      Reason = "already_assigned"
)

// Result lists every failed check, not just the first.
type Result struct {
	Eligible bool     `json:"eligible"`
	Reasons  []Reason `json:"reasons,omitempty"`
}

// Filter is pure: it never touches the store or the clock.
type Filter struct {
	compatible map[model.Subspecialty]map[model.Subspecialty]bool
}

// NewFilter builds a filter from a disease type -> accepted subspecialties
// table. Keys and values are normalized.
func NewFilter(compatible map[string][]string) *Filter {
	table := make(map[model.Subspecialty]map[model.Subspecialty]bool, len(compatible))
	for disease, subs := range compatible {
		key := model.Subspecialty(disease).Normalize()
		if table[key] == nil {
			table[key] = make(map[model.Subspecialty]bool, len(subs))
		}
		for _, s := range subs {
			table[key][model.Subspecialty(s).Normalize()] = true
		}
	}
	return &Filter{compatible: table}
}

// Check evaluates p against c at now. open holds the non-terminal
// assignments relevant to the case.
func (f *Filter) Check(c *model.Case, p *model.MedicalProfessional, open []*model.CaseAssignment, now time.Time) Result {
	var reasons []Reason

	if !p.Vetted {
		reasons = append(reasons, ReasonNotVetted)
	}
	if !p.LicenseExpiry.After(now) {
		reasons = append(reasons, ReasonLicenseExpired)
	}
	if p.Score == nil || math.IsNaN(*p.Score) {
		reasons = append(reasons, ReasonUnscored)
	}
	if !f.Matches(c.DiseaseType, p.Subspecialty) {
		reasons = append(reasons, ReasonSubspecialtyMismatch)
	}
	for _, a := range open {
		if a.CaseID == c.ID && a.ProfessionalID == p.ID && !a.Status.Terminal() {
			reasons = append(reasons, ReasonAlreadyAssigned)
			break
		}
	}

	return Result{Eligible: len(reasons) == 0, Reasons: reasons}
}

// Matches reports whether a professional's subspecialty covers the disease
// type. A case without a disease type matches everyone.
func (f *Filter) Matches(diseaseType *model.Subspecialty, sub model.Subspecialty) bool {
	if diseaseType == nil || diseaseType.Normalize() == "" {
		return true
	}
	want := diseaseType.Normalize()
	have := sub.Normalize()
	if want == have {
		return true
	}
	return f.compatible[want][have]
}

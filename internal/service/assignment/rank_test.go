package assignment

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/service/eligibility"
)

func candidate(id string, level model.Level, score float64, load int, expiry time.Time) Candidate {
	return Candidate{
		Professional: &model.MedicalProfessional{
			Base:          model.Base{ID: uuid.MustParse(id)},
			Level:         level,
			Score:         &score,
			LicenseExpiry: expiry,
		},
		OpenLoad:    load,
		Eligibility: eligibility.Result{Eligible: true},
	}
}

func ids(cs []Candidate) []uuid.UUID {
	out := make([]uuid.UUID, len(cs))
	for i, c := range cs {
		out[i] = c.Professional.ID
	}
	return out
}

func TestRankOrder(t *testing.T) {
	later := start.AddDate(3, 0, 0)
	sooner := start.AddDate(1, 0, 0)

	ineligible := candidate("00000000-0000-0000-0000-000000000001", model.LevelDistinguished, 100, 0, later)
	ineligible.Eligibility = eligibility.Result{Reasons: []eligibility.Reason{eligibility.ReasonNotVetted}}

	want := []Candidate{
		candidate("00000000-0000-0000-0000-000000000009", model.LevelDistinguished, 10, 5, sooner),
		candidate("00000000-0000-0000-0000-000000000008", model.LevelExpert, 90, 2, sooner),
		candidate("00000000-0000-0000-0000-000000000007", model.LevelExpert, 80, 0, sooner),
		candidate("00000000-0000-0000-0000-000000000006", model.LevelExpert, 80, 1, later),
		// identical profiles tie-break on id
		candidate("00000000-0000-0000-0000-000000000003", model.LevelExpert, 80, 1, sooner),
		candidate("00000000-0000-0000-0000-000000000004", model.LevelExpert, 80, 1, sooner),
		candidate("00000000-0000-0000-0000-000000000005", model.LevelExpert, 80, 1, sooner),
		candidate("00000000-0000-0000-0000-000000000002", model.LevelJunior, 99, 0, later),
		ineligible,
	}
	expected := ids(want)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got := append([]Candidate(nil), want...)
		r.Shuffle(len(got), func(a, b int) { got[a], got[b] = got[b], got[a] })
		Rank(got)
		assert.Equal(t, expected, ids(got))
	}
}

func TestRankUnscoredLast(t *testing.T) {
	scored := candidate("00000000-0000-0000-0000-00000000000a", model.LevelSenior, 0, 0, start)
	unscored := candidate("00000000-0000-0000-0000-00000000000b", model.LevelSenior, 0, 0, start)
	unscored.Professional.Score = nil

	got := []Candidate{unscored, scored}
	Rank(got)
	assert.Equal(t, scored.Professional.ID, got[0].Professional.ID)
}

func TestRankNaNScoreIsDeterministic(t *testing.T) {
	a := candidate("00000000-0000-0000-0000-0000000000a1", model.LevelSenior, 70, 0, start)
	b := candidate("00000000-0000-0000-0000-0000000000a2", model.LevelSenior, math.NaN(), 0, start)
	c := candidate("00000000-0000-0000-0000-0000000000a3", model.LevelSenior, 50, 0, start)
	d := candidate("00000000-0000-0000-0000-0000000000a4", model.LevelSenior, math.NaN(), 0, start)
	e := candidate("00000000-0000-0000-0000-0000000000a5", model.LevelSenior, 60, 0, start)

	expected := ids([]Candidate{a, e, c, b, d})
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		got := []Candidate{a, b, c, d, e}
		r.Shuffle(len(got), func(x, y int) { got[x], got[y] = got[y], got[x] })
		Rank(got)
		assert.Equal(t, expected, ids(got))
	}
}

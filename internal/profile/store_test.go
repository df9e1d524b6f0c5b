package profile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
)

// StoreSuite exercises the SQLite profile store against a temp database.
type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *StoreSuite) SetupTest() {
	st, err := Open(filepath.Join(s.T().TempDir(), "profiles", "coach.db"))
	s.Require().NoError(err)
	s.store = st
	s.ctx = context.Background()
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) TestUnknownParticipantIsEmpty() {
	p, err := s.store.Load(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Equal("nobody", p.ParticipantID)
	s.Empty(p.DomainScores)
	s.Empty(p.RecentActivityIDs)
	s.Empty(p.PriorityDomains)
}

func (s *StoreSuite) TestRecordThenLoad() {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := s.store.Record(s.ctx, "p1", "s1", at, []Result{
		{ActivityID: "digit-span-backward", Domain: content.DomainWorkingMemory, Score: 80},
		{ActivityID: "fluency-animals", Domain: content.DomainLanguage, Score: 40},
	})
	s.Require().NoError(err)
	err = s.store.Record(s.ctx, "p1", "s2", at.Add(24*time.Hour), []Result{
		{ActivityID: "n-back-words", Domain: content.DomainWorkingMemory, Score: 60},
	})
	s.Require().NoError(err)

	p, err := s.store.Load(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal([]float64{80, 60}, p.DomainScores[content.DomainWorkingMemory])
	s.Equal([]float64{40}, p.DomainScores[content.DomainLanguage])
	s.Equal([]string{"n-back-words", "fluency-animals", "digit-span-backward"}, p.RecentActivityIDs)

	other, err := s.store.Load(s.ctx, "p2")
	s.Require().NoError(err)
	s.Empty(other.DomainScores)
}

func (s *StoreSuite) TestScoresAreCappedPerDomain() {
	for i := 0; i < scoresPerDomain+5; i++ {
		s.Require().NoError(s.store.Record(s.ctx, "p1", "s", time.Now(), []Result{
			{ActivityID: "a", Domain: content.DomainLanguage, Score: float64(i)},
		}))
	}
	p, err := s.store.Load(s.ctx, "p1")
	s.Require().NoError(err)
	scores := p.DomainScores[content.DomainLanguage]
	s.Len(scores, scoresPerDomain)
	s.Equal(float64(scoresPerDomain+4), scores[len(scores)-1])
	s.Len(p.RecentActivityIDs, recentActivities)
}

func (s *StoreSuite) TestPriorityDomains() {
	s.Require().NoError(s.store.SetPriorityDomains(s.ctx, "p1", []content.Domain{content.DomainLanguage, content.DomainWorkingMemory}))
	p, err := s.store.Load(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal([]content.Domain{content.DomainLanguage, content.DomainWorkingMemory}, p.PriorityDomains)

	s.Require().NoError(s.store.SetPriorityDomains(s.ctx, "p1", nil))
	p, err = s.store.Load(s.ctx, "p1")
	s.Require().NoError(err)
	s.Empty(p.PriorityDomains)

	s.Error(s.store.SetPriorityDomains(s.ctx, "p1", []content.Domain{"astrology"}))
}

func TestDifficultyFor(t *testing.T) {
	p := New("p")
	assert.Equal(t, content.DifficultyMedium, p.DifficultyFor(content.DomainLanguage))

	p.DomainScores[content.DomainLanguage] = []float64{90, 70}
	assert.Equal(t, content.DifficultyHigh, p.DifficultyFor(content.DomainLanguage))
	p.DomainScores[content.DomainLanguage] = []float64{50, 60}
	assert.Equal(t, content.DifficultyMedium, p.DifficultyFor(content.DomainLanguage))
	p.DomainScores[content.DomainLanguage] = []float64{10, 30}
	assert.Equal(t, content.DifficultyLow, p.DifficultyFor(content.DomainLanguage))

	var none *Profile
	assert.Equal(t, content.DifficultyMedium, none.DifficultyFor(content.DomainLanguage))
}

func TestPriorities(t *testing.T) {
	pool := []content.Domain{content.DomainComplexAttention, content.DomainLanguage, content.DomainWorkingMemory}
	p := New("p")
	p.DomainScores[content.DomainComplexAttention] = []float64{90}
	p.DomainScores[content.DomainLanguage] = []float64{30}

	assert.Equal(t, []content.Domain{
		content.DomainWorkingMemory,
		content.DomainLanguage,
		content.DomainComplexAttention,
	}, p.Priorities(pool))

	p.PriorityDomains = []content.Domain{content.DomainComplexAttention}
	assert.Equal(t, []content.Domain{content.DomainComplexAttention}, p.Priorities(pool))
}

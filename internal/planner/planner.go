// Package planner builds the ordered activity plan for one session from the
// content library and, when available, the participant's profile.
package planner

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/content"
	"github.com/CoCoMind/coco-device-sub000/internal/profile"
)

// ErrNoActivities means the library has nothing at all for a slot the plan
// requires. It is a configuration error, unlike running out of non-repeat
// choices, which falls back to repeats.
var ErrNoActivities = errors.New("planner: no activities in library")

// Default ids of the delayed-recall pair.
const (
	PlantID   = "word-list-plant"
	HarvestID = "word-list-harvest"
)

// SessionPlan is the read-only plan for one session.
type SessionPlan struct {
	SessionID            string             `json:"session_id"`
	PlanID               string             `json:"plan_id"`
	Activities           []content.Activity `json:"activities"`
	TargetDomains        []content.Domain   `json:"target_domains"`
	EstimatedDurationMin float64            `json:"estimated_duration_min"`
	CreatedAt            time.Time          `json:"created_at"`
}

type slotKind int

const (
	slotFixed slotKind = iota
	slotDomain
)

// Slot is one position in the session structure. A fixed slot names either an
// activity id or a domain; a domain slot picks its domain at plan time.
type Slot struct {
	kind   slotKind
	id     string
	domain content.Domain
}

// FixedID is a slot resolved by activity id.
func FixedID(id string) Slot { return Slot{kind: slotFixed, id: id} }

// FixedDomain is a slot resolved by picking any activity of d.
func FixedDomain(d content.Domain) Slot { return Slot{kind: slotFixed, domain: d} }

// DomainBlock is a slot whose domain is chosen from the candidate pool.
func DomainBlock() Slot { return Slot{kind: slotDomain} }

// DefaultSlots is orientation, word-list plant, three domain blocks,
// word-list harvest, closing.
func DefaultSlots() []Slot {
	return []Slot{
		FixedDomain(content.DomainOrientation),
		FixedID(PlantID),
		DomainBlock(),
		DomainBlock(),
		DomainBlock(),
		FixedID(HarvestID),
		FixedDomain(content.DomainClosing),
	}
}

// Planner selects activities. It is safe for concurrent use.
type Planner struct {
	lib   *content.Library
	slots []Slot
	pool  []content.Domain
	log   *zap.Logger
	now   func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customises a Planner.
type Option func(*Planner)

// WithSlots replaces the session structure.
func WithSlots(slots []Slot) Option { return func(p *Planner) { p.slots = slots } }

// WithClock overrides the plan timestamp source.
func WithClock(now func() time.Time) Option { return func(p *Planner) { p.now = now } }

// New returns a planner over lib. A nil rng is seeded from the clock.
func New(lib *content.Library, rng *rand.Rand, log *zap.Logger, opts ...Option) *Planner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &Planner{
		lib:   lib,
		slots: DefaultSlots(),
		pool:  content.TrainableDomains,
		log:   log,
		now:   time.Now,
		rng:   rng,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// BuildPlan returns only the activities of a profile-less plan.
func (p *Planner) BuildPlan() ([]content.Activity, error) {
	plan, err := p.BuildAdaptivePlan(nil)
	if err != nil {
		return nil, err
	}
	return plan.Activities, nil
}

// BuildAdaptivePlan walks the slots and fills each one. prof may be nil.
func (p *Planner) BuildAdaptivePlan(prof *profile.Profile) (*SessionPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reserved := make(map[string]bool)
	for _, s := range p.slots {
		if s.id != "" {
			reserved[s.id] = true
		}
	}

	pool := p.availablePool(reserved)
	priorities := prof.Priorities(p.shuffled(pool))

	b := &build{
		usedIDs:     make(map[string]bool),
		usedDomains: make(map[content.Domain]bool),
	}
	for i, s := range p.slots {
		var (
			act content.Activity
			err error
		)
		switch {
		case s.kind == slotFixed && s.id != "":
			act, err = p.lib.ByID(s.id)
			if err != nil {
				return nil, fmt.Errorf("%w: slot %d wants %q", ErrNoActivities, i, s.id)
			}
		case s.kind == slotFixed:
			act, err = p.pick(s.domain, b, reserved, prof)
		default:
			if len(pool) == 0 {
				return nil, fmt.Errorf("%w: no trainable domain has activities", ErrNoActivities)
			}
			d := chooseDomain(priorities, pool, b.usedDomains)
			b.usedDomains[d] = true
			act, err = p.pick(d, b, reserved, prof)
		}
		if err != nil {
			return nil, err
		}
		if prof != nil && act.Difficulty == content.DifficultyAdaptive {
			act = act.WithDifficulty(prof.DifficultyFor(act.Domain))
		}
		b.usedIDs[act.ID] = true
		b.activities = append(b.activities, act)
	}

	plan := &SessionPlan{
		SessionID:  uuid.NewString(),
		PlanID:     uuid.NewString(),
		Activities: b.activities,
		CreatedAt:  p.now().UTC(),
	}
	seen := make(map[content.Domain]bool)
	for _, a := range b.activities {
		plan.EstimatedDurationMin += a.DurationMin
		if !seen[a.Domain] {
			seen[a.Domain] = true
			plan.TargetDomains = append(plan.TargetDomains, a.Domain)
		}
	}
	p.log.Debug("plan built",
		zap.String("session_id", plan.SessionID),
		zap.Int("activities", len(plan.Activities)),
		zap.Any("domains", plan.TargetDomains),
		zap.Float64("estimated_min", plan.EstimatedDurationMin),
	)
	return plan, nil
}

type build struct {
	activities  []content.Activity
	usedIDs     map[string]bool
	usedDomains map[content.Domain]bool
}

// pick chooses an activity of domain d: unused and not recent first, then
// unused, then any (repeat fallback). Reserved fixed-slot ids are never picked.
func (p *Planner) pick(d content.Domain, b *build, reserved map[string]bool, prof *profile.Profile) (content.Activity, error) {
	var all, fresh, unused []content.Activity
	for _, a := range p.lib.ByDomain(d) {
		if reserved[a.ID] {
			continue
		}
		all = append(all, a)
		if b.usedIDs[a.ID] {
			continue
		}
		unused = append(unused, a)
		if !prof.Recent(a.ID) {
			fresh = append(fresh, a)
		}
	}
	switch {
	case len(fresh) > 0:
		return fresh[p.rng.Intn(len(fresh))], nil
	case len(unused) > 0:
		return unused[p.rng.Intn(len(unused))], nil
	case len(all) > 0:
		p.log.Info("no unused activity left, repeating", zap.String("domain", string(d)))
		return all[p.rng.Intn(len(all))], nil
	}
	return content.Activity{}, fmt.Errorf("%w: domain %s", ErrNoActivities, d)
}

// availablePool is the trainable domains the library can actually serve
// outside the fixed slots.
func (p *Planner) availablePool(reserved map[string]bool) []content.Domain {
	var out []content.Domain
	for _, d := range p.pool {
		for _, a := range p.lib.ByDomain(d) {
			if !reserved[a.ID] {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func (p *Planner) shuffled(ds []content.Domain) []content.Domain {
	out := append([]content.Domain(nil), ds...)
	p.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// chooseDomain prefers an unused priority domain, then any unused pool
// domain, then the pool's first entry.
func chooseDomain(priorities, pool []content.Domain, used map[content.Domain]bool) content.Domain {
	inPool := make(map[content.Domain]bool, len(pool))
	for _, d := range pool {
		inPool[d] = true
	}
	for _, d := range priorities {
		if inPool[d] && !used[d] {
			return d
		}
	}
	for _, d := range pool {
		if !used[d] {
			return d
		}
	}
	return pool[0]
}

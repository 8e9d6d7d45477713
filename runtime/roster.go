package runtime

import (
	"sync"

	"conclave/domain"
	apperrors "conclave/errors"
)

// Roster is the live participant configuration store. The round processor
// reads it at the top of every loop iteration, so an edit made mid-round
// (disabling a participant, rotating a key) takes effect on the very next
// turn without restarting the round.
type Roster struct {
	mu           sync.RWMutex
	participants map[string]domain.Participant
	order        []string
}

func NewRoster() *Roster {
	return &Roster{participants: make(map[string]domain.Participant)}
}

// Load replaces the whole roster, preserving the given order.
func (r *Roster) Load(participants []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants = make(map[string]domain.Participant, len(participants))
	r.order = r.order[:0]
	for _, p := range participants {
		r.participants[p.ID] = p
		r.order = append(r.order, p.ID)
	}
}

// Upsert adds or replaces one participant. New participants go to the end
// of the roster order.
func (r *Roster) Upsert(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.participants[p.ID] = p
}

func (r *Roster) Get(id string) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// All returns every participant in roster order.
func (r *Roster) All() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id])
	}
	return out
}

// Enabled returns enabled participants in roster order, excluding the given
// id (usually the referee).
func (r *Roster) Enabled(exclude string) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Participant
	for _, id := range r.order {
		p := r.participants[id]
		if p.Enabled && p.ID != exclude {
			out = append(out, p)
		}
	}
	return out
}

func (r *Roster) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return apperrors.ErrParticipantNotFound
	}
	p.Enabled = enabled
	r.participants[id] = p
	return nil
}

// AddUsage accumulates token counters on the participant.
func (r *Roster) AddUsage(id string, usage domain.TokenUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return
	}
	p.Usage.Add(usage)
	r.participants[id] = p
}

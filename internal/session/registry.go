package session

import "errors"

type Role string

const (
	RoleNone        Role = "NONE"
	RoleHunter      Role = "HUNTER"
	RoleInfiltrator Role = "INFILTRATOR"
)

// ErrUnknownParticipant is warning-class: disconnect races make operations
// on already-removed ids an expected occurrence, so callers log and move on.
var ErrUnknownParticipant = errors.New("unknown participant")

type Participant struct {
	ID          int64
	Name        string
	Role        Role
	Alive       bool
	ResumeToken string
	JoinedTick  uint64
}

// Registry tracks connected participants. Insertion order is preserved for
// deterministic role-assignment fallback and roster snapshots.
type Registry struct {
	byID  map[int64]*Participant
	order []int64
}

func NewRegistry() *Registry {
	return &Registry{byID: map[int64]*Participant{}}
}

func (r *Registry) Add(p *Participant) error {
	if p == nil {
		return ErrUnknownParticipant
	}
	if _, ok := r.byID[p.ID]; ok {
		return errors.New("participant already registered")
	}
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

func (r *Registry) Remove(id int64) error {
	if _, ok := r.byID[id]; !ok {
		return ErrUnknownParticipant
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Registry) Get(id int64) *Participant {
	return r.byID[id]
}

func (r *Registry) SetRole(id int64, role Role) error {
	p, ok := r.byID[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.Role = role
	return nil
}

func (r *Registry) SetAlive(id int64, alive bool) error {
	p, ok := r.byID[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.Alive = alive
	return nil
}

func (r *Registry) IsAlive(id int64) bool {
	p, ok := r.byID[id]
	return ok && p.Alive
}

func (r *Registry) CountAliveWithRole(role Role) int {
	n := 0
	for _, p := range r.byID {
		if p.Role == role && p.Alive {
			n++
		}
	}
	return n
}

// IDsInOrder returns participant ids in join order.
func (r *Registry) IDsInOrder() []int64 {
	out := make([]int64, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int { return len(r.byID) }

func (r *Registry) Reset() {
	r.byID = map[int64]*Participant{}
	r.order = r.order[:0]
}

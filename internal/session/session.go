package session

import (
	"context"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"manhunt.gg/internal/protocol"
)

// BroadcastJournal receives every broadcast event for durable record.
// Writes happen on the session goroutine and must not block.
type BroadcastJournal interface {
	Write(v any) error
}

// MatchSink receives match-level rows for the queryable index.
type MatchSink interface {
	SessionStarted(sessionID string, tick uint64, hunterID int64, participants int)
	ParticipantSeen(sessionID string, id int64, name string, role string)
	EliminationRecorded(sessionID string, tick uint64, reporterID, targetID int64, targetWasHunter bool)
	SessionEnded(sessionID string, tick uint64, winningRole, reason string)
}

// JoinRequest is the handshake funneled from the transport. Resp receives
// exactly one JoinResponse.
type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// AttachRequest resumes a live or recently disconnected participant by
// resume token. An empty response Welcome.SessionID means the token did not
// match and the transport should fall back to a fresh join.
type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

// RequestEnvelope is a participant request tagged with its authenticated
// sender id by the transport layer.
type RequestEnvelope struct {
	ParticipantID int64
	Req           protocol.RequestMsg
}

type clientState struct {
	Out chan []byte
}

type dedupeKey struct {
	Kind  string
	Scope string
}

type dedupeEntry struct {
	ExpiresTick uint64
}

// ghost is a disconnected participant held for the reconnect grace window.
type ghost struct {
	p           Participant
	claim       Position
	hadClaim    bool
	epoch       uint64
	expiresTick uint64
}

// Session is the authoritative state machine for one hide-and-seek session.
// All state behind the channels is owned by the Run goroutine; nothing else
// touches it.
type Session struct {
	cfg    SessionConfig
	log    *log.Logger
	layout Layout
	roster RosterProvider

	id    string
	tick  atomic.Uint64
	epoch uint64

	phase                Phase
	clockRemaining       uint64
	hunterID             int64
	worldReady           bool
	assignedInfiltrators int

	reg           *Registry
	pendingAssign []int64
	spawns        *SpawnBook
	dedupe        map[dedupeKey]dedupeEntry
	ghosts        map[string]*ghost
	recent        map[int64]uint64

	clients map[int64]*clientState
	outbox  []protocol.EventMsg
	seq     uint64

	rng     *rand.Rand
	roleSrc rand.Source

	inbox  chan RequestEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan int64
	stop   chan struct{}

	nextPeerNum  atomic.Uint64
	nextExtraNum atomic.Uint64

	journal BroadcastJournal
	match   MatchSink

	metrics atomic.Value
	prom    *promMetrics

	contentDeadline deadline
	joinGrace       deadline
	hunterGrace     deadline
	nextContentPoll uint64
	stalledTicks    uint64
	startingSince   uint64
}

func New(cfg SessionConfig, layout Layout, logger *log.Logger) *Session {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds)
	}
	s := &Session{
		cfg:     cfg,
		log:     logger,
		layout:  layout,
		id:      uuid.NewString(),
		phase:   PhaseWaiting,
		reg:     NewRegistry(),
		spawns:  NewSpawnBook(),
		dedupe:  map[dedupeKey]dedupeEntry{},
		ghosts:  map[string]*ghost{},
		recent:  map[int64]uint64{},
		clients: map[int64]*clientState{},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		inbox:   make(chan RequestEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		attach:  make(chan AttachRequest, 64),
		leave:   make(chan int64, 64),
		stop:    make(chan struct{}),
	}
	s.metrics.Store(SessionMetrics{Phase: string(s.phase)})
	return s
}

func (s *Session) SetRoster(r RosterProvider)    { s.roster = r }
func (s *Session) SetJournal(j BroadcastJournal) { s.journal = j }
func (s *Session) SetMatchSink(m MatchSink)      { s.match = m }
func (s *Session) SetPromMetrics(p *promMetrics) { s.prom = p }
func (s *Session) SetRoleSource(src rand.Source) { s.roleSrc = src }
func (s *Session) SetRandSource(src rand.Source) { s.rng = rand.New(src) }

func (s *Session) ID() string                    { return s.id }
func (s *Session) TickRateHz() int               { return s.cfg.TickRateHz }
func (s *Session) Inbox() chan<- RequestEnvelope { return s.inbox }
func (s *Session) Join() chan<- JoinRequest      { return s.join }
func (s *Session) Attach() chan<- AttachRequest  { return s.attach }
func (s *Session) Leave() chan<- int64           { return s.leave }

// Metrics returns the most recent end-of-tick snapshot. Safe from any
// goroutine.
func (s *Session) Metrics() SessionMetrics {
	m, _ := s.metrics.Load().(SessionMetrics)
	return m
}

func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingReqs []RequestEnvelope
	var pendingJoins []JoinRequest
	var pendingAttaches []AttachRequest
	var pendingLeaves []int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-s.attach:
			pendingAttaches = append(pendingAttaches, req)
		case id := <-s.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-s.inbox:
			pendingReqs = append(pendingReqs, env)
		case <-ticker.C:
			s.step(pendingJoins, pendingAttaches, pendingLeaves, pendingReqs)
			pendingJoins = pendingJoins[:0]
			pendingAttaches = pendingAttaches[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingReqs = pendingReqs[:0]
		}
	}
}

func (s *Session) Stop() { close(s.stop) }

func (s *Session) newParticipantID() int64 {
	return int64(s.nextPeerNum.Add(1))
}

// Extra ids are negative so they can never collide with participant ids.
func (s *Session) newExtraID() int64 {
	return -int64(s.nextExtraNum.Add(1))
}

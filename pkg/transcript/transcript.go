package transcript

import (
	"sync"
	"time"
)

// Speaker identifies who authored a turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Status tracks the lifecycle of an optimistically appended turn. Bot turns
// and seeded history are confirmed from the start; user turns start out
// pending until the submission they belong to resolves.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Turn is a single line of the conversation.
type Turn struct {
	ID        int
	Speaker   Speaker
	Body      string
	CreatedAt time.Time
	Status    Status
}

// Transcript is an ordered, append-only log of chat turns. Turns are never
// removed or reordered once appended; a failed submission only flips the
// status of its pending turn.
type Transcript struct {
	mu    sync.Mutex
	turns []Turn
	now   func() time.Time
}

type Option func(*Transcript)

// WithClock overrides the time source used for locally created turns.
func WithClock(now func() time.Time) Option {
	return func(t *Transcript) {
		t.now = now
	}
}

func New(options ...Option) *Transcript {
	t := &Transcript{
		now: time.Now,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Append adds a confirmed turn and returns its id.
func (t *Transcript) Append(speaker Speaker, body string) int {
	return t.append(speaker, body, t.clock(), StatusConfirmed)
}

// AppendPending adds a turn in the pending state, to be confirmed or failed
// once the submission it belongs to resolves.
func (t *Transcript) AppendPending(speaker Speaker, body string) int {
	return t.append(speaker, body, t.clock(), StatusPending)
}

// Seed adds a confirmed turn carrying a server-supplied timestamp. Used when
// replaying conversation history on resume.
func (t *Transcript) Seed(speaker Speaker, body string, at time.Time) int {
	return t.append(speaker, body, at, StatusConfirmed)
}

func (t *Transcript) append(speaker Speaker, body string, at time.Time, status Status) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := len(t.turns)
	t.turns = append(t.turns, Turn{
		ID:        id,
		Speaker:   speaker,
		Body:      body,
		CreatedAt: at,
		Status:    status,
	})
	return id
}

// Confirm marks a pending turn as confirmed.
func (t *Transcript) Confirm(id int) {
	t.setStatus(id, StatusConfirmed)
}

// Fail marks a pending turn as failed. The turn stays in the transcript so
// the failed submission remains visible.
func (t *Transcript) Fail(id int) {
	t.setStatus(id, StatusFailed)
}

func (t *Transcript) setStatus(id int, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.turns) {
		return
	}
	if t.turns[id].Status != StatusPending {
		return
	}
	t.turns[id].Status = status
}

// Turns returns a copy of all turns in append order.
func (t *Transcript) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}

// LastBot returns the most recent bot turn, if any.
func (t *Transcript) LastBot() (Turn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Speaker == SpeakerBot {
			return t.turns[i], true
		}
	}
	return Turn{}, false
}

func (t *Transcript) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Package session keeps short-term conversation memory in a fixed-size
// arena of per-chat ring buffers.
package session

import (
	"log/slog"
	"sync"
)

const (
	// DefaultMaxUsers bounds the number of concurrently remembered chats.
	DefaultMaxUsers = 8
	// DefaultMaxExchanges is the number of remembered user/assistant
	// exchanges per chat; each exchange occupies two ring slots.
	DefaultMaxExchanges = 3
	// DefaultMaxTurnLen truncates stored turn content.
	DefaultMaxTurnLen = 512
)

// Roles stored in a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type slot struct {
	chatID string
	turns  []Turn
	head   int
	count  int
	inUse  bool
	// stamp orders slot reuse; the least recently appended slot is
	// reclaimed when the arena is full.
	stamp uint64
}

// Store is a bounded table of conversation rings.
//
// The arena is allocated once at construction; a chat claims a slot lazily
// on first append and slots are reused, never freed. One mutex serializes
// every operation, and no operation spans I/O while holding it.
type Store struct {
	mu    sync.Mutex
	slots []slot
	index map[string]int
	clock uint64

	capacity int
	maxLen   int
	log      *slog.Logger
}

// New allocates the session arena.
// Non-positive bounds fall back to the package defaults.
func New(maxUsers, maxExchanges, maxTurnLen int, log *slog.Logger) *Store {
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	if maxTurnLen <= 0 {
		maxTurnLen = DefaultMaxTurnLen
	}
	if log == nil {
		log = slog.Default()
	}

	capacity := maxExchanges * 2
	slots := make([]slot, maxUsers)
	for i := range slots {
		slots[i].turns = make([]Turn, capacity)
	}

	return &Store{
		slots:    slots,
		index:    make(map[string]int, maxUsers),
		capacity: capacity,
		maxLen:   maxTurnLen,
		log:      log.With("component", "session.store"),
	}
}

// Append records one turn for a chat, truncating content to the configured
// length. When all slots are occupied by other chats, the least recently
// appended slot is wiped and reused.
func (s *Store) Append(chatID, role, content string) {
	if chatID == "" || role == "" {
		return
	}
	if len(content) > s.maxLen {
		content = content[:s.maxLen]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl := s.claim(chatID)
	sl.turns[sl.head] = Turn{Role: role, Content: content}
	sl.head = (sl.head + 1) % s.capacity
	if sl.count < s.capacity {
		sl.count++
	}
	s.clock++
	sl.stamp = s.clock
}

// History returns the most recent min(maxTurns, stored) turns in
// chronological order. maxTurns of zero means all stored turns. An unknown
// chat yields an empty slice.
func (s *Store) History(chatID string, maxTurns int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[chatID]
	if !ok {
		return nil
	}
	sl := &s.slots[i]

	count := sl.count
	if maxTurns > 0 && maxTurns < count {
		count = maxTurns
	}
	if count == 0 {
		return nil
	}

	out := make([]Turn, count)
	start := (sl.head - count + s.capacity) % s.capacity
	for j := 0; j < count; j++ {
		out[j] = sl.turns[(start+j)%s.capacity]
	}
	return out
}

// Clear wipes the ring for a chat and releases its slot.
func (s *Store) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[chatID]
	if !ok {
		return
	}
	s.reset(&s.slots[i])
	delete(s.index, chatID)
}

// claim returns the slot for chatID, taking a free slot or evicting the
// least recently appended one. Caller holds the mutex.
func (s *Store) claim(chatID string) *slot {
	if i, ok := s.index[chatID]; ok {
		return &s.slots[i]
	}

	victim := -1
	for i := range s.slots {
		if !s.slots[i].inUse {
			victim = i
			break
		}
		if victim < 0 || s.slots[i].stamp < s.slots[victim].stamp {
			victim = i
		}
	}

	sl := &s.slots[victim]
	if sl.inUse {
		s.log.Warn("Session table full, evicting least recently used chat", "evicted", sl.chatID, "chat_id", chatID)
		delete(s.index, sl.chatID)
		s.reset(sl)
	}

	sl.chatID = chatID
	sl.inUse = true
	s.index[chatID] = victim
	return sl
}

func (s *Store) reset(sl *slot) {
	for i := range sl.turns {
		sl.turns[i] = Turn{}
	}
	sl.chatID = ""
	sl.head = 0
	sl.count = 0
	sl.stamp = 0
	sl.inUse = false
}

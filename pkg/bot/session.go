package bot

import "sync"

// state is where a user is in the conversation.
type state int

const (
	stateIdle state = iota
	stateAwaitingServer
	stateAwaitingPlayer
	stateAwaitingResetConfirm
)

func (s state) String() string {
	switch s {
	case stateAwaitingServer:
		return "awaitingServer"
	case stateAwaitingPlayer:
		return "awaitingPlayer"
	case stateAwaitingResetConfirm:
		return "awaitingResetConfirm"
	default:
		return "idle"
	}
}

// session is the per-user conversation state. It lives only in memory.
//
// pendingServer and pendingPlayer hold a value the user entered before the
// other one was stored: the store only creates a user's record once both are
// known.
type session struct {
	mu            sync.Mutex
	state         state
	pendingServer string
	pendingPlayer string
	lastHelpMsg   int

	// dropped is set once the session left the map; holders retry.
	dropped bool
}

// idle reports whether the session carries nothing worth keeping.
func (s *session) idle() bool {
	return s.state == stateIdle && s.pendingServer == "" && s.pendingPlayer == "" && s.lastHelpMsg == 0
}

func (s *session) clearPending() {
	s.pendingServer = ""
	s.pendingPlayer = ""
}

type sessions struct {
	mu     sync.Mutex
	byUser map[int64]*session
}

func newSessions() *sessions {
	return &sessions{byUser: make(map[int64]*session)}
}

func (s *sessions) get(userID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byUser[userID]
	if !ok {
		sess = &session{}
		s.byUser[userID] = sess
	}
	return sess
}

// acquire returns the user's session locked. Messages from one user are
// serialized on it.
func (s *sessions) acquire(userID int64) *session {
	for {
		sess := s.get(userID)
		sess.mu.Lock()
		if !sess.dropped {
			return sess
		}
		sess.mu.Unlock()
	}
}

// release unlocks sess and forgets it when it is idle, so the map only holds
// users that are in the middle of something.
func (s *sessions) release(userID int64, sess *session) {
	if sess.idle() {
		s.mu.Lock()
		if s.byUser[userID] == sess {
			delete(s.byUser, userID)
		}
		s.mu.Unlock()
		sess.dropped = true
	}
	sess.mu.Unlock()
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

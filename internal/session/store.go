package session

// Store holds at most one session per client id. It is not synchronized; the
// broker lock guards it.
type Store struct {
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (s *Store) Get(clientID string) (*Session, bool) {
	session, ok := s.sessions[clientID]
	return session, ok
}

// Save replaces any session stored under the same client id.
func (s *Store) Save(session *Session) {
	s.sessions[session.ClientID] = session
}

func (s *Store) Delete(clientID string) {
	delete(s.sessions, clientID)
}

// Range calls fn for every session until fn returns false.
func (s *Store) Range(fn func(*Session) bool) {
	for _, session := range s.sessions {
		if !fn(session) {
			return
		}
	}
}

func (s *Store) Len() int {
	return len(s.sessions)
}

// CountByState returns the number of sessions in state.
func (s *Store) CountByState(state State) int {
	n := 0
	for _, session := range s.sessions {
		if session.State == state {
			n++
		}
	}
	return n
}

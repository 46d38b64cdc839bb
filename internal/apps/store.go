package apps

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoSize bounds the assignment memo. User ids grow without bound over a long
// run; an evicted id is recomputed to the same profile.
const memoSize = 8192

// Store holds the loaded pool and the per-user assignment memo.
type Store struct {
	apps        []*Profile
	usersPerApp int
	memo        *lru.Cache[int, *Profile]
}

// NewStore copies profiles into a new store. It fails if the pool is empty or
// usersPerApp is not positive.
func NewStore(profiles []Profile, usersPerApp int) (*Store, error) {
	if len(profiles) == 0 {
		return nil, ErrEmptyPool
	}
	if usersPerApp <= 0 {
		return nil, fmt.Errorf("users per app must be positive, got %d", usersPerApp)
	}

	memo, err := lru.New[int, *Profile](memoSize)
	if err != nil {
		return nil, err
	}

	s := &Store{
		apps:        make([]*Profile, len(profiles)),
		usersPerApp: usersPerApp,
		memo:        memo,
	}
	for i := range profiles {
		p := profiles[i]
		p.RagDocs = append([]string(nil), profiles[i].RagDocs...)
		s.apps[i] = &p
	}
	return s, nil
}

// Len returns the number of profiles in the pool.
func (s *Store) Len() int {
	return len(s.apps)
}

// Assign returns the profile for userID. Every block of usersPerApp
// consecutive ids shares one profile, wrapping around the pool.
func (s *Store) Assign(userID int) *Profile {
	if p, ok := s.memo.Get(userID); ok {
		return p
	}
	n := len(s.apps)
	idx := ((userID/s.usersPerApp)%n + n) % n
	p := s.apps[idx]
	s.memo.Add(userID, p)
	return p
}

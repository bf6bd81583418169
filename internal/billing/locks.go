package billing

import "sync"

// apartmentLocks serializes allocations per apartment. Two concurrent
// allocations for the same apartment would both read the same credit
// balance and next-unpaid month and then both write; holding one lock
// per apartment id from the credit read through the balance write rules
// that out. Different apartments proceed independently.
//
// Entries are never removed; the map is bounded by the number of
// apartments ever allocated against in this process.
type apartmentLocks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

func (l *apartmentLocks) lock(apartmentID int64) *sync.Mutex {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[int64]*sync.Mutex)
	}
	apt, ok := l.m[apartmentID]
	if !ok {
		apt = &sync.Mutex{}
		l.m[apartmentID] = apt
	}
	l.mu.Unlock()

	apt.Lock()
	return apt
}

package dpusim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Session is an exclusive claim on one simulated device.
type Session struct {
	ID     string
	Device int
	Target string
}

// DevicePool hands out simulated devices to modules, one session per
// device. It is safe for concurrent use.
type DevicePool struct {
	mu       sync.Mutex
	busy     []bool
	sessions map[string]*Session
}

// NewDevicePool creates a pool of n devices.
func NewDevicePool(n int) *DevicePool {
	if n < 1 {
		n = 1
	}
	return &DevicePool{busy: make([]bool, n), sessions: make(map[string]*Session)}
}

// Acquire claims the lowest free device for target.
func (p *DevicePool) Acquire(target string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range p.busy {
		if b {
			continue
		}
		p.busy[i] = true
		s := &Session{ID: uuid.New().String(), Device: i, Target: target}
		p.sessions[s.ID] = s
		return s, nil
	}
	return nil, fmt.Errorf("all %d devices are in use", len(p.busy))
}

// Release returns the session's device to the pool. Releasing an unknown
// or already released session is an error.
func (p *DevicePool) Release(s *Session) error {
	if s == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s is not active", s.ID)
	}
	delete(p.sessions, s.ID)
	p.busy[s.Device] = false
	return nil
}

// Active returns the number of open sessions.
func (p *DevicePool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Size returns the number of devices.
func (p *DevicePool) Size() int {
	return len(p.busy)
}

// Sessions returns the open session IDs, sorted.
func (p *DevicePool) Sessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

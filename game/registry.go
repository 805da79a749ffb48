package game

import "sync"

// Registry maps battle IDs to live battles. It guards only the map; battle state has its own lock.
type Registry struct {
	mu      sync.RWMutex
	battles map[string]*Battle
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{battles: map[string]*Battle{}}
}

func (r *Registry) Add(b *Battle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.battles[b.ID]; !ok {
		r.order = append(r.order, b.ID)
	}
	r.battles[b.ID] = b
}

func (r *Registry) Get(id string) (*Battle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.battles[id]
	return b, ok
}

// List returns the battles in creation order.
func (r *Registry) List() []*Battle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]*Battle, 0, len(r.order))
	for _, id := range r.order {
		ret = append(ret, r.battles[id])
	}
	return ret
}

// Remove drops the battle and cancels its round timer.
func (r *Registry) Remove(id string) (*Battle, bool) {
	r.mu.Lock()
	b, ok := r.battles[id]
	if ok {
		delete(r.battles, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if ok {
		b.stop()
	}
	return b, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.battles)
}

// Close cancels every round timer.
func (r *Registry) Close() {
	for _, b := range r.List() {
		b.stop()
	}
}

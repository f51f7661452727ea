package mem

import "sync"

// Pool is a free-list-backed implementation of Page_i. It stands in for the
// boot-time physical bump allocator that spec.md §1 places out of scope: the
// real kernel hands the VM subsystem pages already reserved at boot, so all
// this core needs is something that satisfies Page_i. Pool is also what the
// package's own tests and the cmd/ksim harness use to get a runnable system.
type Pool struct {
	mu     sync.Mutex
	free   []Pa_t
	pages  map[Pa_t]*Bytepg_t
	nextpa Pa_t
}

/// NewPool creates a pool capable of handing out npages frames.
func NewPool(npages int) *Pool {
	p := &Pool{
		pages:  make(map[Pa_t]*Bytepg_t, npages),
		nextpa: Pa_t(PGSIZE), // reserve pa 0 so it is never mistaken for "no frame"
	}
	for i := 0; i < npages; i++ {
		pa := p.nextpa
		p.nextpa += Pa_t(PGSIZE)
		p.pages[pa] = &Bytepg_t{}
		p.free = append(p.free, pa)
	}
	return p
}

func (p *Pool) Alloc() (*Bytepg_t, Pa_t, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil, 0, false
	}
	pa := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	pg := p.pages[pa]
	*pg = Bytepg_t{}
	return pg, pa, true
}

func (p *Pool) Free(pa Pa_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pages[pa]; !ok {
		panic("mem: freeing unknown frame")
	}
	p.free = append(p.free, pa)
}

func (p *Pool) Deref(pa Pa_t) *Bytepg_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	pg, ok := p.pages[pa]
	if !ok {
		panic("mem: dereferencing unknown frame")
	}
	return pg
}

/// Free_len reports the number of frames currently available, used by tests
/// that need to fill the user pool to force eviction (spec.md §8 scenario 2).
func (p *Pool) Free_len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

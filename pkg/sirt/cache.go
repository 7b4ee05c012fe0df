package sirt

// WorkerCache is the private scratch space of one worker. All buffers hold
// one nx*ny slice and are reused by every task the worker runs.
type WorkerCache struct {
	nx, ny int

	// rot receives the forward-rotated reconstruction, then the correction
	// field that gets rotated back.
	rot []float32

	// maskRef is the unrotated validity mask; every pixel is valid.
	maskRef []uint8

	// maskRot is maskRef rotated to the current angle.
	maskRot []uint8

	// tmp receives the back-rotated correction.
	tmp []float32
}

// NewWorkerCache allocates scratch buffers for an nx*ny grid.
func NewWorkerCache(nx, ny int) *WorkerCache {
	size := nx * ny
	c := &WorkerCache{
		nx:      nx,
		ny:      ny,
		rot:     make([]float32, size),
		maskRef: make([]uint8, size),
		maskRot: make([]uint8, size),
		tmp:     make([]float32, size),
	}
	for i := range c.maskRef {
		c.maskRef[i] = 1
	}
	return c
}

// Reset clears the transient buffers so nothing from a previous task can
// leak into the next one. Capacity and the reference mask are kept.
func (c *WorkerCache) Reset() {
	clear(c.rot)
	clear(c.maskRot)
	clear(c.tmp)
}

// Dims returns the grid size the cache was built for.
func (c *WorkerCache) Dims() (nx, ny int) {
	return c.nx, c.ny
}

// CacheTable holds one lazily created WorkerCache per worker id.
//
// Get(w) must only be called by worker w; distinct workers touch distinct
// slots, so no locking is required.
type CacheTable struct {
	nx, ny int
	slots  []*WorkerCache
}

// NewCacheTable creates an empty table for the given number of workers.
func NewCacheTable(workers, nx, ny int) *CacheTable {
	return &CacheTable{
		nx:    nx,
		ny:    ny,
		slots: make([]*WorkerCache, workers),
	}
}

// Get returns the cache of a worker, allocating it on first use.
func (t *CacheTable) Get(worker int) *WorkerCache {
	c := t.slots[worker]
	if c == nil {
		c = NewWorkerCache(t.nx, t.ny)
		t.slots[worker] = c
	}
	return c
}

// Allocated reports how many workers have created their cache so far.
func (t *CacheTable) Allocated() int {
	n := 0
	for _, c := range t.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// Release drops every cache.
func (t *CacheTable) Release() {
	clear(t.slots)
}

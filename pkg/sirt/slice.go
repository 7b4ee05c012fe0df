package sirt

import "fmt"

// iterateSlice runs one SIRT pass over slice s: one kernel task per angle,
// a join, and then a single commit of the averaged update into recon.
//
// A failing task aborts the pass before the commit, leaving the slice as it
// was.
func (e *Engine) iterateSlice(k *Kernel, s int, sinogram, recon []float32) error {
	size := e.geom.SliceSize()
	proj := e.geom.ProjectionSize()
	dt := e.geom.Angles

	view := &Slice{
		Recon:     recon[s*size : (s+1)*size],
		Measured:  sinogram[s*proj : (s+1)*proj],
		Simulated: e.simulated,
		Update:    e.acc,
	}
	clear(e.simulated)
	e.acc.Reset()

	err := e.exec.Execute(dt, func(worker, task int) error {
		p := task
		if e.order != nil {
			p = e.order[task]
		}
		k.Process(e.caches.Get(worker), worker, view, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: slice %d: %w", ErrTaskFailed, s, err)
	}

	if dt == 0 {
		return nil
	}
	// Standard SIRT: average the correction over the dt angles.
	axpy(1/float32(dt), e.acc.Fold(), view.Recon)
	return nil
}

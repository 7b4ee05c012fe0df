package sirt

import "errors"

// Sentinel errors for reconstruction runs. Precondition errors are returned
// before any buffer is touched.
var (
	ErrInvalidGeometry   = errors.New("sirt: invalid geometry")
	ErrBufferSize        = errors.New("sirt: buffer size mismatch")
	ErrInvalidAngle      = errors.New("sirt: invalid angle")
	ErrInvalidIterations = errors.New("sirt: invalid iteration count")
	ErrUnknownStrategy   = errors.New("sirt: unknown accumulation strategy")

	// ErrTaskFailed wraps the failure of any angle task. The slice that was
	// being processed is left uncommitted.
	ErrTaskFailed = errors.New("sirt: task failed")
)

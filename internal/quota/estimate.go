package quota

// Capacity estimation
const (
	// FallbackCapacity is used when free space cannot be read, and caps the estimate.
	FallbackCapacity = 10 * 1024 * 1024

	// DiskFraction of free space is claimed for the store.
	DiskFraction = 0.1
)

// Estimator estimates the storage capacity available to the store.
type Estimator struct {
	override  int64
	dir       string
	freeSpace func(dir string) (uint64, error)
}

// NewEstimator estimates from the free space of dir. override > 0 is used as-is.
func NewEstimator(dir string, override int64) *Estimator {
	return &Estimator{override: override, dir: dir, freeSpace: freeBytes}
}

// Capacity returns the override if set, else DiskFraction of the free space
// capped at FallbackCapacity, else FallbackCapacity.
func (e *Estimator) Capacity() int64 {
	if e.override > 0 {
		return e.override
	}
	if e.dir == "" || e.freeSpace == nil {
		return FallbackCapacity
	}
	free, err := e.freeSpace(e.dir)
	if err != nil || free == 0 {
		return FallbackCapacity
	}
	est := int64(float64(free) * DiskFraction)
	if est <= 0 || est > FallbackCapacity {
		return FallbackCapacity
	}
	return est
}

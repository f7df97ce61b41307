package refresh

// Sizing selects the concurrency ceiling and batch-notify size for a cycle
// as a function of roster size. Both scale up in discrete steps: a handful
// of rooms should refresh with minimal contention-induced delay, while
// hundreds of rooms must not open hundreds of simultaneous connections.
type Sizing struct {
	// SmallRoster and MediumRoster are the roster-size thresholds between
	// the concurrency tiers.
	SmallRoster  int
	MediumRoster int

	// SmallCeiling, MediumCeiling and LargeCeiling are the concurrency
	// ceilings for the three tiers.
	SmallCeiling  int
	MediumCeiling int
	LargeCeiling  int

	// BatchThreshold is the roster-size threshold between the two
	// batch-notify tiers.
	BatchThreshold int

	// SmallBatch and LargeBatch are the batch-notify sizes for the two
	// tiers.
	SmallBatch int
	LargeBatch int
}

// DefaultSizing returns the default tier thresholds and sizes.
func DefaultSizing() Sizing {
	return Sizing{
		SmallRoster:    10,
		MediumRoster:   50,
		SmallCeiling:   4,
		MediumCeiling:  8,
		LargeCeiling:   16,
		BatchThreshold: 30,
		SmallBatch:     2,
		LargeBatch:     8,
	}
}

// CeilingFor returns the concurrency ceiling for a roster of size n.
func (s Sizing) CeilingFor(n int) int {
	switch {
	case n <= s.SmallRoster:
		return s.SmallCeiling
	case n <= s.MediumRoster:
		return s.MediumCeiling
	default:
		return s.LargeCeiling
	}
}

// BatchFor returns the batch-notify size for a roster of size n.
func (s Sizing) BatchFor(n int) int {
	if n <= s.BatchThreshold {
		return s.SmallBatch
	}
	return s.LargeBatch
}

package entity

import "time"

// Later returns the later of two timestamps
func Later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

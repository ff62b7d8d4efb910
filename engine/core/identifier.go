package core

import "sync/atomic"

// Identifier hands out process-unique, strictly increasing ids starting at 1.
// Zero is never returned so it can be used as the invalid id.
type Identifier struct {
	last atomic.Uint64
}

func NewIdentifier() *Identifier {
	return &Identifier{}
}

func (i *Identifier) AquireNewID() uint64 {
	return i.last.Add(1)
}

// Last returns the most recently issued id, or 0 if none was issued yet.
func (i *Identifier) Last() uint64 {
	return i.last.Load()
}

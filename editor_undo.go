package gekko

import "slices"

// UndoChain is a linear edit history. Entries before position are applied;
// entries at and after position are the redo tail.
type UndoChain struct {
	diffs    []*TransactionDiffs
	position int
	// limit caps the number of entries kept; 0 means unbounded.
	limit int
}

func NewUndoChain(limit int) *UndoChain {
	return &UndoChain{limit: limit}
}

func (c *UndoChain) Len() int      { return len(c.diffs) }
func (c *UndoChain) Position() int { return c.position }

// Push discards the redo tail and appends diffs.
func (c *UndoChain) Push(diffs *TransactionDiffs) {
	clear(c.diffs[c.position:])
	c.diffs = append(c.diffs[:c.position], diffs)
	c.position += 1

	if c.limit > 0 && len(c.diffs) > c.limit {
		drop := len(c.diffs) - c.limit
		clear(c.diffs[:drop])
		c.diffs = c.diffs[drop:]
		c.position -= drop
	}
}

// StepBack moves the cursor back and returns the entry to revert, or nil at
// the start of the chain.
func (c *UndoChain) StepBack() *TransactionDiffs {
	if c.position == 0 {
		return nil
	}
	c.position -= 1
	return c.diffs[c.position]
}

// StepForward returns the entry to re-apply and advances the cursor, or nil
// at the end of the chain.
func (c *UndoChain) StepForward() *TransactionDiffs {
	if c.position >= len(c.diffs) {
		return nil
	}
	d := c.diffs[c.position]
	c.position += 1
	return d
}

func (c *UndoChain) clone() *UndoChain {
	return &UndoChain{diffs: slices.Clone(c.diffs), position: c.position, limit: c.limit}
}

func (c *UndoChain) Clear() {
	clear(c.diffs)
	c.diffs = c.diffs[:0]
	c.position = 0
}

package pipeline

// Sequencer reorders completions so they leave in sequence order. A nil
// result marks a skipped sequence: it advances the cursor and emits nothing.
//
// Sequencer is not safe for concurrent use; the pipeline serializes access.
type Sequencer struct {
	pending map[uint64]*Result
	next    uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{pending: make(map[uint64]*Result)}
}

// Complete records the outcome for seq and returns every result that is now
// contiguous with the cursor. Sequences already emitted or already pending
// are ignored.
func (s *Sequencer) Complete(seq uint64, r *Result) []Result {
	if seq < s.next {
		return nil
	}
	if _, dup := s.pending[seq]; dup {
		return nil
	}
	s.pending[seq] = r

	var out []Result
	for {
		entry, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		s.next++
		if entry != nil {
			out = append(out, *entry)
		}
	}
	return out
}

func (s *Sequencer) Next() uint64 {
	return s.next
}

func (s *Sequencer) Pending() int {
	return len(s.pending)
}

func (s *Sequencer) Reset() {
	s.pending = make(map[uint64]*Result)
	s.next = 0
}

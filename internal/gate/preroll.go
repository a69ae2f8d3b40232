package gate

// PreRoll is a bounded FIFO of the most recent raw frames captured while the
// gate is Closed. When the gate opens its contents are replayed into the
// recognizer ahead of the live frames, so word onsets that occurred during
// the attack window are never clipped.
type PreRoll struct {
	frames   [][]byte
	capacity int
}

// NewPreRoll creates a buffer holding at most capacity frames. A capacity
// below 1 yields a buffer that keeps exactly one frame.
func NewPreRoll(capacity int) *PreRoll {
	if capacity < 1 {
		capacity = 1
	}
	return &PreRoll{
		frames:   make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, dropping the oldest one when the buffer is full. The
// frame is not copied; the caller must not reuse its backing array.
func (p *PreRoll) Push(frame []byte) {
	if len(p.frames) == p.capacity {
		copy(p.frames, p.frames[1:])
		p.frames = p.frames[:p.capacity-1]
	}
	p.frames = append(p.frames, frame)
}

// Drain returns the buffered frames in arrival order and empties the buffer.
func (p *PreRoll) Drain() [][]byte {
	out := p.frames
	p.frames = make([][]byte, 0, p.capacity)
	return out
}

// Len returns the number of buffered frames.
func (p *PreRoll) Len() int {
	return len(p.frames)
}

// Capacity returns the maximum number of buffered frames.
func (p *PreRoll) Capacity() int {
	return p.capacity
}

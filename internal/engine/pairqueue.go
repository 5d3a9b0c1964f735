package engine

import (
	"context"
	"sync"

	"github.com/polymirror/engine/internal/model"
)

// pairKey identifies one (leader, follower) replication lane. All
// instructions for a lane execute in arrival order; different lanes run
// concurrently on the worker pool.
type pairKey struct {
	leaderID   string
	followerID string
}

// dispatcher hands (leader, follower) lanes to workers. A lane is
// dispatched at most once at a time: the worker that claims it drains
// it fully, so per-lane FIFO order holds regardless of pool size.
type dispatcher struct {
	mu      sync.Mutex
	queues  map[pairKey][]model.ChildOrderInstruction
	active  map[pairKey]bool
	workCh  chan pairKey
	pending int
}

func newDispatcher(depth int) *dispatcher {
	if depth < 1 {
		depth = 1
	}
	return &dispatcher{
		queues: make(map[pairKey][]model.ChildOrderInstruction),
		active: make(map[pairKey]bool),
		workCh: make(chan pairKey, depth),
	}
}

// enqueue appends an instruction to its lane and dispatches the lane if
// no worker currently owns it. Blocks only when the dispatch channel is
// full, which backpressures the admission loop.
func (d *dispatcher) enqueue(ctx context.Context, instr model.ChildOrderInstruction) error {
	key := pairKey{leaderID: instr.LeaderID, followerID: instr.FollowerID}

	d.mu.Lock()
	d.queues[key] = append(d.queues[key], instr)
	d.pending++
	dispatch := !d.active[key]
	if dispatch {
		d.active[key] = true
	}
	d.mu.Unlock()

	if !dispatch {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.workCh <- key:
		return nil
	}
}

// next pops the lane's head instruction. When the lane is empty it is
// released for future dispatch and false is returned.
func (d *dispatcher) next(key pairKey) (model.ChildOrderInstruction, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[key]
	if len(q) == 0 {
		delete(d.queues, key)
		delete(d.active, key)
		var zero model.ChildOrderInstruction
		return zero, false
	}

	instr := q[0]
	d.queues[key] = q[1:]
	d.pending--
	return instr, true
}

// depth returns the number of undispatched instructions.
func (d *dispatcher) depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

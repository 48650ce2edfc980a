//go:build asyncflow_debug

package asyncflow

// DebugNodeCount reports the number of live epoch nodes currently linked
// from this queue's head. Grounded on
// original_source/src/async/epoch_queue.hpp's UNI20_DEBUG_DAG/NodeInfo
// block; only built with the asyncflow_debug tag, for tests asserting on
// queue shrink/grow behavior (Testable Property 5, quiescence).
func (q *epochQueue[T]) DebugNodeCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.chainLenLocked()
}

// DebugNodeCount exposes a's underlying epoch queue's live node count. Only
// built with the asyncflow_debug tag.
func (a Async[T]) DebugNodeCount() int {
	return a.queue.DebugNodeCount()
}

package jsonrpc2

import (
	"sort"
	"sync"
	"time"
)

type pendingMsg struct {
	call      *Call
	timestamp time.Time
}

type pendingItem struct {
	key       string
	timestamp time.Time
}

type pendingQueue []pendingItem

func (p pendingQueue) Len() int {
	return len(p)
}

func (p pendingQueue) Less(i, j int) bool {
	return p[i].timestamp.Before(p[j].timestamp)
}

func (p pendingQueue) Swap(i, j int) {
	p[i], p[j] = p[j], p[i]
}

func pendingOldest(pending map[string]pendingMsg, num int) pendingQueue {
	if num > len(pending) {
		num = len(pending)
	}
	queue := make(pendingQueue, 0, len(pending))
	for key, p := range pending {
		queue = append(queue, pendingItem{
			key, p.timestamp,
		})
	}
	sort.Sort(queue)
	return queue[:num]
}

// pendingTable maps outstanding call IDs to their calls. Every entry leaves
// the table exactly once, through take.
type pendingTable struct {
	// limit and discard bound the table, see Remote.PendingLimit.
	limit   int
	discard int

	mu      sync.Mutex
	pending map[string]pendingMsg
	now     func() time.Time
}

func (t *pendingTable) timeNow() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// register adds a call. When the table is full, the oldest entries are
// removed and returned so the caller can reject them outside of the lock.
func (t *pendingTable) register(call *Call) (evicted []*Call, err error) {
	key := string(call.ID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		t.pending = map[string]pendingMsg{}
	}
	if _, ok := t.pending[key]; ok {
		return nil, ErrDuplicateCallID
	}
	if t.limit > 0 && len(t.pending) >= t.limit && t.discard > 0 {
		for _, item := range pendingOldest(t.pending, t.discard) {
			evicted = append(evicted, t.pending[item.key].call)
			delete(t.pending, item.key)
		}
	}
	t.pending[key] = pendingMsg{
		call:      call,
		timestamp: t.timeNow(),
	}
	return evicted, nil
}

// take removes and returns the call for key, if any.
func (t *pendingTable) take(key string) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[key]
	if !ok {
		return nil, false
	}
	delete(t.pending, key)
	return p.call, true
}

// takeOlder removes and returns all calls registered before deadline.
func (t *pendingTable) takeOlder(deadline time.Time) []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	var calls []*Call
	for key, p := range t.pending {
		if p.timestamp.Before(deadline) {
			calls = append(calls, p.call)
			delete(t.pending, key)
		}
	}
	return calls
}

// takeAll empties the table.
func (t *pendingTable) takeAll() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := make([]*Call, 0, len(t.pending))
	for _, p := range t.pending {
		calls = append(calls, p.call)
	}
	t.pending = nil
	return calls
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// resolveCall completes the call for key with a reply. Unknown keys are
// orphaned responses and are ignored.
func (t *pendingTable) resolveCall(key string, reply *Reply) bool {
	call, ok := t.take(key)
	if !ok {
		return false
	}
	call.resolve(reply)
	return true
}

// rejectCall completes the call for key with an error. Unknown keys are
// ignored.
func (t *pendingTable) rejectCall(key string, err error) bool {
	call, ok := t.take(key)
	if !ok {
		return false
	}
	call.reject(err)
	return true
}

// takeCall removes call if it is still the pending entry for its ID.
func (t *pendingTable) takeCall(call *Call) bool {
	key := string(call.ID)
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[key]
	if !ok || p.call != call {
		return false
	}
	delete(t.pending, key)
	return true
}

package playback

import (
	"sync"
	"sync/atomic"

	"overlaycast/internal/protocol"
)

// DefaultCommandBuffer is the queue capacity used when none is configured.
const DefaultCommandBuffer = 64

// CommandQueue carries commands to one embedded player. Push never blocks:
// when the buffer is full the oldest queued command is discarded. Commands
// are never retried.
type CommandQueue struct {
	mu      sync.Mutex
	ch      chan protocol.PlayerCommand
	dropped atomic.Uint64
	onDrop  func(protocol.PlayerCommand)
}

// NewCommandQueue builds a queue holding up to capacity commands. onDrop, when
// set, is called for every discarded command.
func NewCommandQueue(capacity int, onDrop func(protocol.PlayerCommand)) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultCommandBuffer
	}
	return &CommandQueue{ch: make(chan protocol.PlayerCommand, capacity), onDrop: onDrop}
}

// Push enqueues cmd, evicting the oldest command when full.
func (q *CommandQueue) Push(cmd protocol.PlayerCommand) {
	q.mu.Lock()
	var evicted []protocol.PlayerCommand
	for {
		select {
		case q.ch <- cmd:
			q.mu.Unlock()
			for _, old := range evicted {
				q.dropped.Add(1)
				if q.onDrop != nil {
					q.onDrop(old)
				}
			}
			return
		default:
		}
		select {
		case old := <-q.ch:
			evicted = append(evicted, old)
		default:
		}
	}
}

// C delivers queued commands in push order.
func (q *CommandQueue) C() <-chan protocol.PlayerCommand { return q.ch }

// Drain removes and returns every queued command.
func (q *CommandQueue) Drain() []protocol.PlayerCommand {
	var out []protocol.PlayerCommand
	for {
		select {
		case cmd := <-q.ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// Len reports how many commands are waiting.
func (q *CommandQueue) Len() int { return len(q.ch) }

// Dropped reports how many commands were discarded.
func (q *CommandQueue) Dropped() uint64 { return q.dropped.Load() }

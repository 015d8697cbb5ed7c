// Package clock runs the per-room sync broadcasters.
//
// Each active room has at most one broadcaster goroutine publishing
// time_sync messages on a fixed interval. The registry is the single
// owner of that invariant: EnsureRunning is an atomic insert-if-absent,
// and a broadcaster removes itself from the registry when it exits, so
// a later join starts a fresh one.
package clock

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/waveroom/waveroom/internal/domain/room"
	"github.com/waveroom/waveroom/internal/protocol"
)

// DefaultInterval is the broadcast period used when none is configured.
const DefaultInterval = 5 * time.Second

// StateSource provides the room snapshots the broadcasts are built from.
type StateSource interface {
	Get(roomID string) room.State
	Exists(roomID string) bool
}

// Publisher fans a message out to every connection in a room.
type Publisher interface {
	Broadcast(roomID string, v any) error
}

type task struct {
	stop chan struct{}
	once sync.Once
}

func (t *task) cancel() {
	t.once.Do(func() { close(t.stop) })
}

// Runner owns the broadcaster goroutines.
type Runner struct {
	states   StateSource
	sink     Publisher
	interval time.Duration

	mu    sync.Mutex
	tasks map[string]*task

	// now is replaceable in tests.
	now func() float64
}

// New creates a Runner broadcasting at the given interval.
func New(states StateSource, sink Publisher, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		states:   states,
		sink:     sink,
		interval: interval,
		tasks:    make(map[string]*task),
		now:      func() float64 { return float64(time.Now().UnixNano()) / float64(time.Second) },
	}
}

// EnsureRunning starts a broadcaster for the room unless one is already
// registered. Returns true when a new broadcaster was started.
func (r *Runner) EnsureRunning(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[roomID]; ok {
		return false
	}

	t := &task{stop: make(chan struct{})}
	r.tasks[roomID] = t
	go r.loop(roomID, t)

	zlog.Debug().Msgf("started sync broadcaster: room=%s interval=%v", roomID, r.interval)
	return true
}

// Stop halts the broadcaster of one room, if any.
func (r *Runner) Stop(roomID string) {
	r.mu.Lock()
	t, ok := r.tasks[roomID]
	r.mu.Unlock()
	if ok {
		t.cancel()
	}
}

// StopAll halts every broadcaster. Used on server shutdown.
func (r *Runner) StopAll() {
	r.mu.Lock()
	tasks := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
}

// Running reports the number of live broadcasters.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *Runner) loop(roomID string, t *task) {
	defer r.remove(roomID, t)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !r.states.Exists(roomID) {
				zlog.Debug().Msgf("room gone, stopping sync broadcaster: room=%s", roomID)
				return
			}

			msg := protocol.NewTimeSync(r.now(), r.states.Get(roomID))
			if err := r.sink.Broadcast(roomID, msg); err != nil {
				zlog.Warn().Msgf("failed to broadcast time sync: room=%s error=%v", roomID, err)
			}
		}
	}
}

// remove unregisters the task, but only if it is still the one this
// loop was started with. A replacement registered after Stop must not
// be evicted by the old loop's exit.
func (r *Runner) remove(roomID string, t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tasks[roomID]; ok && cur == t {
		delete(r.tasks, roomID)
	}
}

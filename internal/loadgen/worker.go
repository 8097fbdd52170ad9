package loadgen

import (
	"sync/atomic"
	"time"

	"github.com/Lythaeon/strest/internal/scenario"
)

// Worker is one member of the engine's bounded pool. Each worker owns a
// transport connection and a monotonic per-worker sequence counter backing
// the scenario `seq` built-in.
type Worker struct {
	ID       int
	Seq      scenario.WorkerSeq
	RNGSeed  int64
	state    atomic.Int32
	stopAt   time.Time
}

// NewWorker builds worker number id, seeded for reproducible think-time/
// jitter sampling.
func NewWorker(id int, seed int64) *Worker {
	w := &Worker{ID: id, RNGSeed: seed}
	w.state.Store(int32(StateInitializing))
	return w
}

func (w *Worker) State() RunState   { return RunState(w.state.Load()) }
func (w *Worker) SetState(s RunState) { w.state.Store(int32(s)) }

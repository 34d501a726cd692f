package orchestrator

import "time"

// State is a step of the orchestration state machine.
type State string

const (
	StateIdle                        State = "Idle"
	StateDetectingTriggers           State = "DetectingTriggers"
	StateRunningDocumentation        State = "RunningDocumentation"
	StateRunningMedicationSafety     State = "RunningMedicationSafety"
	StateRunningPatientCommunication State = "RunningPatientCommunication"
	StateRunningComplianceAudit      State = "RunningComplianceAudit"
	StateDone                        State = "Done"
)

// Progress is a status update for a UI "thinking" indicator.
type Progress struct {
	State   State
	Message string
	Time    time.Time
}

// Observer receives progress updates. Updates are delivered in order from a
// separate goroutine and are dropped if the observer falls behind.
type Observer interface {
	OnProgress(Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

const progressBuffer = 16

// progressQueue decouples the observer from the state machine.
type progressQueue struct {
	ch   chan Progress
	done chan struct{}
}

func startProgress(observer Observer) *progressQueue {
	q := &progressQueue{
		ch:   make(chan Progress, progressBuffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for p := range q.ch {
			observer.OnProgress(p)
		}
	}()
	return q
}

func (q *progressQueue) send(p Progress) {
	if q == nil {
		return
	}
	select {
	case q.ch <- p:
	default:
	}
}

// close stops accepting updates. Pending updates are still delivered.
func (q *progressQueue) close() {
	if q != nil {
		close(q.ch)
	}
}

// wait blocks until every accepted update has been delivered.
func (q *progressQueue) wait() {
	if q != nil {
		<-q.done
	}
}

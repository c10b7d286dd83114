package ingest

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/rfp-ingest/internal/model"
)

// fileTransitions lists every allowed per-file state change.
var fileTransitions = map[model.FileState][]model.FileState{
	model.FileStateUploading:        {model.FileStateParsing, model.FileStateFailed},
	model.FileStateParsing:          {model.FileStateAsyncSubmitted, model.FileStateAsyncSubmitError, model.FileStateFailed},
	model.FileStateAsyncSubmitted:   {model.FileStatePolling, model.FileStateFailed},
	model.FileStatePolling:          {model.FileStateBuildingSections, model.FileStateTimeout, model.FileStateJobFailure, model.FileStateFailed},
	model.FileStateTimeout:          {model.FileStateFallbackRunning},
	model.FileStateAsyncSubmitError: {model.FileStateFallbackRunning},
	model.FileStateFallbackRunning:  {model.FileStateBuildingSections, model.FileStateFailed},
	model.FileStateJobFailure:       {model.FileStateFailed},
	model.FileStateBuildingSections: {model.FileStatePopulatingQA, model.FileStateFailed},
	model.FileStatePopulatingQA:     {model.FileStateDone},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to model.FileState) bool {
	return slices.Contains(fileTransitions[from], to)
}

// InvalidTransitionError describes a rejected state change.
type InvalidTransitionError struct {
	From model.FileState
	To   model.FileState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid file state transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// fileMachine drives one FileTask through its states.
type fileMachine struct {
	task *model.FileTask
	now  func() time.Time
}

func newFileMachine(task *model.FileTask, now func() time.Time) *fileMachine {
	task.State = model.FileStateUploading
	task.StartedAt = now()
	return &fileMachine{task: task, now: now}
}

func (m *fileMachine) state() model.FileState { return m.task.State }

// to moves the task to the next state.
func (m *fileMachine) to(next model.FileState) error {
	if !CanTransition(m.task.State, next) {
		return &InvalidTransitionError{From: m.task.State, To: next}
	}
	m.task.State = next
	if next.Terminal() {
		m.task.FinishedAt = m.now()
	}
	return nil
}

// succeed marks the task Done with a Success outcome.
func (m *fileMachine) succeed() error {
	if err := m.to(model.FileStateDone); err != nil {
		return err
	}
	m.task.Outcome = model.OutcomeSuccess
	return nil
}

// fail records cause and moves the task to Failed. A task already in a
// terminal state is left alone so it keeps its single outcome. States without
// a Failed edge are forced, which only happens for panics and invalid
// transitions caught at the file boundary.
func (m *fileMachine) fail(cause error) {
	if m.task.State.Terminal() {
		return
	}
	if cause != nil {
		m.task.Error = cause.Error()
	}
	if err := m.to(model.FileStateFailed); err != nil {
		zap.L().Warn("forcing file to failed state",
			zap.String("file", m.task.File.Name),
			zap.String("from", string(m.task.State)),
		)
		m.task.State = model.FileStateFailed
		m.task.FinishedAt = m.now()
	}
	m.task.Outcome = model.OutcomeFailure
}

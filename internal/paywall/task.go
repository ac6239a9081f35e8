package paywall

import "context"

// startTask cancels the current task, bumps the generation and returns the
// context for the new one.
func (m *Machine) startTask(parent context.Context) (context.Context, uint64) {
	m.stopTask()
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.taskCtx = ctx
	return ctx, m.gen
}

func (m *Machine) stopTask() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.gen++
	m.inFlight = false
}

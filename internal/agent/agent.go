// Package agent coordinates submitted turns: it composes the system prompt,
// opens the stream and folds the reply into the session, one exchange per
// session at a time.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/qmuntal/stateless"

	"github.com/comigor/cryptosec-go/internal/chat"
	"github.com/comigor/cryptosec-go/internal/llm"
	"github.com/comigor/cryptosec-go/internal/logger"
	"github.com/comigor/cryptosec-go/internal/mode"
	"github.com/comigor/cryptosec-go/internal/session"
)

// Exchange is the handle of one submitted turn.
type Exchange struct {
	ID        string
	SessionID string
	Mode      mode.Mode
	Reply     *chat.Message

	done    chan struct{}
	outcome chat.Outcome
}

// Done is closed once the reply is frozen and the session is back to Idle (or
// has moved on to a newer exchange).
func (e *Exchange) Done() <-chan struct{} { return e.done }

// Outcome is only meaningful after Done is closed.
func (e *Exchange) Outcome() chat.Outcome { return e.outcome }

// Wait blocks until the exchange ends or ctx is done.
func (e *Exchange) Wait(ctx context.Context) (chat.Outcome, error) {
	select {
	case <-e.done:
		return e.outcome, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Agent is the request coordinator.
type Agent struct {
	store    *session.Store
	streamer llm.Streamer

	mu       sync.Mutex // serializes store exchange updates with FSM firing
	machines map[string]*stateless.StateMachine
}

// New creates a new agent.
func New(store *session.Store, streamer llm.Streamer) *Agent {
	return &Agent{
		store:    store,
		streamer: streamer,
		machines: make(map[string]*stateless.StateMachine),
	}
}

// Store exposes the session store the agent writes to.
func (a *Agent) Store() *session.Store { return a.store }

// Submit sends text to the active session.
func (a *Agent) Submit(ctx context.Context, m mode.Mode, text string) (*Exchange, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %q", mode.ErrInvalidMode, string(m))
	}
	id, ok := a.store.Active()
	if !ok {
		return nil, fmt.Errorf("no active session: %w", session.ErrNotFound)
	}
	return a.SubmitTo(ctx, id, m, text)
}

// SubmitTo appends the user turn to sessionID, aborts the session's previous
// exchange if it is still streaming, and starts a new one. Invalid modes and
// unknown sessions are rejected before anything is mutated. The exchange
// outlives ctx; only a newer submission or deleting the session cancels it.
func (a *Agent) SubmitTo(ctx context.Context, sessionID string, m mode.Mode, text string) (*Exchange, error) {
	prompt, err := mode.ComposePrompt(m)
	if err != nil {
		return nil, err
	}

	exCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	user := chat.NewUserMessage(text)
	reply := chat.NewAssistantPlaceholder()

	a.mu.Lock()
	exID, history, err := a.store.BeginExchange(sessionID, user, reply, cancel)
	if err != nil {
		a.mu.Unlock()
		cancel()
		return nil, err
	}
	a.fire(sessionID, TriggerSubmit)
	a.mu.Unlock()

	ex := &Exchange{
		ID:        exID,
		SessionID: sessionID,
		Mode:      m,
		Reply:     reply,
		done:      make(chan struct{}),
	}
	logger.L.Info("exchange started", "session", sessionID, "exchange", exID, "mode", m, "history", len(history))

	go a.run(exCtx, cancel, ex, history, prompt)
	return ex, nil
}

func (a *Agent) run(ctx context.Context, cancel context.CancelFunc, ex *Exchange, history []chat.Turn, prompt string) {
	defer cancel()
	outcome := chat.Fold(ex.Reply, a.streamer.Stream(ctx, history, prompt))
	a.finish(ex, outcome)
}

func (a *Agent) finish(ex *Exchange, outcome chat.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer close(ex.done)
	ex.outcome = outcome

	log := logger.Session(ex.SessionID).With("exchange", ex.ID)
	current, err := a.store.FinishExchange(ex.SessionID, ex.ID)
	if err != nil {
		// Session deleted mid-stream.
		delete(a.machines, ex.SessionID)
		log.Info("exchange dropped", "reason", err)
		return
	}
	if !current {
		log.Info("exchange superseded", "content_len", len(ex.Reply.Content()))
		return
	}

	switch outcome {
	case chat.OutcomeCompleted:
		log.Info("exchange completed")
		a.fire(ex.SessionID, TriggerCompleted)
	case chat.OutcomeFailed:
		log.Warn("exchange failed", "reason", chat.Reason(ex.Reply.Err()), "error", ex.Reply.Err())
		a.fire(ex.SessionID, TriggerFailed)
	default:
		log.Info("exchange cancelled")
		a.fire(ex.SessionID, TriggerCancelled)
	}
}

// Delete removes a session, cancelling its in-flight exchange.
func (a *Agent) Delete(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.Delete(sessionID); err != nil {
		return err
	}
	delete(a.machines, sessionID)
	return nil
}

// State returns the exchange state of a session.
func (a *Agent) State(sessionID string) (FSMState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.store.Streaming(sessionID); err != nil {
		return StateIdle, err
	}
	fsm, ok := a.machines[sessionID]
	if !ok {
		return StateIdle, nil
	}
	return fsm.MustState().(FSMState), nil
}

// fire must be called with a.mu held.
func (a *Agent) fire(sessionID string, trigger FSMTrigger) {
	fsm, ok := a.machines[sessionID]
	if !ok {
		fsm = newMachine(sessionID, StateIdle)
		a.machines[sessionID] = fsm
	}
	if err := fsm.Fire(trigger); err != nil {
		logger.L.Warn("FSM fire error", "session", sessionID, "trigger", trigger, "error", err)
	}
}

package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/cryptosec-go/internal/chat"
	"github.com/comigor/cryptosec-go/internal/mode"
	"github.com/comigor/cryptosec-go/internal/session"
)

// fakeCall is one exchange opened on fakeStreamer; the test plays the backend.
type fakeCall struct {
	ctx     context.Context
	history []chat.Turn
	prompt  string
	out     chan chat.Fragment
}

func (c *fakeCall) send(f chat.Fragment) bool {
	select {
	case c.out <- f:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *fakeCall) finish(f chat.Fragment) {
	c.send(f)
	close(c.out)
}

type fakeStreamer struct {
	opened chan *fakeCall
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{opened: make(chan *fakeCall, 8)}
}

func (f *fakeStreamer) Stream(ctx context.Context, history []chat.Turn, prompt string) <-chan chat.Fragment {
	c := &fakeCall{ctx: ctx, history: history, prompt: prompt, out: make(chan chat.Fragment)}
	f.opened <- c
	return c.out
}

func (f *fakeStreamer) next(t *testing.T) *fakeCall {
	t.Helper()
	select {
	case c := <-f.opened:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no exchange opened")
		return nil
	}
}

func wait(t *testing.T, ex *Exchange) chat.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := ex.Wait(ctx)
	require.NoError(t, err)
	return out
}

func newTestAgent() (*Agent, *fakeStreamer) {
	streamer := newFakeStreamer()
	return New(session.NewStore(), streamer), streamer
}

func TestSubmit_ReasoningExample(t *testing.T) {
	a, streamer := newTestAgent()
	sid := a.Store().Create("AES")

	ex, err := a.Submit(context.Background(), mode.Reasoning, "What is AES?")
	require.NoError(t, err)

	call := streamer.next(t)
	wantPrompt, _ := mode.ComposePrompt(mode.Reasoning)
	require.Equal(t, wantPrompt, call.prompt)
	require.Equal(t, []chat.Turn{{Role: chat.RoleUser, Content: "What is AES?"}}, call.history)

	state, err := a.State(sid)
	require.NoError(t, err)
	require.Equal(t, StateStreaming, state)

	for _, s := range []string{"AES ", "is ", "a ", "block cipher."} {
		require.True(t, call.send(chat.Text(s)))
	}
	call.finish(chat.Done())

	require.Equal(t, chat.OutcomeCompleted, wait(t, ex))
	require.Equal(t, "AES is a block cipher.", ex.Reply.Content())
	require.True(t, ex.Reply.Frozen())

	state, err = a.State(sid)
	require.NoError(t, err)
	require.Equal(t, StateIdle, state)

	v, err := a.Store().Get(sid)
	require.NoError(t, err)
	require.Len(t, v.Messages, 2)
	require.Equal(t, chat.RoleUser, v.Messages[0].Role)
	require.Equal(t, "AES is a block cipher.", v.Messages[1].Content)
	require.True(t, v.Messages[1].Complete)
	require.False(t, v.Streaming)
}

func TestSubmit_FailureKeepsPartialReply(t *testing.T) {
	a, streamer := newTestAgent()
	sid := a.Store().Create("")

	ex, err := a.Submit(context.Background(), mode.Normal, "Explain TLS")
	require.NoError(t, err)

	call := streamer.next(t)
	require.True(t, call.send(chat.Text("TLS is ")))
	call.finish(chat.Failed(fmt.Errorf("%w: connection reset", chat.ErrTransport)))

	require.Equal(t, chat.OutcomeFailed, wait(t, ex))
	require.Equal(t, "TLS is ", ex.Reply.Content())
	require.ErrorIs(t, ex.Reply.Err(), chat.ErrTransport)

	state, _ := a.State(sid)
	require.Equal(t, StateIdle, state)

	v, _ := a.Store().Get(sid)
	require.Len(t, v.Messages, 2)
	require.Equal(t, "Explain TLS", v.Messages[0].Content)
	require.Contains(t, v.Messages[1].Error, "connection reset")
}

func TestSubmit_WhileStreamingSupersedes(t *testing.T) {
	a, streamer := newTestAgent()
	sid := a.Store().Create("")

	first, err := a.Submit(context.Background(), mode.Normal, "What is AES?")
	require.NoError(t, err)
	call1 := streamer.next(t)
	require.True(t, call1.send(chat.Text("AES is")))

	second, err := a.Submit(context.Background(), mode.Search, "And DES?")
	require.NoError(t, err)
	call2 := streamer.next(t)

	<-call1.ctx.Done()
	call1.send(chat.Text(" ignored"))
	close(call1.out)
	require.Equal(t, chat.OutcomeCancelled, wait(t, first))
	require.Equal(t, "AES is", first.Reply.Content())
	require.True(t, first.Reply.Frozen())
	require.NoError(t, first.Reply.Err())

	state, _ := a.State(sid)
	require.Equal(t, StateStreaming, state)

	require.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Content: "What is AES?"},
		{Role: chat.RoleAssistant, Content: "AES is"},
		{Role: chat.RoleUser, Content: "And DES?"},
	}, call2.history)

	require.True(t, call2.send(chat.Text("DES is retired.")))
	call2.finish(chat.Done())
	require.Equal(t, chat.OutcomeCompleted, wait(t, second))

	state, _ = a.State(sid)
	require.Equal(t, StateIdle, state)

	select {
	case c := <-streamer.opened:
		t.Fatalf("unexpected extra exchange: %+v", c.history)
	default:
	}

	v, _ := a.Store().Get(sid)
	require.Len(t, v.Messages, 4)
}

func TestSubmit_InvalidModeRejectedBeforeMutation(t *testing.T) {
	a, streamer := newTestAgent()
	sid := a.Store().Create("")

	_, err := a.Submit(context.Background(), mode.Mode("documents"), "hi")
	require.ErrorIs(t, err, mode.ErrInvalidMode)

	_, err = a.SubmitTo(context.Background(), sid, mode.Mode("loud"), "hi")
	require.ErrorIs(t, err, mode.ErrInvalidMode)

	v, _ := a.Store().Get(sid)
	require.Empty(t, v.Messages)
	require.Empty(t, streamer.opened)
}

func TestSubmit_NoActiveSession(t *testing.T) {
	a, streamer := newTestAgent()

	_, err := a.Submit(context.Background(), mode.Normal, "hi")
	require.ErrorIs(t, err, session.ErrNotFound)

	_, err = a.SubmitTo(context.Background(), "missing", mode.Normal, "hi")
	require.ErrorIs(t, err, session.ErrNotFound)
	require.Empty(t, streamer.opened)
}

func TestDelete_CancelsInFlightExchange(t *testing.T) {
	a, streamer := newTestAgent()
	keep := a.Store().Create("keep")
	sid := a.Store().Create("doomed")

	ex, err := a.Submit(context.Background(), mode.Normal, "hi")
	require.NoError(t, err)
	call := streamer.next(t)
	require.True(t, call.send(chat.Text("partial")))

	require.NoError(t, a.Delete(sid))
	<-call.ctx.Done()
	close(call.out)

	require.Equal(t, chat.OutcomeCancelled, wait(t, ex))
	require.Equal(t, "partial", ex.Reply.Content())

	_, err = a.State(sid)
	require.ErrorIs(t, err, session.ErrNotFound)
	active, _ := a.Store().Active()
	require.Equal(t, keep, active)

	require.ErrorIs(t, a.Delete(sid), session.ErrNotFound)
}

func TestSubmit_CallerContextDoesNotCancelExchange(t *testing.T) {
	a, streamer := newTestAgent()
	a.Store().Create("")

	ctx, cancel := context.WithCancel(context.Background())
	ex, err := a.Submit(ctx, mode.Normal, "hi")
	require.NoError(t, err)
	cancel()

	call := streamer.next(t)
	require.NoError(t, call.ctx.Err())
	require.True(t, call.send(chat.Text("still here")))
	call.finish(chat.Done())
	require.Equal(t, chat.OutcomeCompleted, wait(t, ex))
}

func TestSessionsAreIndependent(t *testing.T) {
	a, streamer := newTestAgent()
	s1 := a.Store().Create("one")
	s2 := a.Store().Create("two")

	ex1, err := a.SubmitTo(context.Background(), s1, mode.Normal, "first")
	require.NoError(t, err)
	call1 := streamer.next(t)
	ex2, err := a.SubmitTo(context.Background(), s2, mode.Normal, "second")
	require.NoError(t, err)
	call2 := streamer.next(t)

	require.NoError(t, call1.ctx.Err())
	call2.finish(chat.Done())
	require.Equal(t, chat.OutcomeCompleted, wait(t, ex2))

	state, _ := a.State(s1)
	require.Equal(t, StateStreaming, state)
	call1.finish(chat.Done())
	require.Equal(t, chat.OutcomeCompleted, wait(t, ex1))
}

func TestTransition(t *testing.T) {
	cases := []struct {
		from    FSMState
		trigger FSMTrigger
		want    FSMState
	}{
		{StateIdle, TriggerSubmit, StateStreaming},
		{StateStreaming, TriggerSubmit, StateStreaming},
		{StateStreaming, TriggerCompleted, StateIdle},
		{StateStreaming, TriggerFailed, StateIdle},
		{StateStreaming, TriggerCancelled, StateIdle},
		{StateIdle, TriggerCompleted, StateIdle},
	}
	for _, c := range cases {
		got, err := Transition(c.from, c.trigger)
		require.NoError(t, err)
		require.Equal(t, c.want, got, "%v --%v-->", c.from, c.trigger)
	}

	_, err := Transition(StateIdle, FSMTrigger("Bogus"))
	require.Error(t, err)
}

// ABOUTME: State machine that drives one send turn through its entry actions
// ABOUTME: started -> user_recorded -> awaiting_reply -> completed, out-of-order steps are rejected

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qmuntal/stateless"

	"github.com/2389/chat-relay/internal/provider"
	"github.com/2389/chat-relay/internal/store"
)

type turnState string

const (
	turnStarted       turnState = "started"
	turnUserRecorded  turnState = "user_recorded"
	turnAwaitingReply turnState = "awaiting_reply"
	turnCompleted     turnState = "completed"
)

type turnTrigger string

const (
	triggerRecordUser   turnTrigger = "record_user"
	triggerRequestReply turnTrigger = "request_reply"
	triggerRecordReply  turnTrigger = "record_reply"
)

// turn is one SendMessage call. Each state's entry action does that step's
// work: entering user_recorded appends the user message, entering
// awaiting_reply calls the provider, entering completed appends the reply.
type turn struct {
	svc     *Service
	client  provider.Client
	content string
	fsm     *stateless.StateMachine
	logger  *slog.Logger

	userMsg  store.Message
	gen      uint64 // log generation the user message landed in
	reply    string
	replyMsg store.Message
	stored   bool // false when a clear raced the provider call
}

func (s *Service) newTurn(client provider.Client, content string) *turn {
	t := &turn{
		svc:     s,
		client:  client,
		content: content,
		logger:  s.logger.With("provider", client.Name()),
	}

	fsm := stateless.NewStateMachine(turnStarted)

	fsm.Configure(turnStarted).
		Permit(triggerRecordUser, turnUserRecorded)

	fsm.Configure(turnUserRecorded).
		OnEntry(t.recordUser).
		Permit(triggerRequestReply, turnAwaitingReply)

	fsm.Configure(turnAwaitingReply).
		OnEntry(t.requestReply).
		Permit(triggerRecordReply, turnCompleted)

	fsm.Configure(turnCompleted).
		OnEntry(t.recordReply)

	t.fsm = fsm
	return t
}

// run fires the turn's triggers in order and returns the assistant message
func (t *turn) run(ctx context.Context) (store.Message, error) {
	for _, trigger := range []turnTrigger{triggerRecordUser, triggerRequestReply, triggerRecordReply} {
		if err := t.advance(ctx, trigger); err != nil {
			return store.Message{}, err
		}
	}
	return t.replyMsg, nil
}

// advance fires trigger. An invalid transition is logged and returned.
func (t *turn) advance(ctx context.Context, trigger turnTrigger) error {
	if err := t.fsm.FireCtx(ctx, trigger); err != nil {
		t.logger.Error("turn state transition rejected",
			"state", t.state(),
			"trigger", trigger,
			"error", err)
		return fmt.Errorf("turn %s: %w", trigger, err)
	}
	return nil
}

func (t *turn) state() turnState {
	return t.fsm.MustState().(turnState)
}

func (t *turn) recordUser(_ context.Context, _ ...any) error {
	t.userMsg = newMessage(store.RoleUser, t.content)
	t.gen = t.svc.store.Append(t.userMsg)
	t.svc.hub.Publish(t.userMsg)
	t.svc.record(t.userMsg, t.client.Name())

	t.logger.Debug("user message recorded", "message_id", t.userMsg.ID)
	return nil
}

func (t *turn) requestReply(ctx context.Context, _ ...any) error {
	t.reply = t.client.Send(ctx, t.content)
	return nil
}

// recordReply appends the reply unless the log was cleared since the user
// message went in. A discarded reply is still published and returned.
func (t *turn) recordReply(_ context.Context, _ ...any) error {
	t.replyMsg = newMessage(store.RoleAssistant, t.reply)
	t.stored = t.svc.store.AppendIf(t.replyMsg, t.gen)
	t.svc.hub.Publish(t.replyMsg)

	if !t.stored {
		t.logger.Warn("conversation cleared during turn, reply not stored",
			"user_message_id", t.userMsg.ID,
			"assistant_message_id", t.replyMsg.ID)
		return nil
	}

	t.svc.record(t.replyMsg, t.client.Name())
	t.logger.Info("turn completed",
		"user_message_id", t.userMsg.ID,
		"assistant_message_id", t.replyMsg.ID)
	return nil
}

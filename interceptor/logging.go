// Package interceptor wraps a Conversation with cross-cutting
// concerns, the same onion-model idea as middleware/middleware.go's
// HandlerFunc chain, applied to the Conversation capability instead of
// an RPCMessage handler since the core has no single "business
// handler" to wrap — every conversation is its own request/reply state
// machine.
package interceptor

import (
	"sync"
	"time"

	"escore/conversation"
	"escore/frame"

	"go.uber.org/zap"
)

// LoggingConversation decorates a Conversation with start/duration
// logging, ported from middleware/logging_middleware.go's
// capture-start-then-log-duration shape.
type LoggingConversation struct {
	inner conversation.Conversation
	log   *zap.Logger

	startOnce sync.Once
	startedAt time.Time
}

// NewLoggingConversation wraps inner. A nil logger is replaced with a
// no-op logger.
func NewLoggingConversation(inner conversation.Conversation, log *zap.Logger) *LoggingConversation {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingConversation{inner: inner, log: log}
}

func (l *LoggingConversation) ID() frame.ConversationID { return l.inner.ID() }
func (l *LoggingConversation) IsOneWay() bool           { return l.inner.IsOneWay() }
func (l *LoggingConversation) IsComplete() bool         { return l.inner.IsComplete() }

func (l *LoggingConversation) Start() frame.Frame {
	l.startOnce.Do(func() { l.startedAt = time.Now() })
	f := l.inner.Start()
	l.log.Debug("conversation started", zap.String("conversation_id", f.ConversationID.String()))
	return f
}

func (l *LoggingConversation) RespondTo(f frame.Frame) conversation.ReplyAction {
	action := l.inner.RespondTo(f)
	if l.inner.IsComplete() {
		l.log.Info("conversation completed",
			zap.String("conversation_id", l.inner.ID().String()),
			zap.Duration("duration", time.Since(l.startedAt)),
			zap.Bool("failed", action.Kind == conversation.ActionCompleteError || action.Kind == conversation.ActionRaiseToIterator || action.Kind == conversation.ActionRaiseToSubscription),
		)
	}
	return action
}

var _ conversation.Conversation = (*LoggingConversation)(nil)

// Package notify carries user-visible outcomes out of the cart store. The UI
// layer plugs in its own implementation (toasts); the CLI logs them.
package notify

import "go.uber.org/zap"

type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Success(string) {}
func (Nop) Error(string)   {}

// ZapNotifier surfaces notifications through the application logger.
type ZapNotifier struct {
	logger *zap.Logger
}

func NewZapNotifier(logger *zap.Logger) *ZapNotifier {
	return &ZapNotifier{logger: logger}
}

func (n *ZapNotifier) Success(msg string) { n.logger.Info(msg) }
func (n *ZapNotifier) Error(msg string)   { n.logger.Warn(msg) }

package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// noopSender accepts every send. It mimics a pairing handshake: Start
// surfaces a one-time pairing code in the connecting event, then the session
// flips to ready. Useful for development and as the default driver.
type noopSender struct {
	sess *session
}

func newNoop() Sender {
	return &noopSender{sess: newSession()}
}

func (n *noopSender) Start(context.Context) error {
	code := strings.ToUpper(uuid.NewString()[:8])
	n.sess.set(StateConnecting, code, "")
	n.sess.set(StateReady, "", "")
	return nil
}

func (n *noopSender) Stop(context.Context) error {
	n.sess.set(StateDisconnected, "", "")
	return nil
}

func (n *noopSender) State() State                { return n.sess.current() }
func (n *noopSender) Events() <-chan SessionEvent { return n.sess.events }
func (n *noopSender) Pairing() string             { return n.sess.pairingCode() }

func (n *noopSender) Send(ctx context.Context, _, _ string) error {
	if n.sess.current() != StateReady {
		return ErrNotReady
	}
	return ctx.Err()
}

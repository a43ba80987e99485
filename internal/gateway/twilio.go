package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioSender delivers reminder text over WhatsApp via the Twilio Messages
// API. The REST session has no pairing step: it becomes ready as soon as the
// client is constructed, and drops to auth_failed when Twilio rejects the
// credentials.
type twilioSender struct {
	client *twilio.RestClient
	from   string

	sendTimeout time.Duration
	sess        *session
}

func newTwilio(cfg Config) (Sender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account_sid and auth_token are required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("twilio: from_number is required")
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &twilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		from:        cfg.FromNumber,
		sendTimeout: timeout,
		sess:        newSession(),
	}, nil
}

func (t *twilioSender) Start(context.Context) error {
	t.sess.set(StateReady, "", "")
	return nil
}

func (t *twilioSender) Stop(context.Context) error {
	t.sess.set(StateDisconnected, "", "")
	return nil
}

func (t *twilioSender) State() State                { return t.sess.current() }
func (t *twilioSender) Events() <-chan SessionEvent { return t.sess.events }
func (t *twilioSender) Pairing() string             { return t.sess.pairingCode() }

func (t *twilioSender) Send(ctx context.Context, phoneNumber, text string) error {
	if t.sess.current() != StateReady {
		return ErrNotReady
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + phoneNumber)
	params.SetFrom("whatsapp:" + t.from)
	params.SetBody(text)

	// The Twilio client has no per-call context; bound the call ourselves so
	// a hung request can't wedge a dispatch worker.
	type result struct {
		sid string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := t.client.Api.CreateMessage(params)
		if err != nil {
			ch <- result{err: err}
			return
		}
		sid := ""
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		ch <- result{sid: sid}
	}()

	timeout := t.sendTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case <-done:
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("twilio: send timed out after %s", timeout)
	case res := <-ch:
		if res.err != nil {
			var restErr *twclient.TwilioRestError
			if errors.As(res.err, &restErr) && restErr.Status == 401 {
				t.sess.set(StateAuthFailed, "", restErr.Message)
			}
			return fmt.Errorf("twilio: %w", res.err)
		}
		return nil
	}
}

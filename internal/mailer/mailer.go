// Package mailer enqueues verification emails for asynchronous delivery.
// Enqueue is fire-and-forget from the caller's point of view: the worker
// owns rendering and SMTP delivery.
package mailer

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/tenantauth/internal/queue"
	"github.com/nikhilbhutani/tenantauth/internal/verification"
)

type Mailer struct {
	queue *queue.Client
}

func New(q *queue.Client) *Mailer {
	return &Mailer{queue: q}
}

// SendVerificationEmail enqueues the email matching the verification
// purpose. The context is accepted for interface symmetry; asynq's enqueue
// is synchronous and fast.
func (m *Mailer) SendVerificationEmail(_ context.Context, purpose verification.Purpose, language, to, code string) error {
	payload := queue.EmailPayload{Language: language, To: to, Code: code}

	switch purpose {
	case verification.PurposeSignupEmail:
		return m.queue.EnqueueSignupVerificationEmail(payload)
	case verification.PurposeActivateAccount:
		return m.queue.EnqueueActivateAccountEmail(payload)
	case verification.PurposeResetPassword:
		return m.queue.EnqueueResetPasswordEmail(payload)
	default:
		return fmt.Errorf("unknown verification purpose %q", purpose)
	}
}

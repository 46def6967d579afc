package mailer

// Service is the outbound email port. Implementations must be safe for
// concurrent use; callers treat every send as fire-and-forget.
type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
}

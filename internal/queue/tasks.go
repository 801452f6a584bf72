package queue

const (
	TypeEmailSignupVerification = "email:signup_verification"
	TypeEmailActivateAccount    = "email:activate_account"
	TypeEmailResetPassword      = "email:reset_password"
)

// QueueMail is the asynq queue all verification emails go through.
const QueueMail = "mail"

type EmailPayload struct {
	Language string `json:"language"`
	To       string `json:"to"`
	Code     string `json:"code"`
}

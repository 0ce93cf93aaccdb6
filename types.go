package identity

import "fmt"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the minimal shape the token service needs to mint a credential.
type Identity interface {
	GetID() string
	GetRole() string
}

// Config holds identity options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetTokenExpiration() int
	GetCookieName() string
	GetCookieSecure() bool
	GetVerificationCodeTTL() string
	GetRecoveryTokenTTL() string
}

// Mailer delivers secrets out-of-band. Email delivery is an external
// collaborator; implementations must not block on slow transports.
type Mailer interface {
	SendVerificationCode(email, code string) error
	SendRecoveryToken(email, token string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// logMailer is the default Mailer: it prints the notification that a real
// transport would deliver. Useful in development and tests.
type logMailer struct {
	logger Logger
}

// NewLogMailer returns a Mailer that writes notifications to the logger.
func NewLogMailer(logger Logger) Mailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &logMailer{logger: logger}
}

func (m *logMailer) SendVerificationCode(email, code string) error {
	m.logger.Info("verification code notification", "to", email, "code", code)
	return nil
}

func (m *logMailer) SendRecoveryToken(email, token string) error {
	m.logger.Info("recovery token notification", "to", email, "link", "/reset-password/"+token)
	return nil
}

package core

// Logger is the application-wide logging contract. Implementations may ship
// errors to an external tracker; args may carry context values such as the
// request principal.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

package rules

import "fmt"

// ConfigError reports an invalid rule set: unreadable or malformed config,
// missing rule fields, or a rule type that cannot be evaluated.
type ConfigError struct {
	Msg string
	Err error
}

func NewConfigError(err error, format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

package inference

import (
	"fmt"
	"strings"

	"github.com/corvid-labs/skillkernel/internal/kernelerr"
)

// handleError classifies a provider SDK/transport error into the kernel's
// error taxonomy so Router and Dispatch never need to string-match an
// individual driver's error text.
func handleError(driver string, err error) error {
	if err == nil {
		return nil
	}
	low := strings.ToLower(err.Error())
	switch {
	case containsAny(low, "401", "403", "unauthorized", "invalid api key", "forbidden"):
		return kernelerr.Wrap(kernelerr.InferenceFailure, err, "%s: authentication failed", driver)
	case containsAny(low, "429", "rate limit", "quota", "too many requests"):
		return kernelerr.Wrap(kernelerr.InferenceFailure, err, "%s: rate limited", driver)
	case containsAny(low, "context length", "too many tokens", "max tokens", "token limit"):
		return kernelerr.Wrap(kernelerr.InferenceFailure, err, "%s: context too long", driver)
	case containsAny(low, "model not found", "404"):
		return kernelerr.Wrap(kernelerr.InferenceFailure, err, "%s: model not found", driver)
	case containsAny(low, "connection", "eof", "timeout", "dial", "refused"):
		return kernelerr.Wrap(kernelerr.InferenceFailure, err, "%s: connection error", driver)
	default:
		return kernelerr.Wrap(kernelerr.InferenceFailure, err, "%s: completion failed", driver)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func errMissingEnv(name string) error {
	return kernelerr.New(kernelerr.InferenceFailure, "%s not set", name)
}

func errUnknownDriver(driver string) error {
	return kernelerr.New(kernelerr.InferenceFailure, "unknown inference driver %q", driver)
}

// errUnavailable reports a backend that answered with something other than
// a valid model response (e.g. a reverse proxy's plain-text error page).
type errUnavailable struct {
	Driver string
	Body   string
	Cause  error
}

func (e *errUnavailable) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("model %s unavailable: %s", e.Driver, e.Body)
	}
	return fmt.Sprintf("model %s unavailable: %v", e.Driver, e.Cause)
}

func (e *errUnavailable) Unwrap() error { return e.Cause }

package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind classifies a provider failure.
type ErrorKind int

const (
	ProviderUnavailable ErrorKind = iota + 1
	AuthenticationFailure
	ConnectivityFailure
	TimeoutOrRateLimit
	// Canceled means the caller gave up on the request; the provider is not
	// at fault.
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case ProviderUnavailable:
		return "provider_unavailable"
	case AuthenticationFailure:
		return "authentication_failure"
	case ConnectivityFailure:
		return "connectivity_failure"
	case TimeoutOrRateLimit:
		return "timeout_or_rate_limit"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// UserMessage is the text shown to a user in place of an answer.
func (k ErrorKind) UserMessage() string {
	switch k {
	case AuthenticationFailure:
		return "Error! API Key invalid/ expired! Please check your API key."
	case ConnectivityFailure:
		return "Error! Unable to connect to GPT server! Please check your internet connection and firewall/ proxy settings."
	case TimeoutOrRateLimit:
		return "Error! Request timed-out! Please retry after a few minutes."
	case Canceled:
		return "Error! Request cancelled."
	default:
		return "Error! OpenAI GPT server busy! Please retry after a few minutes."
	}
}

// Retryable reports whether retrying later can succeed without operator action.
func (k ErrorKind) Retryable() bool {
	return k != AuthenticationFailure
}

// ProviderError wraps a failed call to a model provider.
type ProviderError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError returns the ProviderError in err's chain, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

var statusRe = regexp.MustCompile(`status code:? (\d{3})`)

// Classify wraps err in a ProviderError for op. A nil err stays nil and an
// existing ProviderError is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := AsProviderError(err); ok {
		return pe
	}
	return &ProviderError{Kind: kindOf(err), Op: op, Err: err}
}

func kindOf(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutOrRateLimit
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TimeoutOrRateLimit
		}
		return ConnectivityFailure
	}

	msg := strings.ToLower(err.Error())
	if m := statusRe.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 401 || code == 403:
			return AuthenticationFailure
		case code == 408 || code == 429:
			return TimeoutOrRateLimit
		case code >= 500:
			return ProviderUnavailable
		}
	}

	switch {
	case containsAny(msg, "invalid api key", "incorrect api key", "unauthorized", "authentication"):
		return AuthenticationFailure
	case containsAny(msg, "rate limit", "timeout", "timed out", "deadline"):
		return TimeoutOrRateLimit
	case containsAny(msg, "connection refused", "no such host", "connection reset", "dial tcp", "eof"):
		return ConnectivityFailure
	}
	return ProviderUnavailable
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

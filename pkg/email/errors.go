package email

import (
	"errors"
	"fmt"
)

// ProviderError reports an authentication or transport failure from the mail
// provider. It is never retried by the pipeline; the UI must trigger the
// credential setup flow again.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Provider, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// QuotaExceededError reports provider rate limiting. Callers back off with
// capped exponential delay and, once attempts are exhausted, keep whatever
// partial result set was already fetched.
type QuotaExceededError struct {
	Provider string
	Err      error
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: quota exceeded: %v", e.Provider, e.Err)
}

func (e *QuotaExceededError) Unwrap() error { return e.Err }

// AnalysisError reports an LLM call or parse failure, for a whole batch or a
// single record. It is never fatal: affected records simply proceed without a
// ScoreResult.
type AnalysisError struct {
	Batch  int // records in the affected batch, 0 for a single record
	Reason string
	Err    error
}

func (e *AnalysisError) Error() string {
	msg := fmt.Sprintf("analysis failed: %s", e.Reason)
	if e.Batch > 0 {
		msg = fmt.Sprintf("analysis failed (batch of %d): %s", e.Batch, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// MalformedInputError reports unparseable message content. The Normalizer
// absorbs it into a placeholder field; it never crosses the pipeline boundary.
type MalformedInputError struct {
	Field string
	Err   error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Field, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// IsQuotaExceeded reports whether err wraps a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsProviderError reports whether err wraps a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsAnalysisError reports whether err wraps an AnalysisError.
func IsAnalysisError(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae)
}

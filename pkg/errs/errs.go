// Package errs defines the tagged error envelope used across the core:
// every failure path returns (or wraps into) an Envelope with a stable
// Kind, a severity, and sanitized metadata.
package errs

import (
	"fmt"
	"strings"
)

// Kind is a stable, tagged error identifier.
type Kind string

const (
	KindFileNotFound           Kind = "FILE_NOT_FOUND"
	KindPermissionDenied       Kind = "PERMISSION_DENIED"
	KindTimeout                Kind = "TIMEOUT"
	KindValidationFailed       Kind = "VALIDATION_FAILED"
	KindSchemaMismatch         Kind = "SCHEMA_MISMATCH"
	KindEngineUnavailable      Kind = "ENGINE_UNAVAILABLE"
	KindCASIntegrityFailed     Kind = "CAS_INTEGRITY_FAILED"
	KindTenantAccessDenied     Kind = "TENANT_ACCESS_DENIED"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindForbidden              Kind = "FORBIDDEN"
	KindMembershipRequired     Kind = "MEMBERSHIP_REQUIRED"
	KindReplayMismatch         Kind = "REPLAY_MISMATCH"
	KindDeterminismViolation   Kind = "DETERMINISM_VIOLATION"
	KindHashMismatch           Kind = "HASH_MISMATCH"
	KindInvariantViolation     Kind = "INVARIANT_VIOLATION"
	KindBudgetExceeded         Kind = "BUDGET_EXCEEDED"
	KindToolOutputTooLarge     Kind = "TOOL_OUTPUT_TOO_LARGE"
	KindTriggerDataTooLarge    Kind = "TRIGGER_DATA_TOO_LARGE"
	KindSkillAlreadyRegistered Kind = "SKILL_ALREADY_REGISTERED"
	KindSkillStepFailed        Kind = "SKILL_STEP_FAILED"
	KindProviderNotConfigured  Kind = "PROVIDER_NOT_CONFIGURED"
	KindInternalError          Kind = "INTERNAL_ERROR"
)

// Severity levels, ordered low to high.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// sensitiveKeyFragments triggers redaction of any metadata key containing
// one of these substrings, case-insensitive.
var sensitiveKeyFragments = []string{
	"password", "token", "secret", "key", "auth", "credential", "api_key",
}

const redactedValue = "[REDACTED]"

// Envelope is the canonical error shape returned from every fallible
// operation in the core.
type Envelope struct {
	Code      Kind                   `json:"code"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Retryable bool                   `json:"retryable"`
	Phase     string                 `json:"phase,omitempty"`
	Cause     error                  `json:"-"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

func (e *Envelope) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Code, e.Phase, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Envelope) Unwrap() error { return e.Cause }

// New builds an Envelope, stamping nowISO as its timestamp.
func New(code Kind, message string, severity Severity, nowISO string) *Envelope {
	return &Envelope{
		Code:      code,
		Message:   message,
		Severity:  severity,
		Retryable: defaultRetryable(code),
		Timestamp: nowISO,
	}
}

// WithPhase returns a copy of e annotated with the phase it failed in.
func (e *Envelope) WithPhase(phase string) *Envelope {
	cp := *e
	cp.Phase = phase
	return &cp
}

// WithCause returns a copy of e wrapping cause.
func (e *Envelope) WithCause(cause error) *Envelope {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMeta returns a copy of e with meta merged in and sanitized.
func (e *Envelope) WithMeta(meta map[string]interface{}) *Envelope {
	cp := *e
	cp.Meta = Sanitize(meta)
	return &cp
}

// Sanitize redacts any metadata value whose key contains a sensitive
// fragment (password, token, secret, key, auth, credential, api_key),
// case-insensitive, recursing into nested map values. The input is not
// mutated; a new map is returned.
func Sanitize(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		if isSensitiveKey(k) {
			out[k] = redactedValue
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = Sanitize(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func defaultRetryable(code Kind) bool {
	switch code {
	case KindTimeout, KindEngineUnavailable, KindBudgetExceeded:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an Envelope's Kind to the HTTP status code external
// callers should see.
func HTTPStatus(code Kind) int {
	switch code {
	case KindUnauthorized, KindTenantAccessDenied:
		return 401
	case KindForbidden, KindMembershipRequired:
		return 403
	case KindFileNotFound:
		return 404
	case KindValidationFailed, KindSchemaMismatch, KindTriggerDataTooLarge:
		return 400
	case KindSkillAlreadyRegistered, KindCASIntegrityFailed, KindHashMismatch:
		return 409
	case KindBudgetExceeded:
		return 429
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// FromUnknown wraps an arbitrary error into an internal-error Envelope
// unless it is already one, in which case it is returned unchanged.
func FromUnknown(err error, nowISO string) *Envelope {
	if err == nil {
		return nil
	}
	if env, ok := err.(*Envelope); ok {
		return env
	}
	return &Envelope{
		Code:      KindInternalError,
		Message:   err.Error(),
		Severity:  SeverityError,
		Retryable: false,
		Cause:     err,
		Timestamp: nowISO,
	}
}

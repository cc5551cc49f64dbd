package auth

// Reason classifies why the gate denied a request.
type Reason int

const (
	// ReasonNone accompanies an allow verdict.
	ReasonNone Reason = iota
	ReasonMissingCredential
	ReasonUnauthenticated
	ReasonForbidden
	ReasonEvaluatorError
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMissingCredential:
		return "missing_credential"
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonForbidden:
		return "forbidden"
	case ReasonEvaluatorError:
		return "evaluator_error"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of one gate evaluation. Identity is set only when
// the verdict allows access; Err carries the underlying cause of a denial.
type Verdict struct {
	Identity *Identity
	Reason   Reason
	Err      error
}

// Allow returns an allowing verdict for identity.
func Allow(identity Identity) Verdict {
	return Verdict{Identity: &identity, Reason: ReasonNone}
}

// Deny returns a denying verdict. A ReasonNone deny is coerced to Forbidden.
func Deny(reason Reason, err error) Verdict {
	if reason == ReasonNone {
		reason = ReasonForbidden
	}
	return Verdict{Reason: reason, Err: err}
}

// Allowed reports whether the verdict grants access.
func (v Verdict) Allowed() bool {
	return v.Reason == ReasonNone && v.Identity != nil
}

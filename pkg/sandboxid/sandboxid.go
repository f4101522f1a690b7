// Package sandboxid handles sandbox test identifiers: the reserved suffix
// appended to an email or phone number to force a deterministic outcome
// against a sandbox tenant (e.g. "jane@acme.com#fail123"), and the rules for
// when a previously collected identifier may still be edited.
//
// The suffix is presentation-hostile: it must never be shown to the user and
// must be re-appended immediately before any request carrying the
// identifier. Append and Remove are pure and lossless inverses.
package sandboxid

import "strings"

// Append attaches the sandbox suffix to an identifier. Empty suffixes leave
// the identifier untouched.
func Append(identifier, suffix string) string {
	if suffix == "" {
		return identifier
	}
	return identifier + suffix
}

// Remove strips the sandbox suffix from an identifier, if present. For any
// identifier x, Remove(Append(x, s), s) == x.
func Remove(identifier, suffix string) string {
	if suffix == "" {
		return identifier
	}
	return strings.TrimSuffix(identifier, suffix)
}

// FieldKey names a collected identifier attribute.
type FieldKey string

const (
	FieldEmail       FieldKey = "id.email"
	FieldPhoneNumber FieldKey = "id.phone_number"
)

// Step identifies the identify-flow position the edit rule is evaluated at.
type Step string

const (
	StepEmailIdentification Step = "emailIdentification"
	StepPhoneIdentification Step = "phoneIdentification"
	StepSMSChallenge        Step = "smsChallenge"
	StepEmailChallenge      Step = "emailChallenge"
)

// CanEditIdentifier reports whether the user may edit the identifier at the
// given step, based on which attributes have been collected so far.
//
// The branch structure here intentionally mirrors the long-standing rule
// table, overlapping email-step clauses included; see the literal case
// matrix in the tests before reordering anything.
func CanEditIdentifier(step Step, collected map[FieldKey]string) bool {
	_, hasEmail := collected[FieldEmail]
	_, hasPhone := collected[FieldPhoneNumber]
	isEmailStep := step == StepEmailIdentification

	if isEmailStep && !hasEmail {
		return true
	}
	if isEmailStep {
		return false
	}
	if step == StepPhoneIdentification {
		return hasEmail
	}
	return hasEmail || hasPhone
}

package flow

import (
	"context"

	"veriflow/internal/flow/countdown"
	"veriflow/internal/identityapi"
	"veriflow/pkg/requestcontext"
	"veriflow/pkg/sandboxid"
)

// Snapshot is a read-only view of the full session for rendering. All
// time-derived fields are computed against the request's pinned clock so a
// render never observes two different nows.
type Snapshot struct {
	State      string              `json:"state"`
	Identify   *IdentifySnapshot   `json:"identify,omitempty"`
	Onboarding *OnboardingSnapshot `json:"onboarding,omitempty"`
	Result     *ResultSnapshot     `json:"result,omitempty"`
}

type IdentifySnapshot struct {
	Step              string                      `json:"step"`
	Pending           bool                        `json:"pending"`
	UserFound         *bool                       `json:"userFound,omitempty"`
	CanEditIdentifier bool                        `json:"canEditIdentifier"`
	Email             string                      `json:"email,omitempty"`
	PhoneNumber       string                      `json:"phoneNumber,omitempty"`
	Challenge         *ChallengeSnapshot          `json:"challenge,omitempty"`
	AvailableKinds    []identityapi.ChallengeKind `json:"availableChallengeKinds,omitempty"`
}

type ChallengeSnapshot struct {
	Kind              identityapi.ChallengeKind `json:"kind"`
	MaskedTarget      string                    `json:"maskedTarget,omitempty"`
	SecondsUntilRetry int                       `json:"secondsUntilRetry"`
	HasBiometric      bool                      `json:"hasBiometric"`
}

type OnboardingSnapshot struct {
	State      string                        `json:"state"`
	Pending    bool                          `json:"pending"`
	TenantName string                        `json:"tenantName,omitempty"`
	Queue      []identityapi.RequirementKind `json:"queue"`
	Head       *identityapi.Requirement      `json:"head,omitempty"`
	PollError  string                        `json:"pollError,omitempty"`
}

type ResultSnapshot struct {
	ValidationToken string `json:"validationToken"`
	UserFound       *bool  `json:"userFound,omitempty"`
}

// Snapshot renders the session state.
func (m *Machine) Snapshot(ctx context.Context) Snapshot {
	m.mu.Lock()
	state := m.state
	id := m.identify
	ob := m.onboarding
	shared := m.shared
	m.mu.Unlock()

	snap := Snapshot{State: state.String()}

	if state == StateIdentify && id != nil {
		is := &IdentifySnapshot{
			Step:              id.Step().String(),
			Pending:           id.Pending(),
			UserFound:         id.UserFound(),
			CanEditIdentifier: id.CanEditIdentifier(),
			Email:             id.DisplayIdentifier(sandboxid.FieldEmail),
			PhoneNumber:       id.DisplayIdentifier(sandboxid.FieldPhoneNumber),
			AvailableKinds:    id.AvailableChallengeKinds(ctx),
		}
		if ch := id.Challenge(); ch != nil {
			is.Challenge = &ChallengeSnapshot{
				Kind:              ch.Kind,
				MaskedTarget:      ch.MaskedTarget,
				SecondsUntilRetry: countdown.SecondsRemaining(ch.RetryDisabledUntil, requestcontext.Now(ctx)),
				HasBiometric:      len(ch.BiometricChallengeJSON) > 0,
			}
		}
		snap.Identify = is
	}

	if state == StateOnboarding && ob != nil {
		os := &OnboardingSnapshot{
			State:   ob.State().String(),
			Pending: ob.Pending(),
			Head:    ob.Head(),
		}
		if cfg := ob.Config(); cfg != nil {
			os.TenantName = cfg.TenantName
		}
		queue := ob.Queue()
		os.Queue = make([]identityapi.RequirementKind, 0, len(queue))
		for _, r := range queue {
			os.Queue = append(os.Queue, r.Kind)
		}
		if err := ob.PollError(); err != nil {
			os.PollError = err.Error()
		}
		snap.Onboarding = os
	}

	if state == StateComplete {
		snap.Result = &ResultSnapshot{
			ValidationToken: shared.validationToken,
			UserFound:       shared.userFound,
		}
	}

	return snap
}

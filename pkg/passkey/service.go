// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"context"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/correlation"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// Service orchestrates passkey ceremonies and credential lifecycle
// operations for users held in a UserStore.
type Service struct {
	ceremony      Ceremony
	users         UserStore
	tokens        TokenIssuer
	audit         audit.AuditAdapter
	logger        logger.Logger
	defaultOrigin string
	now           func() time.Time
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Ceremony is the WebAuthn library binding (required).
	Ceremony Ceremony

	// UserStore is the user persistence layer (required).
	UserStore UserStore

	// Tokens issues the session token returned by FinishAuthentication.
	// If nil, no token is issued.
	Tokens TokenIssuer

	// DefaultOrigin is used when a finish call does not supply an origin.
	// If empty and Ceremony exposes a Config, its first origin is used.
	DefaultOrigin string

	// Logger defaults to a no-op logger.
	Logger logger.Logger

	// Audit defaults to a no-op sink.
	Audit audit.AuditAdapter
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Ceremony == nil {
		return nil, fmt.Errorf("ceremony is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}

	origin := params.DefaultOrigin
	if origin == "" {
		if c, ok := params.Ceremony.(interface{ Config() *Config }); ok && c.Config() != nil {
			origin = c.Config().DefaultOrigin()
		}
	}

	log := params.Logger
	if log == nil {
		log = logger.Nop()
	}
	sink := params.Audit
	if sink == nil {
		sink = audit.NewNoOpAuditAdapter()
	}

	return &Service{
		ceremony:      params.Ceremony,
		users:         params.UserStore,
		tokens:        params.Tokens,
		audit:         sink,
		logger:        log.With(logger.String("component", "passkey")),
		defaultOrigin: origin,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// DefaultOrigin returns the origin used when a request names none.
func (s *Service) DefaultOrigin() string {
	return s.defaultOrigin
}

// BeginRegistration issues registration options for the user and records
// the challenge as the user's pending challenge. Existing credentials are
// excluded so an authenticator cannot be registered twice.
func (s *Service) BeginRegistration(ctx context.Context, userID, name string) (opts *protocol.PublicKeyCredentialCreationOptions, err error) {
	const op = "BeginRegistration"
	start := time.Now()
	var user *User
	defer func() { s.observe(ctx, metrics.OpRegisterBegin, audit.EventRegistrationBegin, user, "", start, err) }()

	user, err = s.validUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	creds, _ := s.heal(ctx, user)

	exclude := make([]string, len(creds))
	for i, c := range creds {
		exclude[i] = c.CredentialID
	}

	opts, err = s.ceremony.RegistrationOptions(ctx, RegistrationOptionsRequest{
		UserID:               user.ID,
		Username:             user.Username,
		DisplayName:          user.Username,
		ExcludeCredentialIDs: exclude,
	})
	if err != nil {
		return nil, NewError(op, err)
	}
	if opts == nil || len(opts.Challenge) == 0 {
		return nil, NewError(op, ErrOptionsGenerationFailed)
	}

	challenge := opts.Challenge.String()
	if err = s.users.UpdateUser(ctx, user.ID, UserUpdate{}.WithPendingChallenge(challenge)); err != nil {
		return nil, s.storageError(op, err)
	}

	s.logger.WithContext(ctx).Info("registration options issued",
		logger.UserID(user.ID),
		logger.String("credential_name", name),
		logger.Int("excluded", len(exclude)))
	return opts, nil
}

// FinishRegistration verifies a registration response against the pending
// challenge and appends the new credential. origin may be empty to use the
// default origin.
func (s *Service) FinishRegistration(ctx context.Context, userID, name string, resp RegistrationResponse, origin string) (cred *Credential, err error) {
	const op = "FinishRegistration"
	start := time.Now()
	var user *User
	credentialID := ""
	defer func() {
		s.observe(ctx, metrics.OpRegisterFinish, audit.EventRegistrationFinish, user, credentialID, start, err)
	}()

	user, err = s.validUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	creds, _ := s.heal(ctx, user)

	formatted, err := FormatRegistration(resp)
	if err != nil {
		return nil, err
	}

	pending := user.PendingChallenge
	if pending == "" {
		return nil, NewError(op, ErrChallengeMismatch)
	}

	info, err := s.ceremony.VerifyRegistration(ctx, RegistrationVerification{
		UserID:            user.ID,
		Username:          user.Username,
		Response:          formatted,
		ExpectedChallenge: pending,
		ExpectedOrigin:    s.origin(origin),
	})
	if err != nil {
		return nil, NewError(op, err)
	}
	if info == nil || !info.Verified {
		return nil, NewError(op, ErrVerificationFailed)
	}

	credentialID = NormalizeBytes(info.CredentialID)
	if !IsValid(credentialID) {
		return nil, NewError(op, ErrInvalidCredentialID)
	}
	for _, c := range creds {
		if c.CredentialID == credentialID {
			return nil, NewError(op, ErrDuplicateCredential)
		}
	}

	cred = &Credential{
		ID:                   credentialID,
		Name:                 name,
		CredentialID:         credentialID,
		CredentialPublicKey:  NormalizeBytes(info.PublicKey),
		Counter:              info.Counter,
		CreatedAt:            s.now(),
		IsPasskey:            true,
		CredentialDeviceType: info.DeviceType,
		CredentialBackedUp:   info.BackedUp,
		Transports:           info.Transports,
		AAGUID:               NormalizeBytes(info.AAGUID),
	}

	update := UserUpdate{}.
		WithCredentials(append(creds, *cred)).
		WithPendingChallenge("").
		IfChallenge(pending)
	if err = s.users.UpdateUser(ctx, user.ID, update); err != nil {
		return nil, s.storageError(op, err)
	}

	s.logger.WithContext(ctx).Info("passkey registered",
		logger.UserID(user.ID),
		logger.CredentialID(credentialID),
		logger.String("device_type", info.DeviceType))
	return cred, nil
}

// BeginAuthentication issues authentication options restricted to the
// user's stored credentials and records the challenge.
func (s *Service) BeginAuthentication(ctx context.Context, username string) (opts *protocol.PublicKeyCredentialRequestOptions, err error) {
	const op = "BeginAuthentication"
	start := time.Now()
	var user *User
	defer func() {
		s.observe(ctx, metrics.OpAuthenticateBegin, audit.EventAuthenticationBegin, user, "", start, err)
	}()

	if username == "" {
		return nil, NewError(op, ErrNoUser)
	}
	user, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, s.lookupError(op, err)
	}

	creds, _ := s.heal(ctx, user)
	if len(creds) == 0 {
		return nil, NewError(op, ErrNoCredentials)
	}

	opts, err = s.ceremony.AuthenticationOptions(ctx, AuthenticationOptionsRequest{
		UserID:             user.ID,
		AllowCredentialIDs: credentialIDs(creds),
	})
	if err != nil && IsMalformedCredentialList(err) {
		s.logger.WithContext(ctx).Warn("credential list rejected, healing and retrying",
			logger.UserID(user.ID), logger.Error(err))

		if fresh, gerr := s.users.GetUserByID(ctx, user.ID); gerr == nil {
			user = fresh
		}
		creds, _ = s.heal(ctx, user)
		if len(creds) == 0 {
			return nil, NewError(op, ErrNoCredentials)
		}
		opts, err = s.ceremony.AuthenticationOptions(ctx, AuthenticationOptionsRequest{
			UserID:             user.ID,
			AllowCredentialIDs: credentialIDs(creds),
		})
	}
	if err != nil {
		return nil, NewError(op, err)
	}
	if opts == nil || len(opts.Challenge) == 0 {
		return nil, NewError(op, ErrOptionsGenerationFailed)
	}

	if err = s.users.UpdateUser(ctx, user.ID, UserUpdate{}.WithPendingChallenge(opts.Challenge.String())); err != nil {
		return nil, s.storageError(op, err)
	}

	s.logger.WithContext(ctx).Info("authentication options issued",
		logger.UserID(user.ID),
		logger.Int("allowed", len(creds)))
	return opts, nil
}

// FinishAuthentication verifies an assertion, advances the stored counter
// and returns a session token for the user.
func (s *Service) FinishAuthentication(ctx context.Context, username string, resp AuthenticationResponse, origin string) (token string, user *User, err error) {
	const op = "FinishAuthentication"
	start := time.Now()
	credentialID := ""
	defer func() {
		s.observe(ctx, metrics.OpAuthenticateFinish, audit.EventAuthenticationFinish, user, credentialID, start, err)
	}()

	formatted, err := FormatAuthentication(resp)
	if err != nil {
		return "", nil, err
	}
	credentialID = formatted.ID

	if username == "" {
		return "", nil, NewError(op, ErrNoUser)
	}
	user, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, s.lookupError(op, err)
	}

	creds, _ := s.heal(ctx, user)

	idx := -1
	for i, c := range creds {
		if c.CredentialID == credentialID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", nil, NewError(op, ErrCredentialNotFound)
	}

	pending := user.PendingChallenge
	if pending == "" {
		return "", nil, NewError(op, ErrChallengeMismatch)
	}

	info, err := s.ceremony.VerifyAuthentication(ctx, AuthenticationVerification{
		UserID:            user.ID,
		Username:          user.Username,
		Response:          formatted,
		ExpectedChallenge: pending,
		ExpectedOrigin:    s.origin(origin),
		Credential:        creds[idx],
	})
	if err != nil {
		return "", nil, NewError(op, err)
	}
	if info == nil || !info.Verified {
		return "", nil, NewError(op, ErrVerificationFailed)
	}

	creds[idx].Counter = info.NewCounter
	creds[idx].CredentialBackedUp = info.BackedUp

	update := UserUpdate{}.
		WithCredentials(creds).
		WithPendingChallenge("").
		IfChallenge(pending)
	if err = s.users.UpdateUser(ctx, user.ID, update); err != nil {
		return "", nil, s.storageError(op, err)
	}
	_ = update.Apply(user)

	if s.tokens != nil {
		token, err = s.tokens.IssueToken(ctx, user)
		if err != nil {
			return "", nil, NewError(op, err)
		}
	}

	s.logger.WithContext(ctx).Info("passkey authentication succeeded",
		logger.UserID(user.ID),
		logger.CredentialID(credentialID),
		logger.Int("counter", int(info.NewCounter)))
	return token, user, nil
}

// heal normalizes the user's stored credential list and persists it when it
// changed. Persistence failures are logged and never abort the caller.
func (s *Service) heal(ctx context.Context, user *User) ([]Credential, HealReport) {
	creds, report := Heal(user.PasskeyCredentials)
	if !report.Dirty() {
		return creds, report
	}

	log := s.logger.WithContext(ctx).With(logger.UserID(user.ID))
	for _, change := range report.Changes {
		fields := []logger.Field{
			logger.Int("index", change.Index),
			logger.CredentialID(change.Original),
		}
		if change.Action == HealDiscarded {
			log.Warn("discarding stored credential: "+change.Reason, fields...)
		} else {
			fields = append(fields, logger.String("fixed", change.Fixed))
			if change.Reason != "" {
				fields = append(fields, logger.String("reason", change.Reason))
			}
			log.Info("rewriting stored credential", fields...)
		}
	}
	if report.Reset {
		log.Warn("stored credential list is not a list, resetting")
	}
	metrics.RecordHeal(report.Rewritten, report.Discarded, report.Reset)

	update := UserUpdate{}.WithCredentials(creds)
	if err := s.users.UpdateUser(ctx, user.ID, update); err != nil {
		log.Error("failed to persist healed credentials", logger.Error(err))
		return creds, report
	}
	_ = update.Apply(user)
	return creds, report
}

func (s *Service) validUser(ctx context.Context, op, userID string) (*User, error) {
	if userID == "" {
		return nil, NewError(op, ErrInvalidUser)
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, s.lookupError(op, err)
	}
	if user.ID == "" || user.Username == "" {
		return nil, NewError(op, ErrInvalidUser)
	}
	return user, nil
}

func (s *Service) origin(origin string) string {
	if origin != "" {
		return origin
	}
	return s.defaultOrigin
}

func (s *Service) lookupError(op string, err error) error {
	if KindOf(err) == KindUserNotFound {
		return NewError(op, err)
	}
	return s.storageError(op, err)
}

// storageError keeps typed store errors and classifies everything else as a
// storage failure.
func (s *Service) storageError(op string, err error) error {
	if KindOf(err) != KindUnknown {
		return NewError(op, err)
	}
	return &Error{Op: op, Kind: KindStorage, Err: err}
}

// observe records metrics and an audit event for a finished operation.
func (s *Service) observe(ctx context.Context, op string, event audit.EventType, user *User, credentialID string, start time.Time, err error) {
	metrics.RecordOperation(op, metrics.StatusFor(err), time.Since(start).Seconds())

	e := &audit.AuditEvent{
		EventType: event,
		Severity:  audit.SeverityInfo,
		Outcome:   audit.OutcomeSuccess,
		RequestID: correlation.GetCorrelationID(ctx),
	}
	if user != nil {
		e.Principal = &audit.Principal{Type: "user", ID: user.ID, Name: user.Username}
	}
	if credentialID != "" {
		e.Resource = &audit.Resource{Type: "credential", ID: credentialID}
	}
	if err != nil {
		kind := KindOf(err)
		metrics.RecordError(op, kind.String())
		e.Severity = audit.SeverityWarn
		e.Outcome = audit.OutcomeFailure
		e.Result = kind.String()
		if kind == KindStorage {
			e.Severity = audit.SeverityError
			s.logger.WithContext(ctx).Error(op+" failed", logger.Error(err))
		} else {
			s.logger.WithContext(ctx).Warn(op+" failed", logger.Error(err), logger.String("kind", kind.String()))
		}
	}

	if aerr := s.audit.LogEvent(ctx, e); aerr != nil {
		s.logger.WithContext(ctx).Error("failed to record audit event", logger.Error(aerr))
	}
}

func credentialIDs(creds []Credential) []string {
	ids := make([]string, len(creds))
	for i, c := range creds {
		ids[i] = c.CredentialID
	}
	return ids
}

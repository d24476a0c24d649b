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
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

// Credentials returns the user's canonical credential list.
func (s *Service) Credentials(ctx context.Context, userID string) ([]Credential, error) {
	const op = "Credentials"
	user, err := s.user(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	creds, _ := s.heal(ctx, user)
	return creds, nil
}

// RemoveCredential deletes the credential whose id matches credentialID.
// Removing the last credential disables passkey sign-in for the user.
func (s *Service) RemoveCredential(ctx context.Context, userID, credentialID string) (err error) {
	const op = "RemoveCredential"
	start := time.Now()
	var user *User
	id := NormalizeString(credentialID)
	defer func() { s.observe(ctx, metrics.OpRemoveCredential, audit.EventCredentialRemove, user, id, start, err) }()

	if credentialID == "" {
		return NewError(op, ErrMissingCredentialID)
	}
	if !IsValid(id) {
		return NewError(op, ErrInvalidCredentialID)
	}

	user, err = s.user(ctx, op, userID)
	if err != nil {
		return err
	}

	creds, _ := s.heal(ctx, user)
	if len(creds) == 0 {
		return NewError(op, ErrNoCredentials)
	}

	remaining := make([]Credential, 0, len(creds))
	for _, c := range creds {
		if c.CredentialID == id || c.ID == id {
			continue
		}
		remaining = append(remaining, c)
	}
	if len(remaining) == len(creds) {
		return NewError(op, ErrCredentialNotFound)
	}

	if err = s.users.UpdateUser(ctx, user.ID, UserUpdate{}.WithCredentials(remaining)); err != nil {
		return s.storageError(op, err)
	}

	s.logger.WithContext(ctx).Info("passkey removed",
		logger.UserID(user.ID),
		logger.CredentialID(id),
		logger.Int("remaining", len(remaining)))
	return nil
}

// CheckUser reports what healing would change without persisting anything.
func (s *Service) CheckUser(ctx context.Context, userID string) (HealReport, error) {
	user, err := s.user(ctx, "CheckUser", userID)
	if err != nil {
		return HealReport{}, err
	}
	_, report := Heal(user.PasskeyCredentials)
	return report, nil
}

// RepairUser heals the user's credential list and persists it. Unlike the
// implicit healing done by ceremonies, a persistence failure is returned.
func (s *Service) RepairUser(ctx context.Context, userID string) (report HealReport, err error) {
	const op = "RepairUser"
	start := time.Now()
	var user *User
	defer func() { s.observe(ctx, metrics.OpRepair, audit.EventCredentialRepair, user, "", start, err) }()

	user, err = s.user(ctx, op, userID)
	if err != nil {
		return HealReport{}, err
	}
	report, err = s.repair(ctx, user)
	return report, err
}

// CredentialIDReport describes each stored entry of the user's credential
// list as it is persisted, before any healing.
func (s *Service) CredentialIDReport(ctx context.Context, userID string) (*CredentialIDReport, error) {
	user, err := s.user(ctx, "CredentialIDReport", userID)
	if err != nil {
		return nil, err
	}

	_, healReport := Heal(user.PasskeyCredentials)
	report := &CredentialIDReport{
		HasPasskey: user.PasskeyEnabled,
		NeedsFix:   healReport.Dirty(),
		Details:    []CredentialDetail{},
	}

	for i, entry := range storedEntries(user.PasskeyCredentials) {
		detail := CredentialDetail{Index: i}

		if sc, ok := decodeStoredCredential(entry); ok {
			detail.Name = sc.Name
			detail.IsPasskey = sc.IsPasskey
			detail.CredentialDeviceType = sc.CredentialDeviceType
			detail.CredentialBackedUp = sc.CredentialBackedUp
			detail.CredentialIDInfo = Inspect(sc.CredentialID)
			if _, text, _ := decodeStoredID(sc.CredentialID); text != "" {
				detail.CredentialID = truncateID(text)
			}
		} else {
			detail.CredentialIDInfo = Inspect(nil)
			detail.Issues = append(detail.Issues, "entry is not an object")
		}

		report.TotalCredentials++
		if detail.IsValid {
			report.ValidCredentials++
		} else {
			report.InvalidCredentials++
		}
		if detail.IsPasskey {
			report.PasskeyCredentials++
		}
		report.Details = append(report.Details, detail)
	}

	return report, nil
}

// Stats summarizes the user's stored credential list. The returned bool is
// the user's passkeyEnabled flag.
func (s *Service) Stats(ctx context.Context, userID string) (bool, *Stats, error) {
	user, err := s.user(ctx, "Stats", userID)
	if err != nil {
		return false, nil, err
	}

	stats := &Stats{}
	for _, entry := range storedEntries(user.PasskeyCredentials) {
		stats.TotalCredentials++

		sc, ok := decodeStoredCredential(entry)
		if !ok {
			stats.HardwareCredentials++
			stats.InvalidCredentials++
			continue
		}
		if sc.IsPasskey {
			stats.PasskeyCredentials++
		} else {
			stats.HardwareCredentials++
		}
		if Inspect(sc.CredentialID).IsValid {
			stats.ValidCredentials++
		} else {
			stats.InvalidCredentials++
		}
	}
	return user.PasskeyEnabled, stats, nil
}

// CheckAll reports, for every user with stored credentials, what healing
// would change. Nothing is persisted.
func (s *Service) CheckAll(ctx context.Context) (*BulkResult, error) {
	return s.bulk(ctx, false)
}

// FixAll heals and persists every user's credential list. A failure for one
// user is recorded and the pass continues with the next.
func (s *Service) FixAll(ctx context.Context) (result *BulkResult, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, metrics.OpFixAll, audit.EventBulkRepair, nil, "", start, err) }()
	return s.bulk(ctx, true)
}

func (s *Service) bulk(ctx context.Context, persist bool) (*BulkResult, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, s.storageError("ListUsers", err)
	}

	result := &BulkResult{
		TotalUsers: len(users),
		Results:    []UserCheck{},
	}

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !hasStoredCredentials(user.PasskeyCredentials) {
			continue
		}
		result.UsersWithPasskey++

		check := UserCheck{UserID: user.ID, Username: user.Username}
		if persist {
			check.Report, err = s.repair(ctx, user)
		} else {
			_, check.Report = Heal(user.PasskeyCredentials)
		}
		if err != nil {
			check.Error = err.Error()
			result.Failures = append(result.Failures, check)
			s.logger.WithContext(ctx).Error("bulk repair failed for user",
				logger.UserID(user.ID), logger.Error(err))
			continue
		}

		if check.Report.Dirty() {
			result.FixedUsers++
			result.TotalFixedCredentials += check.Report.Rewritten
			result.TotalDiscarded += check.Report.Discarded
		}
		result.Results = append(result.Results, check)
	}

	s.logger.WithContext(ctx).Info("bulk credential pass complete",
		logger.Bool("persist", persist),
		logger.Int("users", result.TotalUsers),
		logger.Int("fixed_users", result.FixedUsers),
		logger.Int("failures", len(result.Failures)))
	return result, nil
}

func (s *Service) repair(ctx context.Context, user *User) (HealReport, error) {
	creds, report := Heal(user.PasskeyCredentials)
	if !report.Dirty() {
		return report, nil
	}
	metrics.RecordHeal(report.Rewritten, report.Discarded, report.Reset)

	update := UserUpdate{}.WithCredentials(creds)
	if err := s.users.UpdateUser(ctx, user.ID, update); err != nil {
		return report, s.storageError("RepairUser", err)
	}
	_ = update.Apply(user)

	s.logger.WithContext(ctx).Info("credential list repaired",
		logger.UserID(user.ID),
		logger.Int("rewritten", report.Rewritten),
		logger.Int("discarded", report.Discarded))
	return report, nil
}

func (s *Service) user(ctx context.Context, op, userID string) (*User, error) {
	if userID == "" {
		return nil, NewError(op, ErrInvalidUser)
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, s.lookupError(op, err)
	}
	return user, nil
}

// storedEntries splits a stored credential list into its raw entries. A value
// that is not a JSON array yields no entries.
func storedEntries(raw json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil
	}
	for i := range entries {
		entries[i] = bytes.TrimSpace(entries[i])
	}
	return entries
}

func hasStoredCredentials(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		return false
	}
	return true
}

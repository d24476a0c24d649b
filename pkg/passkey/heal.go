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
	"encoding/json"
	"strings"
)

// Heal actions recorded in a HealChange.
const (
	HealRewritten = "rewritten"
	HealDiscarded = "discarded"
)

// HealChange records what happened to a single stored entry.
type HealChange struct {
	Index    int    `json:"index"`
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
	Original string `json:"original,omitempty"`
	Fixed    string `json:"fixed,omitempty"`
}

// HealReport summarizes a healing pass over one stored credential list.
type HealReport struct {
	// Total is the number of entries before healing.
	Total int `json:"total"`

	// Valid is the number of entries kept.
	Valid int `json:"valid"`

	// Rewritten counts kept entries whose credential id was re-encoded or
	// whose ill-typed fields were reset.
	Rewritten int `json:"rewritten"`

	// Discarded counts entries that were dropped.
	Discarded int `json:"discarded"`

	// Reset is true when the stored value was not a list at all.
	Reset bool `json:"reset"`

	Changes []HealChange `json:"changes,omitempty"`
}

// Dirty reports whether the healed list differs from what is stored.
func (r HealReport) Dirty() bool {
	return r.Reset || r.Rewritten > 0 || r.Discarded > 0
}

// storedCredential is an entry decoded field by field, with the credential id
// kept in its original shape.
type storedCredential struct {
	Credential
	CredentialID json.RawMessage

	// reset lists fields whose stored value had the wrong type and was
	// replaced by the zero value.
	reset []string
}

// decodeStoredCredential decodes one stored entry. Only an entry that is not
// a JSON object fails; an ill-typed field other than the credential id is
// reset instead of rejecting the whole entry.
func decodeStoredCredential(entry json.RawMessage) (storedCredential, bool) {
	var sc storedCredential
	entry = bytes.TrimSpace(entry)
	if len(entry) == 0 || entry[0] != '{' {
		return sc, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return sc, false
	}

	sc.CredentialID = fields["credentialID"]
	c := &sc.Credential
	decode := func(key string, ok bool) {
		if !ok {
			sc.reset = append(sc.reset, key)
		}
	}
	decode("id", decodeField(fields, "id", &c.ID))
	decode("name", decodeField(fields, "name", &c.Name))
	decode("credentialPublicKey", decodeField(fields, "credentialPublicKey", &c.CredentialPublicKey))
	decode("counter", decodeField(fields, "counter", &c.Counter))
	decode("createdAt", decodeField(fields, "createdAt", &c.CreatedAt))
	decode("isPasskey", decodeField(fields, "isPasskey", &c.IsPasskey))
	decode("credentialDeviceType", decodeField(fields, "credentialDeviceType", &c.CredentialDeviceType))
	decode("credentialBackedUp", decodeField(fields, "credentialBackedUp", &c.CredentialBackedUp))
	decode("transports", decodeField(fields, "transports", &c.Transports))
	decode("aaguid", decodeField(fields, "aaguid", &c.AAGUID))
	return sc, true
}

// decodeField decodes fields[key] into dst. dst is left untouched when the key
// is absent or the value does not decode; false reports the latter.
func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T) bool {
	raw, ok := fields[key]
	if !ok {
		return true
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	*dst = v
	return true
}

// Heal normalizes a stored credential list. It returns the canonical list and
// a report; it never touches storage. Healing an already canonical list
// yields a report that is not Dirty.
func Heal(raw json.RawMessage) ([]Credential, HealReport) {
	var report HealReport

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []Credential{}, report
	}

	var entries []json.RawMessage
	if trimmed[0] != '[' || json.Unmarshal(trimmed, &entries) != nil {
		report.Reset = true
		return []Credential{}, report
	}

	report.Total = len(entries)
	healed := make([]Credential, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	discard := func(i int, reason, original string) {
		report.Discarded++
		report.Changes = append(report.Changes, HealChange{
			Index:    i,
			Action:   HealDiscarded,
			Reason:   reason,
			Original: truncateID(original),
		})
	}

	for i, entry := range entries {
		sc, ok := decodeStoredCredential(entry)
		if !ok {
			discard(i, "entry is not an object", "")
			continue
		}

		shape, text, _ := decodeStoredID(sc.CredentialID)
		original := string(sc.CredentialID)
		if shape == ShapeString {
			original = text
		}

		fixed := normalizeStoredID(sc.CredentialID)
		if fixed == "" {
			discard(i, "credential id cannot be recovered", original)
			continue
		}
		if !IsValid(fixed) {
			discard(i, "credential id does not decode", original)
			continue
		}
		if _, dup := seen[fixed]; dup {
			discard(i, "duplicate credential id", original)
			continue
		}
		seen[fixed] = struct{}{}

		cred := sc.Credential
		cred.CredentialID = fixed
		if shape != ShapeString || text != fixed || len(sc.reset) > 0 {
			change := HealChange{
				Index:    i,
				Action:   HealRewritten,
				Original: truncateID(original),
				Fixed:    truncateID(fixed),
			}
			if len(sc.reset) > 0 {
				change.Reason = "reset ill-typed fields: " + strings.Join(sc.reset, ", ")
			}
			report.Rewritten++
			report.Changes = append(report.Changes, change)
		}
		healed = append(healed, cred)
	}

	report.Valid = len(healed)
	return healed, report
}

// truncateID shortens a credential id for logs and reports.
func truncateID(id string) string {
	const keep = 16
	if len(id) <= keep {
		return id
	}
	return id[:keep] + "..."
}

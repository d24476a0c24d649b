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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeal_CanonicalListIsClean(t *testing.T) {
	raw := storedList(t,
		Credential{ID: "AAEC_w", CredentialID: "AAEC_w", Name: "laptop", IsPasskey: true},
		Credential{ID: "AQID", CredentialID: "AQID", Name: "phone", IsPasskey: true},
	)

	creds, report := Heal(raw)
	require.Len(t, creds, 2)
	assert.False(t, report.Dirty())
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Valid)
	assert.Empty(t, report.Changes)
	assert.Equal(t, "laptop", creds[0].Name)
}

func TestHeal_Idempotent(t *testing.T) {
	raw := json.RawMessage(`[
		{"credentialID":"abc+def/==","name":"std"},
		{"credentialID":[1,2,3],"name":"array"},
		{"credentialID":{"type":"Buffer","data":[4,5,6]},"name":"buffer"},
		{"credentialID":null,"name":"gone"}
	]`)

	first, report := Heal(raw)
	require.True(t, report.Dirty())

	encoded, err := json.Marshal(first)
	require.NoError(t, err)

	second, again := Heal(encoded)
	assert.False(t, again.Dirty())
	assert.Equal(t, first, second)
}

func TestHeal_DiscardsUnrecoverableEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"null id", `{"credentialID":null,"name":"bad"}`},
		{"empty object id", `{"credentialID":{},"name":"bad"}`},
		{"empty string id", `{"credentialID":"","name":"bad"}`},
		{"missing id", `{"name":"bad"}`},
		{"numeric id", `{"credentialID":12,"name":"bad"}`},
		{"null entry", `null`},
		{"string entry", `"AAEC_w"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := json.RawMessage(`[` + tt.entry + `,{"credentialID":"AAEC_w","name":"good"}]`)

			creds, report := Heal(raw)
			require.Len(t, creds, 1)
			assert.Equal(t, "good", creds[0].Name)
			assert.Equal(t, "AAEC_w", creds[0].CredentialID)
			assert.Equal(t, 1, report.Discarded)
			assert.Equal(t, 0, report.Rewritten)
			require.Len(t, report.Changes, 1)
			assert.Equal(t, HealDiscarded, report.Changes[0].Action)
			assert.Equal(t, 0, report.Changes[0].Index)
		})
	}
}

func TestHeal_RewritesLegacyShapes(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"standard alphabet", `"abc+def/=="`, "abc-def_"},
		{"padded url alphabet", `"AAEC_w=="`, "AAEC_w"},
		{"byte array", `[0,1,2,255]`, "AAEC_w"},
		{"node buffer", `{"type":"Buffer","data":[0,1,2,255]}`, "AAEC_w"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := json.RawMessage(`[{"credentialID":` + tt.id + `,"counter":7,"isPasskey":true}]`)

			creds, report := Heal(raw)
			require.Len(t, creds, 1)
			assert.Equal(t, tt.want, creds[0].CredentialID)
			assert.Equal(t, uint32(7), creds[0].Counter)
			assert.True(t, creds[0].IsPasskey)
			assert.Equal(t, 1, report.Rewritten)
			assert.True(t, report.Dirty())
			require.Len(t, report.Changes, 1)
			assert.Equal(t, HealRewritten, report.Changes[0].Action)
		})
	}
}

func TestHeal_KeepsEntriesWithIllTypedFields(t *testing.T) {
	raw := json.RawMessage(`[
		{"credentialID":"AQID","name":"phone","counter":"3","isPasskey":true},
		{"credentialID":"AAEC_w","name":"laptop","createdAt":"","transports":"usb"}
	]`)

	creds, report := Heal(raw)
	require.Len(t, creds, 2)
	assert.Equal(t, 0, report.Discarded)
	assert.Equal(t, 2, report.Rewritten)
	assert.True(t, report.Dirty())

	assert.Equal(t, "AQID", creds[0].CredentialID)
	assert.Equal(t, "phone", creds[0].Name)
	assert.Equal(t, uint32(0), creds[0].Counter)
	assert.True(t, creds[0].IsPasskey)

	assert.Equal(t, "AAEC_w", creds[1].CredentialID)
	assert.Equal(t, "laptop", creds[1].Name)
	assert.True(t, creds[1].CreatedAt.IsZero())
	assert.Nil(t, creds[1].Transports)

	require.Len(t, report.Changes, 2)
	assert.Equal(t, HealRewritten, report.Changes[0].Action)
	assert.Contains(t, report.Changes[0].Reason, "counter")
	assert.Contains(t, report.Changes[1].Reason, "createdAt")
	assert.Contains(t, report.Changes[1].Reason, "transports")

	encoded, err := json.Marshal(creds)
	require.NoError(t, err)
	again, second := Heal(encoded)
	assert.False(t, second.Dirty())
	assert.Equal(t, creds, again)
}

func TestHeal_KeepsDanglingCharacterID(t *testing.T) {
	creds, report := Heal(json.RawMessage(`[{"credentialID":"ABCDE","name":"old"}]`))
	require.Len(t, creds, 1)
	assert.Equal(t, "ABCDE", creds[0].CredentialID)
	assert.False(t, report.Dirty())
}

func TestHeal_NotAList(t *testing.T) {
	for _, raw := range []string{`{"credentialID":"AAEC_w"}`, `"oops"`, `42`, `null`, `[broken`} {
		t.Run(raw, func(t *testing.T) {
			creds, report := Heal(json.RawMessage(raw))
			assert.Empty(t, creds)
			assert.NotNil(t, creds)
			assert.True(t, report.Reset)
			assert.True(t, report.Dirty())
		})
	}
}

func TestHeal_Empty(t *testing.T) {
	for _, raw := range []string{``, `[]`, `  `} {
		creds, report := Heal(json.RawMessage(raw))
		assert.Empty(t, creds)
		assert.False(t, report.Dirty(), "input %q", raw)
	}
}

func TestHeal_DropsDuplicates(t *testing.T) {
	raw := json.RawMessage(`[
		{"credentialID":"AAEC_w","name":"first"},
		{"credentialID":[0,1,2,255],"name":"second"}
	]`)

	creds, report := Heal(raw)
	require.Len(t, creds, 1)
	assert.Equal(t, "first", creds[0].Name)
	assert.Equal(t, 1, report.Discarded)
	assert.Equal(t, "duplicate credential id", report.Changes[0].Reason)
}

func TestHealReport_Dirty(t *testing.T) {
	assert.False(t, HealReport{Total: 3, Valid: 3}.Dirty())
	assert.True(t, HealReport{Rewritten: 1}.Dirty())
	assert.True(t, HealReport{Discarded: 1}.Dirty())
	assert.True(t, HealReport{Reset: true}.Dirty())
}

func storedList(t *testing.T, creds ...Credential) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(creds)
	require.NoError(t, err)
	return raw
}

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

// Package passkey implements passwordless WebAuthn (passkey) registration and
// authentication on top of the go-webauthn/webauthn library.
//
// The package is organized in layers:
//
//  1. Credential-ID codec (NormalizeString, NormalizeBytes, IsValid, Inspect)
//  2. Response formatter (FormatRegistration, FormatAuthentication)
//  3. Self-healing of stored credential lists (Heal)
//  4. Ceremony orchestration (Service) over a pluggable Ceremony binding
//  5. Credential lifecycle administration (RemoveCredential, CheckAll, FixAll)
//
// Credential identifiers are always handled in canonical base64url form: the
// URL-safe alphabet with no padding. Stored data written by older clients may
// carry standard base64, padded strings, raw byte arrays or serialized Node
// buffers; Heal rewrites those in place and discards anything it cannot
// recover before a ceremony ever sees the list.
//
// # Usage
//
//	ceremony, err := passkey.NewWebAuthnCeremony(&passkey.Config{
//	    RPID:          "localhost",
//	    RPDisplayName: "My App",
//	    RPOrigins:     []string{"http://localhost:3001"},
//	})
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Ceremony:  ceremony,
//	    UserStore: store,
//	    Tokens:    passkey.NewJWTIssuer(passkey.JWTIssuerConfig{Secret: secret}),
//	})
//
// The http subpackage exposes the service as JSON endpoints that can be
// mounted on a chi router.
package passkey

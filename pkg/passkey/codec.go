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
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
)

var base64URLPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Shapes a stored credential id may take.
const (
	ShapeString  = "string"
	ShapeBuffer  = "buffer"
	ShapeNull    = "null"
	ShapeObject  = "object"
	ShapeNumber  = "number"
	ShapeBoolean = "boolean"
	ShapeUnknown = "unknown"
)

// Formats reported by Inspect.
const (
	FormatBase64URL = "base64url"
	FormatOther     = "other"
	FormatBuffer    = "buffer"
	FormatUnknown   = "unknown"
)

var urlToStd = strings.NewReplacer("-", "+", "_", "/")

// NormalizeBytes encodes a raw credential id as canonical base64url.
// An empty input yields "".
func NormalizeBytes(id []byte) string {
	if len(id) == 0 {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(id)
}

// NormalizeString converts a textual credential id to canonical base64url.
//
// Strings already in the base64url alphabet are returned unchanged. Anything
// else is decoded as base64 (either alphabet, padding optional) and
// re-encoded. Text that does not decode is treated as raw bytes. Only the
// empty string yields "".
func NormalizeString(id string) string {
	if id == "" {
		return ""
	}
	if base64URLPattern.MatchString(id) {
		return id
	}
	if decoded, ok := decodeLenient(id); ok {
		return base64.RawURLEncoding.EncodeToString(decoded)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// IsValid reports whether id is canonical base64url that decodes to at least
// one byte.
func IsValid(id string) bool {
	if id == "" || !base64URLPattern.MatchString(id) {
		return false
	}
	decoded, err := decodeBase64URL(id)
	return err == nil && len(decoded) > 0
}

// DecodeID returns the raw bytes of a canonical credential id.
func DecodeID(id string) ([]byte, error) {
	if !IsValid(id) {
		return nil, ErrInvalidCredentialID
	}
	return decodeBase64URL(id)
}

// decodeBase64URL decodes unpadded base64url. A lone trailing character
// carries fewer than eight bits and is dropped, as browsers and Node do.
func decodeBase64URL(s string) ([]byte, error) {
	if len(s)%4 == 1 {
		s = s[:len(s)-1]
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func decodeLenient(s string) ([]byte, bool) {
	t := strings.TrimRight(strings.TrimSpace(s), "=")
	t = urlToStd.Replace(t)
	decoded, err := base64.RawStdEncoding.DecodeString(t)
	if err != nil || len(decoded) == 0 {
		return nil, false
	}
	return decoded, true
}

// nodeBuffer is the JSON form of a serialized Node.js Buffer.
type nodeBuffer struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// decodeStoredID interprets a stored credentialID value of unknown shape. For
// strings it returns the text, for byte arrays and serialized buffers the
// bytes.
func decodeStoredID(raw json.RawMessage) (shape string, text string, data []byte) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ShapeNull, "", nil
	}

	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return ShapeUnknown, "", nil
		}
		return ShapeString, text, nil
	case '[':
		var ints []int
		if err := json.Unmarshal(trimmed, &ints); err != nil {
			return ShapeUnknown, "", nil
		}
		b, ok := intsToBytes(ints)
		if !ok {
			return ShapeUnknown, "", nil
		}
		return ShapeBuffer, "", b
	case '{':
		var buf nodeBuffer
		if err := json.Unmarshal(trimmed, &buf); err != nil || buf.Type != "Buffer" {
			return ShapeObject, "", nil
		}
		b, ok := intsToBytes(buf.Data)
		if !ok {
			return ShapeObject, "", nil
		}
		return ShapeBuffer, "", b
	case 't', 'f':
		return ShapeBoolean, "", nil
	default:
		return ShapeNumber, "", nil
	}
}

func intsToBytes(ints []int) ([]byte, bool) {
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, false
		}
		b[i] = byte(v)
	}
	return b, true
}

// normalizeStoredID returns the canonical form of a stored credentialID, or ""
// when the value cannot be recovered.
func normalizeStoredID(raw json.RawMessage) string {
	shape, text, data := decodeStoredID(raw)
	switch shape {
	case ShapeString:
		return NormalizeString(text)
	case ShapeBuffer:
		return NormalizeBytes(data)
	}
	return ""
}

// CredentialIDInfo describes a stored credential id.
type CredentialIDInfo struct {
	IsValid bool     `json:"isValid"`
	Type    string   `json:"type"`
	Length  int      `json:"length"`
	Format  string   `json:"format"`
	Issues  []string `json:"issues"`
}

// Inspect reports the shape and canonicality of a stored credentialID value
// without modifying it.
func Inspect(raw json.RawMessage) CredentialIDInfo {
	shape, text, data := decodeStoredID(raw)
	info := CredentialIDInfo{
		Type:   shape,
		Format: FormatUnknown,
		Issues: []string{},
	}

	switch shape {
	case ShapeNull:
		info.Issues = append(info.Issues, "credential id is empty")
		return info
	case ShapeString:
		if text == "" {
			info.Issues = append(info.Issues, "credential id is empty")
			return info
		}
		info.Length = len(text)
		if base64URLPattern.MatchString(text) {
			info.Format = FormatBase64URL
			if !IsValid(text) {
				info.Issues = append(info.Issues, "does not decode to any bytes")
			}
		} else {
			info.Format = FormatOther
		}
	case ShapeBuffer:
		info.Format = FormatBuffer
		info.Length = len(data)
	}

	if info.Format != FormatBase64URL {
		info.Issues = append(info.Issues, "not in base64url format")
	}
	if info.Length == 0 {
		info.Issues = append(info.Issues, "length is zero")
	}

	info.IsValid = len(info.Issues) == 0
	return info
}

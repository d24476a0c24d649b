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

package storage

import (
	"context"
	"net/url"
	"strings"
)

const (
	userPrefix     = "users/"
	userSuffix     = ".json"
	usernamePrefix = "usernames/"
)

// UserPath returns the storage path for the user record with the given ID.
// The path follows the convention: users/{id}.json
func UserPath(id string) string {
	return userPrefix + url.PathEscape(id) + userSuffix
}

// UsernamePath returns the storage path of the username index entry.
// The path follows the convention: usernames/{username}
func UsernamePath(username string) string {
	return usernamePrefix + url.PathEscape(username)
}

// ListUserIDs retrieves all user IDs from the backend by listing the "users/"
// prefix and stripping the path decoration.
func ListUserIDs(ctx context.Context, backend Backend) ([]string, error) {
	keys, err := backend.List(ctx, userPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, userSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, userPrefix), userSuffix)
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

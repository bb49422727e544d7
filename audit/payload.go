// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"encoding/json"

	maerr "maestro/platform/shared/errors"
)

// encodePayload serializes a payload map to a JSON string for storage
// in a single text column, since Cassandra has no native arbitrary-map
// type that survives schema evolution as cleanly as JSON text does.
func encodePayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", maerr.Wrap(maerr.KindInternal, err, "failed to encode audit payload")
	}
	return string(b), nil
}

// decodePayload is the inverse of encodePayload. A malformed or empty
// string decodes to nil rather than erroring, since Scan's caller has
// no good way to recover from one bad row mid-stream.
func decodePayload(s string) map[string]any {
	if s == "" {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil
	}
	return payload
}

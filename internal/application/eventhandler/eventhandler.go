// Package eventhandler reacts to SkillPath domain events after the command
// that raised them has returned. Handlers never fail the publisher: they log
// and move on.
package eventhandler

import (
	"encoding/json"
	"fmt"

	"github.com/skillpath/skillpath-hub/internal/domain/shared"
)

// Events that crossed the Redis fan-out arrive as decoded JSON, so handlers
// read their fields from Payload instead of asserting concrete types.

func payloadString(e shared.Event, key string) string {
	s, _ := e.Payload()[key].(string)
	return s
}

func payloadBool(e shared.Event, key string) bool {
	b, _ := e.Payload()[key].(bool)
	return b
}

func payloadInt(e shared.Event, key string) (int, error) {
	switch v := e.Payload()[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("payload field %q: unexpected %T", key, v)
	}
}

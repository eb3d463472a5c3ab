package wled

import (
	"encoding/json"
	"fmt"
)

// QueryLEDs is the single byte that asks the controller for its live LED colours.
var QueryLEDs = []byte("l")

const (
	structuredReply byte = '['
	separator       byte = ','
)

// Querier sends a request and collects the reply until the link goes quiet.
type Querier interface {
	Query(req []byte) ([]byte, error)
}

// Discover asks the controller how many LEDs it drives.
func Discover(q Querier) (int, error) {
	reply, err := q.Query(QueryLEDs)
	if err != nil {
		return 0, fmt.Errorf("led count query: %w", err)
	}
	return ParseLEDCount(reply), nil
}

// ParseLEDCount infers the LED count from a query reply. A JSON array reply
// counts its elements; any other non-empty reply counts separators plus one;
// an empty reply means zero.
func ParseLEDCount(reply []byte) int {
	if len(reply) == 0 {
		return 0
	}
	if reply[0] == structuredReply {
		var items []json.RawMessage
		if err := json.Unmarshal(reply, &items); err == nil {
			return len(items)
		}
	}
	count := 1
	for _, b := range reply {
		if b == separator {
			count++
		}
	}
	return count
}

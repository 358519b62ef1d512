// Package search maintains a full-text index of stored messages and
// answers /find queries against it.
package search

import (
	"strconv"
	"strings"

	"chat-relay/domain"
)

const defaultLimit = 10

// Query is the parsed form of a /find request. It decouples the raw chat
// input from the index engine requirements.
type Query struct {
	RawInput string
	Terms    string
	RoomID   domain.RoomID
	Limit    int
}

// ParseQuery extracts command-line style arguments from a raw chat input.
// Example: /find invoice --room 6f1b --limit 5
func ParseQuery(input string) Query {
	query := Query{RawInput: input, Limit: defaultLimit}

	parts := strings.Fields(input)
	var terms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			val := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "room":
				query.RoomID = domain.RoomID(val)
			case "limit":
				if n, err := strconv.Atoi(val); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++
			continue
		}
		if !strings.HasPrefix(part, "/") {
			terms = append(terms, part)
		}
	}
	query.Terms = strings.Join(terms, " ")
	return query
}

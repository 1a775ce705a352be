package library

import (
	"fmt"
	"strconv"
)

// NextQuoteID returns the id for a new quote: one past the largest numeric
// id in quotes, but never below startingID. Ids are zero-padded to at
// least three digits. Non-numeric ids are ignored.
func NextQuoteID(quotes []Quote, startingID int) string {
	next := startingID
	for _, q := range quotes {
		n, err := strconv.Atoi(q.ID)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%03d", next)
}

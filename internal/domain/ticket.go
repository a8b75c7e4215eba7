package domain

import "strings"

// Ticket is one block of the dump, from a key match up to the next one.
type Ticket struct {
	Key    string
	Text   string
	Offset int // byte offset of the key in a dump; result index for a JQL search
}

// Chunk is a batch of tickets sent to the model in a single call.
type Chunk struct {
	Index   int
	Tickets []Ticket
	Body    string
}

func (c Chunk) Keys() []string {
	keys := make([]string, 0, len(c.Tickets))
	for _, t := range c.Tickets {
		keys = append(keys, t.Key)
	}
	return keys
}

// TicketText returns the source block for key, matched case-insensitively.
func (c Chunk) TicketText(key string) (string, bool) {
	key = strings.TrimSpace(key)
	for _, t := range c.Tickets {
		if strings.EqualFold(t.Key, key) {
			return t.Text, true
		}
	}
	return "", false
}

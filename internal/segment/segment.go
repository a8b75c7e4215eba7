// Package segment cuts a ticket dump into per-ticket blocks and batches the
// blocks into chunks for the model.
package segment

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"jiratriage/internal/domain"
)

const (
	ChunkSeparator   = "\n\n---\n\n"
	defaultChunkSize = 5
)

type Segmenter struct {
	pattern *regexp.Regexp
}

// New compiles keyPattern. With lineStartOnly the key must open a line
// (leading blanks allowed), so references inside a ticket body such as
// "relates to ABC-12" do not start a new ticket.
func New(keyPattern string, lineStartOnly bool) (*Segmenter, error) {
	expr := "(" + keyPattern + ")"
	if lineStartOnly {
		expr = `(?m)^[ \t]*` + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, eris.Wrapf(err, "segment: compile ticket key pattern %q", keyPattern)
	}
	return &Segmenter{pattern: re}, nil
}

// Split returns one ticket per key match. Text before the first match is
// discarded; each ticket runs to the next match or the end of text.
func (s *Segmenter) Split(text string) []domain.Ticket {
	matches := s.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	tickets := make([]domain.Ticket, 0, len(matches))
	for i, m := range matches {
		start := m[2]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][2]
		}
		block := strings.TrimSpace(text[start:end])
		if block == "" {
			continue
		}
		tickets = append(tickets, domain.Ticket{
			Key:    text[m[2]:m[3]],
			Text:   block,
			Offset: start,
		})
	}
	return tickets
}

// Chunk batches tickets in order, size per chunk; the last may be short.
func Chunk(tickets []domain.Ticket, size int) []domain.Chunk {
	if size < 1 {
		size = defaultChunkSize
	}

	var chunks []domain.Chunk
	for start := 0; start < len(tickets); start += size {
		end := start + size
		if end > len(tickets) {
			end = len(tickets)
		}
		batch := tickets[start:end]
		texts := make([]string, 0, len(batch))
		for _, t := range batch {
			texts = append(texts, t.Text)
		}
		chunks = append(chunks, domain.Chunk{
			Index:   len(chunks),
			Tickets: batch,
			Body:    strings.Join(texts, ChunkSeparator),
		})
	}
	return chunks
}

package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratriage/internal/domain"
)

func TestIsolateRows(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "no rows", in: "I could not find any tickets.", want: ""},
		{
			name: "fenced with chatter",
			in:   "Here you go:\n```html\n<tr><td>A-1</td></tr>\n<TR><td>A-2</td></TR>\n```\nLet me know!",
			want: "<tr><td>A-1</td></tr>\n<TR><td>A-2</td></TR>",
		},
		{name: "truncated", in: "x <tr><td>A-1</td>", want: "<tr><td>A-1</td>"},
		{name: "spaced close tag", in: "<tr><td>A-1</td></tr >\nbye", want: "<tr><td>A-1</td></tr >"},
		{
			name: "case folding changes byte length",
			in:   "<tr><td>A-1</td><td>" + strings.Repeat("Ⱥ", 11) + "</td></tr> tail",
			want: "<tr><td>A-1</td><td>" + strings.Repeat("Ⱥ", 11) + "</td></tr>",
		},
		{
			name: "case folding shrinks bytes",
			in:   "İİİİ <TR><td>İİİİ \u212a</td></TR> \u212a",
			want: "<TR><td>İİİİ \u212a</td></TR>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsolateRows(tt.in))
		})
	}
}

func TestParseHTMLRows(t *testing.T) {
	reply := "Sure! Here are the rows.\n```html\n" + `<tr>
  <td>IOS-101</td>
  <td>In Progress</td>
  <td>Solvable Bug</td>
  <td>App crashes when
      opening settings</td>
  <td>Stack trace points to a nil <b>delegate</b></td>
  <td>Guard the delegate call</td>
  <td></td>
  <td><a href="https://jira.example.com/browse/IOS-101">Open</a></td>
</tr>
<tr>
  <td>IOS-102</td>
  <td>Open</td>
  <td>needs more info</td>
  <td>Login fails &amp; spins</td>
  <td>No device info</td>
  <td></td>
  <td>iOS version<br>device model</td>
  <td><a href="LINK">Open</a></td>
</tr>` + "\n```\nHope this helps."

	rows := ParseHTMLRows(reply)
	require.Len(t, rows, 2)

	assert.Equal(t, domain.Analysis{
		TicketKey:    "IOS-101",
		Status:       "In Progress",
		Category:     domain.CategorySolvableBug,
		Summary:      "App crashes when opening settings",
		Reasoning:    "Stack trace points to a nil delegate",
		SuggestedFix: "Guard the delegate call",
		Link:         "https://jira.example.com/browse/IOS-101",
	}, rows[0])

	assert.Equal(t, "IOS-102", rows[1].TicketKey)
	assert.Equal(t, domain.CategoryNeedsMoreDetails, rows[1].Category)
	assert.Equal(t, "Login fails & spins", rows[1].Summary)
	assert.Equal(t, "iOS version device model", rows[1].MissingDetails)
	assert.Empty(t, rows[1].Link)
}

func TestParseHTMLRowsSkipsHeadersAndShortRows(t *testing.T) {
	reply := `<tr><th>Ticket</th><th>Status</th></tr>
<tr><td>WEB-7</td><td>Done</td></tr>
<tr></tr>`

	rows := ParseHTMLRows(reply)
	require.Len(t, rows, 1)
	assert.Equal(t, "WEB-7", rows[0].TicketKey)
	assert.Equal(t, "Done", rows[0].Status)
	assert.Equal(t, domain.CategoryNeedsMoreDetails, rows[0].Category)
}

func TestParseHTMLRowsBareURLLink(t *testing.T) {
	rows := ParseHTMLRows(`<tr><td></td><td></td><td>Not a Bug</td><td></td><td></td><td></td><td></td><td>https://jira/browse/X-1</td></tr>`)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.UnknownTicketKey, rows[0].TicketKey)
	assert.Equal(t, domain.CategoryNotABug, rows[0].Category)
	assert.Equal(t, "https://jira/browse/X-1", rows[0].Link)
}

func TestParseHTMLRowsGarbage(t *testing.T) {
	inputs := []string{
		"",
		"no table here",
		"<tr",
		"</tr><tr>",
		"<tr><td><td><td></tr></td>",
		"<<<>>><tr>\x00\xff</tr>",
		"<table><tr><td>nested<table><tr><td>X-1</td></tr></table></td></tr>",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { ParseHTMLRows(in) }, "input %q", in)
	}
	assert.Empty(t, ParseHTMLRows("no table here"))
}

func TestParseHTMLRowsNonASCIICells(t *testing.T) {
	reply := "<tr><td>IOS-1</td><td>Open</td><td>Solvable Bug</td><td>" +
		strings.Repeat("Ⱥ", 11) + "</td></tr>\n<tr><td>IOS-2</td><td>İstanbul K</td></tr>"

	got := ParseHTMLRows(reply)
	require.Len(t, got, 2)
	assert.Equal(t, "IOS-1", got[0].TicketKey)
	assert.Equal(t, strings.Repeat("Ⱥ", 11), got[0].Summary)
	assert.Equal(t, "IOS-2", got[1].TicketKey)
	assert.Equal(t, "İstanbul K", got[1].Status)
}

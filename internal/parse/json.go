package parse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"jiratriage/internal/domain"
)

// jsonFieldAliases lists the accepted keys per field, canonical key first.
var jsonFieldAliases = map[string][]string{
	"ticket_key":      {"ticket_key", "key", "ticket"},
	"status":          {"status"},
	"category":        {"category"},
	"summary":         {"summary"},
	"reasoning":       {"reasoning"},
	"suggested_fix":   {"suggested_fix", "fix"},
	"missing_details": {"missing_details", "missing"},
	"link":            {"link", "url"},
}

// ParseJSONReply decodes a JSON-format reply. It accepts an array of ticket
// objects, a single object, or {"tickets": [...]}, with or without code
// fences. Missing keys fall back to "UNKNOWN" for the ticket key, "Needs More
// Details" for the category and "" elsewhere.
func ParseJSONReply(text string) ([]domain.Analysis, error) {
	objects, err := locateJSON(text)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Analysis, 0, len(objects))
	for _, obj := range objects {
		out = append(out, withDefaults(domain.Analysis{
			TicketKey:      field(obj, "ticket_key"),
			Status:         field(obj, "status"),
			Category:       field(obj, "category"),
			Summary:        field(obj, "summary"),
			Reasoning:      field(obj, "reasoning"),
			SuggestedFix:   field(obj, "suggested_fix"),
			MissingDetails: field(obj, "missing_details"),
			Link:           field(obj, "link"),
		}))
	}
	return out, nil
}

// locateJSON tries every '[' or '{' in text as the start of the payload and
// decodes one value from there, so brackets in prose before or after it and
// closing fences do not matter. The first candidate holding ticket objects
// wins; a candidate that decodes to no objects is kept as a fallback.
func locateJSON(text string) ([]map[string]json.RawMessage, error) {
	var (
		fallback []map[string]json.RawMessage
		found    bool
		lastErr  error
	)
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			lastErr = eris.Wrap(err, "parse: decode json reply")
			continue
		}
		objects, err := payloadObjects(raw)
		if err != nil {
			lastErr = err
			continue
		}
		if len(objects) > 0 {
			return objects, nil
		}
		if !found {
			fallback, found = objects, true
		}
		// Skip past the decoded value so its inner brackets are not retried.
		i += len(raw) - 1
	}
	if found {
		return fallback, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, eris.New("parse: no JSON found in reply")
}

func payloadObjects(raw json.RawMessage) ([]map[string]json.RawMessage, error) {
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, eris.Wrap(err, "parse: decode json reply")
		}
		return decodeObjects(items), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, eris.Wrap(err, "parse: decode json reply")
	}
	if tickets, ok := obj["tickets"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(tickets, &items); err != nil {
			return nil, eris.Wrap(err, "parse: decode tickets field")
		}
		return decodeObjects(items), nil
	}
	return []map[string]json.RawMessage{obj}, nil
}

// decodeObjects keeps the elements that are JSON objects.
func decodeObjects(items []json.RawMessage) []map[string]json.RawMessage {
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func field(obj map[string]json.RawMessage, name string) string {
	for _, key := range jsonFieldAliases[name] {
		if raw, ok := obj[key]; ok {
			return coerceString(raw)
		}
	}
	return ""
}

// coerceString renders strings, numbers, booleans and arrays of those as
// text. Arrays are joined with "; ". Objects and null become "".
func coerceString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}

	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		return strconv.FormatBool(asBool)
	}

	var asSlice []json.RawMessage
	if err := json.Unmarshal(raw, &asSlice); err == nil {
		var parts []string
		for _, v := range asSlice {
			if s := coerceString(v); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

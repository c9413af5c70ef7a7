package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleRunes = 80
	MaxTags       = 5
)

// ErrMalformedOutput marks extraction output that is not the expected JSON object.
var ErrMalformedOutput = errors.New("malformed extraction output")

type NewEntry struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

type UpdatedEntry struct {
	Match string   `json:"match"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

type DeletedEntry struct {
	Match string `json:"match"`
}

type Extraction struct {
	New     []NewEntry     `json:"new"`
	Updated []UpdatedEntry `json:"updated"`
	Deleted []DeletedEntry `json:"deleted"`
}

// Parse decodes the model's reply. Surrounding whitespace and a single
// enclosing code fence are tolerated; anything else that is not a JSON object
// is rejected.
func Parse(raw string) (Extraction, error) {
	text := stripFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(text, "{") {
		return Extraction{}, fmt.Errorf("%w: not a JSON object", ErrMalformedOutput)
	}
	var out Extraction
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	inner := strings.TrimSuffix(text, "```")
	if newline := strings.IndexByte(inner, '\n'); newline >= 0 {
		inner = inner[newline+1:]
	} else {
		inner = strings.TrimPrefix(inner, "```")
	}
	return strings.TrimSpace(inner)
}

// normalizeTitle trims and caps a title at MaxTitleRunes runes.
func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= MaxTitleRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:MaxTitleRunes]))
}

// normalizeTags lowercases, trims, drops blanks and duplicates, and keeps at
// most MaxTags names.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

// Package export renders project notes as markdown or JSON bundles.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a query value to a Format; empty means markdown.
func ParseFormat(value string) (Format, error) {
	switch value {
	case "", "md", string(FormatMarkdown):
		return FormatMarkdown, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Note is one note as it appears in an export.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Project is the export bundle for a project.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ExportedAt  time.Time `json:"exportedAt"`
	Notes       []Note    `json:"notes"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var ErrUnsupportedFormat = errors.New("unsupported export format")

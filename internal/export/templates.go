package export

import (
	"bytes"
	"embed"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("export").Funcs(template.FuncMap{
	"quote": strconv.Quote,
	"join":  strings.Join,
	"formatDate": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).ParseFS(templateFS, "templates/*.md.tmpl"))

// NoteMarkdown renders a single note with a front-matter header.
func NoteMarkdown(note Note) ([]byte, error) {
	if note.Tags == nil {
		note.Tags = []string{}
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "note.md.tmpl", note); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProjectMarkdown renders every note of a project into one document.
func ProjectMarkdown(project Project) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "project.md.tmpl", project); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Slug turns a title into a lowercase file-name stem.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

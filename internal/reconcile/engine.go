// Package reconcile turns a chat turn into note proposals by asking the
// completion endpoint for a structured diff against the accepted notes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nexus/api/internal/llm"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
)

type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Source reads the state the prompt is built from.
type Source interface {
	Transcript(ctx context.Context, chatID string) ([]llm.Message, error)
	AcceptedNotes(ctx context.Context, userID, projectID string) ([]NoteContext, error)
}

type ProposalInput struct {
	Kind  Kind
	Match string
	Title string
	Body  string
	Tags  []string
}

// Sink receives the engine's output. Creates and updates are queued for
// review; deletes are applied immediately.
type Sink interface {
	EnqueueProposal(ctx context.Context, userID, projectID string, input ProposalInput) (string, error)
	RemoveNoteByTitle(ctx context.Context, userID, projectID, title string) (bool, error)
}

// Record is one archived extraction attempt.
type Record struct {
	ProjectID  string    `json:"projectId"`
	ChatID     string    `json:"chatId"`
	UserID     string    `json:"userId"`
	Raw        string    `json:"raw"`
	ParseError string    `json:"parseError,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Archiver interface {
	Store(ctx context.Context, record Record) error
}

type Options struct {
	Temperature float64
	Archiver    Archiver
}

type Turn struct {
	UserID        string
	ProjectID     string
	ChatID        string
	LatestMessage string
}

type Result struct {
	ProposalIDs []string
	Created     int
	Updated     int
	Deleted     int
	Missing     int
	Skipped     int
}

type Engine struct {
	completer   Completer
	source      Source
	sink        Sink
	archiver    Archiver
	temperature float64
}

func New(completer Completer, source Source, sink Sink, opts Options) *Engine {
	return &Engine{
		completer:   completer,
		source:      source,
		sink:        sink,
		archiver:    opts.Archiver,
		temperature: opts.Temperature,
	}
}

// Run performs one reconciliation cycle. A returned error means the cycle was
// abandoned; entries already enqueued before a sink failure stay enqueued.
func (e *Engine) Run(ctx context.Context, turn Turn) (Result, error) {
	transcript, err := e.source.Transcript(ctx, turn.ChatID)
	if err != nil {
		return Result{}, fmt.Errorf("load transcript: %w", err)
	}
	notes, err := e.source.AcceptedNotes(ctx, turn.UserID, turn.ProjectID)
	if err != nil {
		return Result{}, fmt.Errorf("load accepted notes: %w", err)
	}
	messages, err := BuildMessages(transcript, notes, turn.LatestMessage)
	if err != nil {
		return Result{}, err
	}

	raw, err := e.completer.Complete(ctx, messages, e.temperature)
	if err != nil {
		return Result{}, fmt.Errorf("extraction call: %w", err)
	}

	extraction, parseErr := Parse(raw)
	e.archive(ctx, turn, raw, parseErr)
	if parseErr != nil {
		return Result{}, parseErr
	}
	return e.apply(ctx, turn, extraction)
}

func (e *Engine) apply(ctx context.Context, turn Turn, extraction Extraction) (Result, error) {
	var result Result

	for _, entry := range extraction.New {
		title := normalizeTitle(entry.Title)
		if title == "" {
			result.Skipped++
			continue
		}
		id, err := e.sink.EnqueueProposal(ctx, turn.UserID, turn.ProjectID, ProposalInput{
			Kind:  KindCreate,
			Title: title,
			Body:  strings.TrimSpace(entry.Body),
			Tags:  normalizeTags(entry.Tags),
		})
		if err != nil {
			return result, fmt.Errorf("enqueue create %q: %w", title, err)
		}
		result.ProposalIDs = append(result.ProposalIDs, id)
		result.Created++
	}

	for _, entry := range extraction.Updated {
		match := strings.TrimSpace(entry.Match)
		if match == "" {
			result.Skipped++
			continue
		}
		id, err := e.sink.EnqueueProposal(ctx, turn.UserID, turn.ProjectID, ProposalInput{
			Kind:  KindUpdate,
			Match: match,
			Title: normalizeTitle(entry.Title),
			Body:  strings.TrimSpace(entry.Body),
			Tags:  normalizeTags(entry.Tags),
		})
		if err != nil {
			return result, fmt.Errorf("enqueue update %q: %w", match, err)
		}
		result.ProposalIDs = append(result.ProposalIDs, id)
		result.Updated++
	}

	for _, entry := range extraction.Deleted {
		match := strings.TrimSpace(entry.Match)
		if match == "" {
			result.Skipped++
			continue
		}
		removed, err := e.sink.RemoveNoteByTitle(ctx, turn.UserID, turn.ProjectID, match)
		if err != nil {
			return result, fmt.Errorf("remove note %q: %w", match, err)
		}
		if removed {
			result.Deleted++
		} else {
			result.Missing++
		}
	}

	return result, nil
}

func (e *Engine) archive(ctx context.Context, turn Turn, raw string, parseErr error) {
	if e.archiver == nil {
		return
	}
	record := Record{
		ProjectID: turn.ProjectID,
		ChatID:    turn.ChatID,
		UserID:    turn.UserID,
		Raw:       raw,
		CreatedAt: time.Now().UTC(),
	}
	if parseErr != nil {
		record.ParseError = parseErr.Error()
	}
	if err := e.archiver.Store(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("reconcile: archive extraction chat=%s: %v", turn.ChatID, err)
	}
}

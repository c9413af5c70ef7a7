package notelog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"nexus/api/internal/export"
)

func TestRecordCommitsAndHistory(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	notes := []export.Note{
		{ID: "note_a", Title: "Project deadline", Body: "Currently set to Q2", Tags: []string{"timeline"}},
		{ID: "note_b", Title: "Owners", Body: "Avery"},
	}
	first, err := svc.Record("project_1", notes, "Avery Stone", "Create notes")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if len(first.Files) != 2 {
		t.Fatalf("expected two files in first commit, got %v", first.Files)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "project_1", "project-deadline.md")); err != nil {
		t.Fatalf("note file missing: %v", err)
	}

	notes[0].Body = "Deadline updated to Q3."
	second, err := svc.Record("project_1", notes[:1], "Avery Stone", "Apply update proposal")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if second.Hash == "" || second.Hash == first.Hash {
		t.Fatalf("expected a new commit, got %+v", second)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "project_1", "owners.md")); !os.IsNotExist(err) {
		t.Fatalf("expected owners.md removed, stat err = %v", err)
	}

	history, err := svc.History("project_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
	if history[0].Message != "Apply update proposal" || history[0].Author != "Avery Stone" {
		t.Fatalf("unexpected newest commit %+v", history[0])
	}

	limited, err := svc.History("project_1", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one commit with limit, got %d (%v)", len(limited), err)
	}

	files, err := svc.Snapshot("project_1", first.Hash)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(files) != 2 || files[0].Name != "owners.md" {
		t.Fatalf("unexpected snapshot %+v", files)
	}
	if !strings.Contains(files[1].Content, "Currently set to Q2") {
		t.Fatalf("snapshot should hold the old body, got %q", files[1].Content)
	}
}

func TestRecordWithoutChangesIsNoop(t *testing.T) {
	svc := New(t.TempDir())
	notes := []export.Note{{ID: "note_a", Title: "A", Body: "b"}}
	if _, err := svc.Record("p", notes, "Avery", "first"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	again, err := svc.Record("p", notes, "Avery", "second")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if again.Hash != "" {
		t.Fatalf("expected no commit, got %+v", again)
	}
	history, _ := svc.History("p", 0)
	if len(history) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(history))
	}
}

func TestHistoryOfUnknownProjectIsEmpty(t *testing.T) {
	history, err := New(t.TempDir()).History("nobody", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %#v", history)
	}
}

func TestFileNamesDisambiguateSlugCollisions(t *testing.T) {
	names := fileNames([]export.Note{
		{ID: "note_b", Title: "Launch?"},
		{ID: "note_a", Title: "Launch!"},
	})
	if names["launch.md"].ID != "note_a" || names["launch-2.md"].ID != "note_b" {
		t.Fatalf("unexpected names %+v", names)
	}
}

func TestConcurrentRecordsSerialize(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			notes := []export.Note{{ID: "note_a", Title: "Counter", Body: strings.Repeat("x", i+1)}}
			if _, err := svc.Record("p", notes, "Avery", "update"); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}(i)
	}
	wg.Wait()
	history, err := svc.History("p", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 commits, got %d", len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Avery Stone-Smith"); got != "Avery.Stone.Smith" {
		t.Fatalf("unexpected %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("unexpected %q", got)
	}
}

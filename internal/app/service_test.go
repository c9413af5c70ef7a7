package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nexus/api/internal/chatlock"
	"nexus/api/internal/config"
	"nexus/api/internal/llm"
	"nexus/api/internal/store"
)

// scriptedCompleter answers chat replies and extraction calls separately,
// telling them apart by temperature.
type scriptedCompleter struct {
	mu         sync.Mutex
	reply      string
	replyErr   error
	extraction string
	calls      [][]llm.Message
}

func (c *scriptedCompleter) Complete(_ context.Context, messages []llm.Message, temperature float64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, messages)
	if temperature == testConfig().ExtractTemperature {
		return c.extraction, nil
	}
	return c.reply, c.replyErr
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		AccessTTL:          time.Hour,
		LLMTimeout:         5 * time.Second,
		ReplyTemperature:   0.7,
		ExtractTemperature: 0.2,
	}
}

func newTestService(t *testing.T, deps Deps) *Service {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DialectSQLite, filepath.Join(t.TempDir(), "nexus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, store.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(testConfig(), store.NewSQLStore(db, store.DialectSQLite), deps)
}

type fixture struct {
	service *Service
	owner   store.User
	project ProjectView
	chat    ChatView
}

func newFixture(t *testing.T, deps Deps) fixture {
	t.Helper()
	ctx := context.Background()
	svc := newTestService(t, deps)
	owner, err := svc.UserByName(ctx, "Avery")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	project, err := svc.CreateProject(ctx, owner.ID, "Apollo Launch", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := svc.CreateNote(ctx, owner.ID, project.ID, NoteInput{
		Title: "Project deadline",
		Body:  "Currently set to Q2",
		Tags:  []string{"timeline", "deadline"},
	}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	chat, err := svc.CreateChat(ctx, owner.ID, project.ID, "Planning")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return fixture{service: svc, owner: owner, project: project, chat: chat}
}

func requireDomainError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %v", code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
}

func tagNames(tags []TagView) map[string]bool {
	names := make(map[string]bool, len(tags))
	for _, tag := range tags {
		names[tag.Name] = true
	}
	return names
}

func TestSendMessageQueuesUpdateAndApplyRewritesNote(t *testing.T) {
	completer := &scriptedCompleter{
		reply:      "Noted, the deadline is now Q3.",
		extraction: `{"new":[],"updated":[{"match":"Project deadline","title":"Project deadline","body":"Deadline updated to Q3.","tags":["timeline","deadline"]}],"deleted":[]}`,
	}
	f := newFixture(t, Deps{Completer: completer})
	ctx := context.Background()

	reply, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "Deadline moved to Q3.")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply.Role != store.MessageRoleAssistant || reply.Content != completer.reply {
		t.Fatalf("unexpected reply %+v", reply)
	}

	messages, err := f.service.ListMessages(ctx, f.owner.ID, f.chat.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "Deadline moved to Q3." {
		t.Fatalf("unexpected transcript %+v", messages)
	}

	proposals, err := f.service.ListProposals(ctx, f.owner.ID, f.project.ID)
	if err != nil {
		t.Fatalf("list proposals: %v", err)
	}
	if len(proposals) != 1 || proposals[0].Kind != "update" || proposals[0].Match != "Project deadline" {
		t.Fatalf("unexpected proposals %+v", proposals)
	}

	notes, _ := f.service.ListNotes(ctx, f.owner.ID, f.project.ID, store.NoteStatusAccepted)
	if len(notes) != 1 || notes[0].Body != "Currently set to Q2" {
		t.Fatalf("note must not change before apply: %+v", notes)
	}

	result, err := f.service.ApplyProposal(ctx, f.owner.ID, proposals[0].ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Matched || result.Note == nil || result.Note.Body != "Deadline updated to Q3." {
		t.Fatalf("unexpected apply result %+v", result)
	}
	tags := tagNames(result.Note.Tags)
	if len(tags) != 2 || !tags["timeline"] || !tags["deadline"] {
		t.Fatalf("unexpected tags %+v", result.Note.Tags)
	}

	remaining, _ := f.service.ListProposals(ctx, f.owner.ID, f.project.ID)
	if len(remaining) != 0 {
		t.Fatalf("applied proposal should leave the queue, got %+v", remaining)
	}
}

func TestSendMessageRollsBackUserMessageWhenCompletionFails(t *testing.T) {
	completer := &scriptedCompleter{replyErr: &llm.StatusError{StatusCode: 500, Body: "upstream"}}
	f := newFixture(t, Deps{Completer: completer})
	ctx := context.Background()

	_, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "hello?")
	requireDomainError(t, err, 502, "AI_RESPONSE_FAILED")

	messages, _ := f.service.ListMessages(ctx, f.owner.ID, f.chat.ID)
	if len(messages) != 0 {
		t.Fatalf("user message should be rolled back, got %+v", messages)
	}
	if len(completer.calls) != 1 {
		t.Fatalf("extraction must not run after a failed reply, calls=%d", len(completer.calls))
	}
}

func TestSendMessageWithoutCompleterFails(t *testing.T) {
	f := newFixture(t, Deps{})
	_, err := f.service.SendMessage(context.Background(), f.owner.ID, f.chat.ID, "hi")
	requireDomainError(t, err, 502, "AI_RESPONSE_FAILED")
}

func TestSendMessageMalformedExtractionKeepsReply(t *testing.T) {
	completer := &scriptedCompleter{
		reply:      "Sure.",
		extraction: "Sure! Here are your notes: deadline is Q3.",
	}
	f := newFixture(t, Deps{Completer: completer})
	ctx := context.Background()

	if _, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "Deadline moved to Q3."); err != nil {
		t.Fatalf("send message: %v", err)
	}
	messages, _ := f.service.ListMessages(ctx, f.owner.ID, f.chat.ID)
	if len(messages) != 2 {
		t.Fatalf("expected both messages to persist, got %d", len(messages))
	}
	proposals, _ := f.service.ListProposals(ctx, f.owner.ID, f.project.ID)
	if len(proposals) != 0 {
		t.Fatalf("malformed extraction must not enqueue anything, got %+v", proposals)
	}
}

func TestSendMessageExtractionPromptCarriesNotes(t *testing.T) {
	completer := &scriptedCompleter{reply: "ok", extraction: `{}`}
	f := newFixture(t, Deps{Completer: completer})

	if _, err := f.service.SendMessage(context.Background(), f.owner.ID, f.chat.ID, "Deadline moved to Q3."); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(completer.calls) != 2 {
		t.Fatalf("expected reply and extraction calls, got %d", len(completer.calls))
	}
	extraction := completer.calls[1]
	last := extraction[len(extraction)-1]
	if last.Role != llm.RoleUser || last.Content != "Deadline moved to Q3." {
		t.Fatalf("latest message must close the prompt, got %+v", last)
	}
	notes := extraction[len(extraction)-2].Content
	want := `Existing notes (JSON): [{"title":"Project deadline","body":"Currently set to Q2","tags":`
	if len(notes) < len(want) || notes[:len(want)] != want {
		t.Fatalf("unexpected notes context %q", notes)
	}
}

func TestSendMessageDeletesAreImmediateAndMissingMatchIsNoop(t *testing.T) {
	completer := &scriptedCompleter{
		reply:      "Dropping it.",
		extraction: `{"deleted":[{"match":"Ghost note"},{"match":"Project deadline"}]}`,
	}
	f := newFixture(t, Deps{Completer: completer})
	ctx := context.Background()

	if _, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "Forget the deadline."); err != nil {
		t.Fatalf("send message: %v", err)
	}
	notes, _ := f.service.ListNotes(ctx, f.owner.ID, f.project.ID, "")
	if len(notes) != 0 {
		t.Fatalf("matched delete should remove the note, got %+v", notes)
	}
	proposals, _ := f.service.ListProposals(ctx, f.owner.ID, f.project.ID)
	if len(proposals) != 0 {
		t.Fatalf("deletes are not queued, got %+v", proposals)
	}
}

// panickingCompleter replies normally but blows up on extraction.
type panickingCompleter struct{}

func (panickingCompleter) Complete(_ context.Context, _ []llm.Message, temperature float64) (string, error) {
	if temperature == testConfig().ExtractTemperature {
		panic("extraction exploded")
	}
	return "Sure.", nil
}

func TestSendMessageSurvivesPanickingReconciliation(t *testing.T) {
	f := newFixture(t, Deps{Completer: panickingCompleter{}})
	ctx := context.Background()

	reply, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "Move the deadline.")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Content != "Sure." {
		t.Fatalf("unexpected reply %+v", reply)
	}
	messages, _ := f.service.ListMessages(ctx, f.owner.ID, f.chat.ID)
	if len(messages) != 2 {
		t.Fatalf("both messages stay persisted, got %d", len(messages))
	}
}

func TestSendMessageRejectsBusyChat(t *testing.T) {
	locker := chatlock.NewLocalLock()
	f := newFixture(t, Deps{Completer: &scriptedCompleter{reply: "ok", extraction: "{}"}, Locker: locker})
	ctx := context.Background()

	release, err := locker.Acquire(ctx, f.chat.ID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, err = f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "second turn")
	requireDomainError(t, err, 409, "CHAT_BUSY")
	release()

	if _, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "second turn"); err != nil {
		t.Fatalf("send after release: %v", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, Deps{Completer: &scriptedCompleter{}})
	ctx := context.Background()

	_, err := f.service.SendMessage(ctx, "", f.chat.ID, "hi")
	requireDomainError(t, err, 401, "NOT_AUTHENTICATED")
	_, err = f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "   ")
	requireDomainError(t, err, 422, "VALIDATION_ERROR")
	_, err = f.service.SendMessage(ctx, f.owner.ID, "chat_missing", "hi")
	requireDomainError(t, err, 404, "NOT_FOUND")

	outsider, _ := f.service.UserByName(ctx, "Mallory")
	_, err = f.service.SendMessage(ctx, outsider.ID, f.chat.ID, "hi")
	requireDomainError(t, err, 403, "FORBIDDEN")
}

func TestQueriesAreEmptyForNonMembers(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()
	outsider, _ := f.service.UserByName(ctx, "Mallory")

	notes, err := f.service.ListNotes(ctx, outsider.ID, f.project.ID, "")
	if err != nil || len(notes) != 0 {
		t.Fatalf("expected no notes, got %+v (%v)", notes, err)
	}
	chats, _ := f.service.ListChats(ctx, outsider.ID, f.project.ID)
	if len(chats) != 0 {
		t.Fatalf("expected no chats, got %+v", chats)
	}
	graph, _ := f.service.Graph(ctx, outsider.ID, f.project.ID)
	if len(graph.Nodes) != 0 || len(graph.Edges) != 0 {
		t.Fatalf("expected empty graph, got %+v", graph)
	}
	project, _ := f.service.GetProject(ctx, outsider.ID, f.project.ID)
	if project != nil {
		t.Fatalf("project should be hidden, got %+v", project)
	}
	results, _ := f.service.SearchNotes(ctx, outsider.ID, f.project.ID, "deadline", 10, 0)
	if len(results.Results) != 0 {
		t.Fatalf("expected no search hits, got %+v", results)
	}
	anonymous, _ := f.service.ListNotes(ctx, "", f.project.ID, "")
	if len(anonymous) != 0 {
		t.Fatalf("anonymous callers see nothing, got %+v", anonymous)
	}
}

func TestApplyProposalGuards(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()

	proposal, err := f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{
		Kind:  "create",
		Title: "Launch checklist",
		Body:  "Fuel, crew, weather.",
		Tags:  []string{"launch"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := f.service.AddMember(ctx, f.owner.ID, f.project.ID, "Blair"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	member, _ := f.service.UserByName(ctx, "Blair")

	_, err = f.service.ApplyProposal(ctx, member.ID, proposal.ID)
	requireDomainError(t, err, 403, "FORBIDDEN")
	_, err = f.service.ApplyProposal(ctx, f.owner.ID, "prop_missing")
	requireDomainError(t, err, 404, "NOT_FOUND")
	_, err = f.service.ApplyProposal(ctx, "", proposal.ID)
	requireDomainError(t, err, 401, "NOT_AUTHENTICATED")

	memberProposals, _ := f.service.ListProposals(ctx, member.ID, f.project.ID)
	if len(memberProposals) != 0 {
		t.Fatalf("members only see their own proposals, got %+v", memberProposals)
	}

	result, err := f.service.ApplyProposal(ctx, f.owner.ID, proposal.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Note == nil || result.Note.Title != "Launch checklist" || !tagNames(result.Note.Tags)["launch"] {
		t.Fatalf("unexpected apply result %+v", result)
	}
}

func TestApplyCreateFoldsIntoExistingTitle(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()

	proposal, err := f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{
		Kind:  "create",
		Title: "Project deadline",
		Body:  "Deadline is Q3.",
		Tags:  []string{"q3"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	result, err := f.service.ApplyProposal(ctx, f.owner.ID, proposal.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Folded || result.Note.Body != "Deadline is Q3." {
		t.Fatalf("expected fold into existing note, got %+v", result)
	}
	notes, _ := f.service.ListNotes(ctx, f.owner.ID, f.project.ID, "")
	if len(notes) != 1 {
		t.Fatalf("titles stay unique, got %d notes", len(notes))
	}
	if tags := tagNames(notes[0].Tags); len(tags) != 3 || !tags["q3"] {
		t.Fatalf("unexpected tags %+v", notes[0].Tags)
	}
}

func TestApplyUpdateOntoTakenTitleKeepsTitleAndConsumesProposal(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()

	if _, err := f.service.CreateNote(ctx, f.owner.ID, f.project.ID, NoteInput{Title: "Launch window", Body: "July"}); err != nil {
		t.Fatalf("create note: %v", err)
	}
	proposal, err := f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{
		Kind:  "update",
		Match: "Launch window",
		Title: "Project deadline",
		Body:  "Opens in August.",
		Tags:  []string{"launch"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	result, err := f.service.ApplyProposal(ctx, f.owner.ID, proposal.ID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.RenameConflict || result.Note == nil || result.Note.Title != "Launch window" || result.Note.Body != "Opens in August." {
		t.Fatalf("unexpected apply result %+v", result)
	}
	if !tagNames(result.Note.Tags)["launch"] {
		t.Fatalf("tags should still move, got %+v", result.Note.Tags)
	}

	pending, _ := f.service.ListProposals(ctx, f.owner.ID, f.project.ID)
	if len(pending) != 0 {
		t.Fatalf("proposal must leave the queue, got %+v", pending)
	}
	_, err = f.service.ApplyProposal(ctx, f.owner.ID, proposal.ID)
	requireDomainError(t, err, 404, "NOT_FOUND")

	notes, _ := f.service.ListNotes(ctx, f.owner.ID, f.project.ID, "")
	for _, note := range notes {
		if note.Title == "Project deadline" && note.Body != "Currently set to Q2" {
			t.Fatalf("the note owning the title must be untouched, got %+v", note)
		}
	}
}

func TestRejectProposalDropsIt(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()

	proposal, err := f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{Kind: "delete", Match: "Project deadline"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.service.RejectProposal(ctx, f.owner.ID, proposal.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	notes, _ := f.service.ListNotes(ctx, f.owner.ID, f.project.ID, "")
	if len(notes) != 1 {
		t.Fatalf("rejecting must not touch notes, got %+v", notes)
	}
	_, err = f.service.ApplyProposal(ctx, f.owner.ID, proposal.ID)
	requireDomainError(t, err, 404, "NOT_FOUND")
}

func TestEnqueueProposalValidation(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()

	_, err := f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{Kind: "merge", Title: "x"})
	requireDomainError(t, err, 422, "VALIDATION_ERROR")
	_, err = f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{Kind: "update", Title: "x"})
	requireDomainError(t, err, 422, "VALIDATION_ERROR")
	_, err = f.service.EnqueueProposal(ctx, f.owner.ID, f.project.ID, ProposalInput{Kind: "create"})
	requireDomainError(t, err, 422, "VALIDATION_ERROR")
}

func TestCreateNoteRejectsDuplicateTitle(t *testing.T) {
	f := newFixture(t, Deps{})
	_, err := f.service.CreateNote(context.Background(), f.owner.ID, f.project.ID, NoteInput{Title: "Project deadline"})
	requireDomainError(t, err, 409, "NOTE_TITLE_TAKEN")
}

func TestGraphLinksNotesToSharedTags(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()

	note, err := f.service.CreateNote(ctx, f.owner.ID, f.project.ID, NoteInput{
		Title: "Crew roster",
		Body:  "Three astronauts",
		Tags:  []string{"timeline"},
	})
	if err != nil {
		t.Fatalf("create note: %v", err)
	}
	graph, err := f.service.Graph(ctx, f.owner.ID, f.project.ID)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	kinds := map[string]int{}
	for _, node := range graph.Nodes {
		kinds[node.Kind]++
	}
	if kinds["note"] != 2 || kinds["tag"] != 2 {
		t.Fatalf("unexpected nodes %+v", graph.Nodes)
	}
	if len(graph.Edges) != 3 {
		t.Fatalf("expected 3 edges, got %+v", graph.Edges)
	}
	found := false
	for _, edge := range graph.Edges {
		if edge.ID == "e:note:"+note.ID+"|tag:timeline" && edge.Source == "note:"+note.ID && edge.Target == "tag:timeline" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing edge for %s, got %+v", note.ID, graph.Edges)
	}
}

func TestRemoveMessageOnlyRemovesOwnUserMessages(t *testing.T) {
	f := newFixture(t, Deps{Completer: &scriptedCompleter{reply: "hi back", extraction: "{}"}})
	ctx := context.Background()

	reply, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	messages, _ := f.service.ListMessages(ctx, f.owner.ID, f.chat.ID)
	userMessage := messages[0]

	err = f.service.RemoveMessage(ctx, f.owner.ID, reply.ID)
	requireDomainError(t, err, 403, "FORBIDDEN")

	if err := f.service.RemoveMessage(ctx, f.owner.ID, userMessage.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.service.RemoveMessage(ctx, f.owner.ID, userMessage.ID); err != nil {
		t.Fatalf("removing twice should be a no-op: %v", err)
	}
	messages, _ = f.service.ListMessages(ctx, f.owner.ID, f.chat.ID)
	if len(messages) != 1 || messages[0].ID != reply.ID {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	svc := newTestService(t, Deps{})
	ctx := context.Background()

	_, err := svc.Login(ctx, "  ")
	requireDomainError(t, err, 422, "VALIDATION_ERROR")

	session, err := svc.Login(ctx, "Avery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resolved, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if resolved.UserID != session.UserID || resolved.UserName != "Avery" {
		t.Fatalf("unexpected session %+v", resolved)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token+"x"); err == nil {
		t.Fatal("tampered token must be rejected")
	}
}

func TestChatParticipation(t *testing.T) {
	f := newFixture(t, Deps{Completer: &scriptedCompleter{reply: "ok", extraction: "{}"}})
	ctx := context.Background()
	outsider, _ := f.service.UserByName(ctx, "Mallory")

	_, err := f.service.JoinChat(ctx, "", f.chat.ID)
	requireDomainError(t, err, 401, "NOT_AUTHENTICATED")
	_, err = f.service.JoinChat(ctx, f.owner.ID, "chat_missing")
	requireDomainError(t, err, 404, "NOT_FOUND")
	_, err = f.service.JoinChat(ctx, outsider.ID, f.chat.ID)
	requireDomainError(t, err, 403, "FORBIDDEN")

	joined, err := f.service.JoinChat(ctx, f.owner.ID, f.chat.ID)
	if err != nil || !joined {
		t.Fatalf("join: %v %v", joined, err)
	}
	joined, err = f.service.JoinChat(ctx, f.owner.ID, f.chat.ID)
	if err != nil || joined {
		t.Fatalf("second join should be a no-op: %v %v", joined, err)
	}

	users, _ := f.service.ListChatUsers(ctx, f.owner.ID, f.chat.ID, 0)
	if len(users) != 1 || users[0].Name != "Avery" {
		t.Fatalf("unexpected participants %+v", users)
	}
	hidden, _ := f.service.ListChatUsers(ctx, outsider.ID, f.chat.ID, 0)
	if len(hidden) != 0 {
		t.Fatalf("non-members see no participants, got %+v", hidden)
	}

	left, err := f.service.LeaveChat(ctx, f.owner.ID, f.chat.ID)
	if err != nil || !left {
		t.Fatalf("leave: %v %v", left, err)
	}
	left, _ = f.service.LeaveChat(ctx, f.owner.ID, f.chat.ID)
	if left {
		t.Fatal("leaving twice should be a no-op")
	}

	if _, err := f.service.SendMessage(ctx, f.owner.ID, f.chat.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	users, _ = f.service.ListChatUsers(ctx, f.owner.ID, f.chat.ID, 0)
	if len(users) != 1 {
		t.Fatalf("sending a message joins the sender, got %+v", users)
	}

	other, err := f.service.CreateChat(ctx, f.owner.ID, f.project.ID, "Retro")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := f.service.JoinChat(ctx, f.owner.ID, other.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	count, err := f.service.LeaveAllChats(ctx, f.owner.ID, "prj_elsewhere")
	if err != nil || count != 0 {
		t.Fatalf("other projects are untouched: %d %v", count, err)
	}
	count, err = f.service.LeaveAllChats(ctx, f.owner.ID, f.project.ID)
	if err != nil || count != 2 {
		t.Fatalf("expected to leave 2 chats, got %d %v", count, err)
	}
	_, err = f.service.LeaveAllChats(ctx, "", "")
	requireDomainError(t, err, 401, "NOT_AUTHENTICATED")
}

package reconcile

import (
	"encoding/json"
	"fmt"

	"nexus/api/internal/llm"
)

const systemContract = `You maintain a project's knowledge notes from a team chat.
Compare the conversation with the existing notes and reply with ONE JSON object and nothing else:

{"new": [{"title": string, "body": string, "tags": [string]}],
 "updated": [{"match": string, "title": string, "body": string, "tags": [string]}],
 "deleted": [{"match": string}]}

Rules:
- "new" lists facts, decisions or tasks that no existing note covers.
- "updated" lists existing notes whose content changed; "match" MUST equal an existing note title exactly.
- "deleted" lists existing notes that are now obsolete or wrong; "match" MUST equal an existing note title exactly.
- Titles are at most 80 characters and unique across "new" and "updated".
- Bodies are short markdown paragraphs. Tags are lowercase single words or short phrases, at most 5 per note.
- Use empty arrays when nothing changed.
- Do not wrap the JSON in markdown fences and do not add prose before or after it.`

// NoteContext is the compact form of an accepted note sent to the model.
type NoteContext struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// BuildMessages assembles the extraction prompt: the output contract, the
// ordered transcript, the current notes, and finally the latest message.
func BuildMessages(transcript []llm.Message, notes []NoteContext, latest string) ([]llm.Message, error) {
	if notes == nil {
		notes = []NoteContext{}
	}
	for i := range notes {
		if notes[i].Tags == nil {
			notes[i].Tags = []string{}
		}
	}
	encoded, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("encode notes context: %w", err)
	}

	messages := make([]llm.Message, 0, len(transcript)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemContract})
	messages = append(messages, transcript...)
	messages = append(messages,
		llm.Message{Role: llm.RoleUser, Content: "Existing notes (JSON): " + string(encoded)},
		llm.Message{Role: llm.RoleUser, Content: latest},
	)
	return messages, nil
}

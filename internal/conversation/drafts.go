package conversation

import "sync"

// Drafts holds unsent message text per conversation for one session.
type Drafts struct {
	mu    sync.Mutex
	texts map[string]string
}

func NewDrafts() *Drafts {
	return &Drafts{texts: make(map[string]string)}
}

// Stash records text as the pending draft of a conversation.
func (d *Drafts) Stash(conversationID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts[conversationID] = text
}

func (d *Drafts) Clear(conversationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.texts, conversationID)
}

// Restore returns the pending draft of a conversation, if any.
func (d *Drafts) Restore(conversationID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.texts[conversationID]
	return text, ok
}

// Close drops every draft.
func (d *Drafts) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = make(map[string]string)
	return nil
}

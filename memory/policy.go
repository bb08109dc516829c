package memory

// RecallQuery selects what query string the adapter passes to the provider
// when recalling at the start of a run.
type RecallQuery int

// Recall query kinds.
const (
	// QueryEmpty recalls with an empty query string.
	QueryEmpty RecallQuery = iota
	// QueryPrompt recalls with the task prompt as the query.
	QueryPrompt
)

// Policy configures what an agent recalls before a run and what it persists
// during one. The zero value disables everything; use the constructors for
// the standard executor policies.
type Policy struct {
	// Recall enables recalling stored messages at run start.
	Recall bool
	// RecallQuery selects the query passed to the provider.
	RecallQuery RecallQuery
	// RecallLimit caps the number of recalled messages; zero means no cap.
	RecallLimit int
	// StoreUser persists the task as a user message.
	StoreUser bool
	// StoreAssistant persists final assistant text.
	StoreAssistant bool
	// StoreToolInteractions persists tool-use/tool-result pairs.
	StoreToolInteractions bool
}

// ReActPolicy is the default policy for the tool-looping executor: recall
// with the task prompt, store everything.
func ReActPolicy() Policy {
	return Policy{
		Recall:                true,
		RecallQuery:           QueryPrompt,
		StoreUser:             true,
		StoreAssistant:        true,
		StoreToolInteractions: true,
	}
}

// BasicPolicy is the policy for the single-turn executor: recall with an
// empty query, store the user task and the assistant reply. The basic
// executor never issues tool calls so tool interactions are not stored.
func BasicPolicy() Policy {
	return Policy{
		Recall:         true,
		RecallQuery:    QueryEmpty,
		StoreUser:      true,
		StoreAssistant: true,
	}
}

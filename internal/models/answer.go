package models

// Chat roles accepted by the completion capability.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the decoding parameters for a completion call.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// ParsedAnswer is the structured form of a model reply.
type ParsedAnswer struct {
	Reasoning      string
	Conclusion     string
	AdditionalInfo string
}

// Answer is what a caller receives for one question.
type Answer struct {
	Conclusion     string `json:"conclusion"`
	DetailedAnswer string `json:"detailed_answer"`
	// Error is set to the provider failure kind when Conclusion carries a
	// user-facing error message instead of an answer.
	Error string `json:"error,omitempty"`
	// Predefined is true when the answer came from the FAQ store.
	Predefined bool `json:"predefined,omitempty"`
}

// FAQMatch is the closest pre-defined question to a query.
type FAQMatch struct {
	Question   string
	Answer     string
	Similarity float32
}

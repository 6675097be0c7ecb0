package model

// Conversation is one answered question, kept so a thread can be resumed
// and so users can browse their history.
type Conversation struct {
	RequestID      string `json:"request_id" bson:"request_id"`
	Question       string `json:"question" bson:"question"`
	Answer         string `json:"answer" bson:"answer"`
	UserEmail      string `json:"user_email,omitempty" bson:"user_email,omitempty"`
	AssistantID    string `json:"assistant_id,omitempty" bson:"assistant_id,omitempty"`
	ThreadID       string `json:"thread_id,omitempty" bson:"thread_id,omitempty"`
	ReportName     string `json:"report_name,omitempty" bson:"report_name,omitempty"`
	RequestType    string `json:"request_type,omitempty" bson:"request_type,omitempty"`
	ConversationID string `json:"conversation_id,omitempty" bson:"conversation_id,omitempty"`
	Context        string `json:"context,omitempty" bson:"context,omitempty"`
	CreatedAt      int64  `json:"created_at" bson:"created_at"`
	UpdatedAt      int64  `json:"updated_at" bson:"updated_at"`
}

// ConversationFilter narrows a conversation listing. Empty fields match
// everything. Results are newest first.
type ConversationFilter struct {
	UserEmail      string
	AssistantID    string
	ThreadID       string
	ConversationID string
	Limit          int
}

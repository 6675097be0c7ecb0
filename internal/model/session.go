package model

// PoolAssistant is an entry in the assistant_pool collection. Every live
// agent session has one so that sessions orphaned by a restart can still be
// found and cleaned up.
type PoolAssistant struct {
	AssistantID string `json:"assistant_id" bson:"assistant_id" db:"assistant_id"`
	CreatedAt   int64  `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt   int64  `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

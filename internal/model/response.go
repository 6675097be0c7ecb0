package model

// ListResponse is the standard envelope for list endpoints, wrapping results
// in a "resource" array with optional metadata.
type ListResponse struct {
	Resource interface{}   `json:"resource"`
	Meta     *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta carries counts and timing for list responses.
type ResponseMeta struct {
	Count  int     `json:"count"`
	Limit  int     `json:"limit,omitempty"`
	TookMs float64 `json:"took_ms"`
}

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// SubmitRequest is the body of POST /api/v1/requests.
type SubmitRequest struct {
	Question    string `json:"question"`
	UserEmail   string `json:"user_email,omitempty"`
	AssistantID string `json:"assistant_id,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	ReportName  string `json:"report_name,omitempty"`
}

// SubmitResponse acknowledges an enqueued question.
type SubmitResponse struct {
	RequestID string        `json:"request_id"`
	Status    RequestStatus `json:"status"`
}

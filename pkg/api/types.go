package api

import (
	"io"
	"time"
)

// Question kinds as they appear on the wire. The server also emits "email"
// and "phone", which clients treat as plain text entry.
const (
	KindText   = "text"
	KindNumber = "number"
	KindDate   = "date"
	KindSelect = "select"
	KindFile   = "file"
	KindEmail  = "email"
	KindPhone  = "phone"
)

// Sentinel answers used by the document upload sub-flow. The chat endpoint
// has no dedicated refresh operation; after an upload batch the client
// resubmits one of these to advance past the documents step or to re-fetch
// the still-current question with its remaining requirements.
const (
	AnswerDocumentsUploaded = "documents_uploaded"
	AnswerRefreshQuestion   = "refresh_documents"
)

// Question describes the next prompt the user has to answer.
type Question struct {
	Prompt     string   `json:"question"`
	Step       string   `json:"step"`
	Field      string   `json:"field,omitempty"`
	Kind       string   `json:"type"`
	Options    []string `json:"options,omitempty"`
	Required   bool     `json:"required"`
	Multiple   bool     `json:"multiple,omitempty"`
	Progress   *int     `json:"progress,omitempty"`
	StepNumber int      `json:"step_number,omitempty"`
	TotalSteps int      `json:"total_steps,omitempty"`
}

// Progress is the server-reported completion state of an onboarding run.
type Progress struct {
	IsComplete           bool   `json:"is_complete"`
	CompletionPercentage int    `json:"completion_percentage"`
	CurrentStep          string `json:"current_step,omitempty"`
}

// HistoryEntry is one line of server-persisted conversation history.
type HistoryEntry struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StartResponse is returned by GET /api/onboarding/chat/ when a session is
// started or resumed.
type StartResponse struct {
	SessionID           string         `json:"session_id"`
	Question            Question       `json:"question"`
	Progress            Progress       `json:"progress"`
	ConversationHistory []HistoryEntry `json:"conversation_history,omitempty"`
	IsResuming          bool           `json:"is_resuming,omitempty"`
}

// AnswerRequest is the body of POST /api/onboarding/chat/.
type AnswerRequest struct {
	Message   string `json:"message"`
	Step      string `json:"step,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AnswerResponse carries the next question after an answer was accepted.
type AnswerResponse struct {
	SessionID string   `json:"session_id,omitempty"`
	Question  Question `json:"question"`
	Progress  Progress `json:"progress"`
}

// UploadedDocument describes one stored file of an upload batch.
type UploadedDocument struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// DocumentStatus reports whether all required documents have been uploaded.
type DocumentStatus struct {
	AllUploaded      bool     `json:"all_uploaded"`
	MissingDocuments []string `json:"missing_documents"`
}

// UploadResponse is returned by POST /api/onboarding/upload_documents/.
type UploadResponse struct {
	Documents      []UploadedDocument `json:"documents"`
	DocumentStatus DocumentStatus     `json:"document_status"`
}

// File is one entry of an upload batch.
type File struct {
	Name    string
	Content io.Reader
}

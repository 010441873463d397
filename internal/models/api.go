package models

import (
	"fmt"
	"strings"
)

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	UserID         string `json:"user_id"`
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Validate trims the request fields and checks the required ones.
func (r *SearchRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Query = strings.TrimSpace(r.Query)
	r.ConversationID = strings.TrimSpace(r.ConversationID)
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// MessageData holds the message text of a SearchResponse.
type MessageData struct {
	Content string `json:"content"`
}

// SearchResponse is the reply to POST /search.
type SearchResponse struct {
	SessionID string      `json:"session_id"`
	Type      string      `json:"type"`
	Data      MessageData `json:"data"`
}

// UploadResponse is the reply to POST /upload.
type UploadResponse struct {
	Status     string `json:"status"`
	FileID     string `json:"file_id"`
	Chunks     int    `json:"chunks"`
	Searchable bool   `json:"searchable"`
	Warning    string `json:"warning,omitempty"`
}

// FileEntry is one element of the GET /get_file listing.
type FileEntry struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// StatusResponse is a generic {status, message} reply.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

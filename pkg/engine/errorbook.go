package engine

import "context"

// ErrorRecord is published to the error-book collaborator when the dialog
// enters repair. The record is opaque to the core.
type ErrorRecord struct {
	StudentID     string   `json:"student_id"`
	QuestionID    string   `json:"question_id"`
	StudentAnswer string   `json:"student_answer"`
	CorrectAnswer string   `json:"correct_answer"`
	ErrorType     string   `json:"error_type"`
	Tags          []string `json:"tags"`
}

// ErrorBookPublisher forwards repair events to the error book. Publish
// failures never affect the turn.
type ErrorBookPublisher interface {
	Publish(ctx context.Context, rec ErrorRecord) error
}

// NopPublisher discards records; used when no error book is wired.
type NopPublisher struct{}

// Publish implements ErrorBookPublisher.
func (NopPublisher) Publish(context.Context, ErrorRecord) error { return nil }

var _ ErrorBookPublisher = NopPublisher{}

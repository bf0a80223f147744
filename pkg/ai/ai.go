package ai

import "context"

// EmailInput carries the fields a summarizer is shown for one email. Snippet
// and Body arrive already cleaned of markup.
type EmailInput struct {
	Subject string
	From    string
	To      string
	Date    string
	Snippet string
	Body    string
}

// SummarizerService generates short natural-language summaries of emails.
// Implementations return ("", nil) when there is nothing useful to say, and
// callers persist nothing in that case.
type SummarizerService interface {
	SummarizeEmail(ctx context.Context, email EmailInput) (string, error)
}

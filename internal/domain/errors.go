package domain

import "errors"

var (
	// ErrSchema is returned when a submission references a question that does not resolve.
	ErrSchema = errors.New("question not found")
	// ErrTypeMismatch indicates the question belongs to a different question type.
	ErrTypeMismatch = errors.New("question type mismatch")
	// ErrMalformedSubmission indicates the submitted order is not a permutation of the question's items.
	ErrMalformedSubmission = errors.New("malformed submission")
	// ErrUnhandledAnswer is returned when no ingest handler stored the answer.
	ErrUnhandledAnswer = errors.New("no handler accepted the answer")
)

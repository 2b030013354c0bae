package models

import (
	"errors"
	"strings"

	"github.com/hyperjump/compendium/internal/apperr"
)

var (
	ErrEmptyQuery   = errors.New("query_text cannot be empty")
	ErrMissingDocID = errors.New("doc_id cannot be empty")
)

// Query is a question about one stored document. It is never persisted.
type Query struct {
	QueryText string `json:"query_text"`
	DocID     string `json:"doc_id"`
}

// Validate trims the fields and rejects an empty question or doc_id with an
// input error wrapping ErrEmptyQuery or ErrMissingDocID.
func (q *Query) Validate() error {
	q.QueryText = strings.TrimSpace(q.QueryText)
	q.DocID = strings.TrimSpace(q.DocID)
	if q.QueryText == "" {
		return apperr.E(apperr.KindInput, "query", ErrEmptyQuery)
	}
	if q.DocID == "" {
		return apperr.E(apperr.KindInput, "query", ErrMissingDocID)
	}
	return nil
}

// Package classify is the article classification capability: an HTTP client
// for the classification service plus a deterministic neutral fallback.
package classify

import (
	"context"

	payloadschema "horse.fit/atlas/schema"
)

type Payload = payloadschema.Classification

// Request is the article text sent for classification. Catalog lists entity
// names the classifier may refer to.
type Request struct {
	ArticleID int64
	Title     string
	Text      string
	Catalog   []string
}

// Result is either a valid payload or the reason it is invalid.
type Result struct {
	payload *Payload
	reason  string
}

func Valid(p Payload) Result {
	return Result{payload: &p}
}

func Invalid(reason string) Result {
	if reason == "" {
		reason = "invalid classification"
	}
	return Result{reason: reason}
}

// Payload returns the payload and whether the result is valid.
func (r Result) Payload() (Payload, bool) {
	if r.payload == nil {
		return Payload{}, false
	}
	return *r.payload, true
}

func (r Result) Reason() string {
	return r.reason
}

type Classifier interface {
	Classify(ctx context.Context, req Request) Result
}

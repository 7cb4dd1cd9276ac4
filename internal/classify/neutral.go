package classify

import (
	"context"
	"strconv"

	"horse.fit/atlas/internal/textnorm"
	payloadschema "horse.fit/atlas/schema"
)

const (
	NeutralModel    = "neutral"
	neutralLabels   = 5
	neutralMinToken = 4
	neutralFiller   = "sin clasificar"
)

// Neutral classifies every article deterministically from its title.
type Neutral struct{}

func (Neutral) Classify(_ context.Context, req Request) Result {
	idea := textnorm.ClipWords(req.Title, payloadschema.MaxCentralIdeaWords)
	if idea == "" {
		idea = textnorm.ClipWords(req.Text, payloadschema.MaxCentralIdeaWords)
	}
	if idea == "" {
		idea = neutralFiller
	}

	labels := make([]string, 0, neutralLabels)
	seen := map[string]struct{}{}
	for _, token := range textnorm.Tokenize(req.Title + " " + req.Text) {
		if len(labels) == neutralLabels {
			break
		}
		if len([]rune(token)) < neutralMinToken {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		labels = append(labels, token)
	}
	for i := len(labels); i < neutralLabels; i++ {
		labels = append(labels, neutralFiller+" "+strconv.Itoa(i+1))
	}

	return Valid(Payload{
		CentralIdea: idea,
		ArticleType: "informativo",
		Labels:      labels,
		Mentions:    []payloadschema.Mention{},
		Model:       NeutralModel,
		Fallback:    true,
	})
}

// WithFallback returns primary's result when valid and fallback's otherwise.
type WithFallback struct {
	Primary   Classifier
	Fallback  Classifier
	OnInvalid func(req Request, reason string)
}

func (w WithFallback) Classify(ctx context.Context, req Request) Result {
	if w.Primary != nil {
		result := w.Primary.Classify(ctx, req)
		if _, ok := result.Payload(); ok {
			return result
		}
		if w.OnInvalid != nil {
			w.OnInvalid(req, result.Reason())
		}
	}
	fallback := w.Fallback
	if fallback == nil {
		fallback = Neutral{}
	}
	return fallback.Classify(ctx, req)
}

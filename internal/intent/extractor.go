package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/llm"
	"github.com/shivas758/agriguru/internal/observability"
)

const systemPrompt = `You extract structured queries about Indian agricultural market (mandi) prices.
Today is %s.
Return one JSON object with these fields (use null when unknown):
{
  "commodity": string|null,         // crop or produce, English name
  "location": {"state": string|null, "district": string|null, "market": string|null},
  "date": "YYYY-MM-DD"|"YYYY"|null, // a specific day, a bare year, or null for latest
  "isHistoricalQuery": boolean,     // asks about the past rather than today
  "queryType": "price_inquiry"|"market_overview"|"trend"|"nearby_markets",
  "confidence": number,             // 0..1, how sure you are about the location
  "isRealLocation": boolean,        // the location is a real Indian place
  "hasMarket": boolean              // the user named a specific market
}
Resolve relative dates ("yesterday", "last week") against today.
Use earlier conversation turns to fill in missing commodity or location.`

// Request is one user question with optional context.
type Request struct {
	Text        string
	History     []string
	Coordinates *domain.Coordinates
}

// Extractor asks the model for an intent and validates the answer.
type Extractor struct {
	llm    llm.Completer
	loc    *time.Location
	now    func() time.Time
	logger *observability.Logger
}

// NewExtractor creates an extractor. loc is the zone relative dates are
// resolved in.
func NewExtractor(completer llm.Completer, loc *time.Location, logger *observability.Logger) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Extractor{llm: completer, loc: loc, now: time.Now, logger: logger.WithComponent("intent")}
}

// Extract returns the intent for req. Model failures are SourceUnavailable;
// unusable answers are Validation errors.
func (e *Extractor) Extract(ctx context.Context, req Request) (domain.QueryIntent, error) {
	const op = "intent.Extract"

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.QueryIntent{}, domain.ValidationError(op, "question text is required", nil)
	}

	today := e.now().In(e.loc).Format(domain.DateLayout)
	reply, err := e.llm.Complete(ctx, fmt.Sprintf(systemPrompt, today), userPrompt(text, req.History))
	if err != nil {
		return domain.QueryIntent{}, domain.SourceUnavailable(op, "intent extraction failed", err)
	}

	in, err := Parse(ctx, []byte(llm.ExtractJSON(reply)), e.logger)
	if err != nil {
		e.logger.WithContext(ctx).Warn().Err(err).Str("reply", reply).Msg("unusable intent reply")
		return domain.QueryIntent{}, err
	}
	if req.Coordinates != nil && req.Coordinates.Valid() {
		c := *req.Coordinates
		in.Coordinates = &c
	}

	e.logger.WithContext(ctx).Debug().
		Str("commodity", in.Commodity).
		Str("location", in.Location.String()).
		Str("query_type", string(in.QueryType)).
		Float64("confidence", in.Confidence).
		Msg("intent extracted")
	return in, nil
}

func userPrompt(text string, history []string) string {
	if len(history) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("Earlier turns:\n")
	for _, h := range history {
		if h = strings.TrimSpace(h); h != "" {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(text)
	return b.String()
}

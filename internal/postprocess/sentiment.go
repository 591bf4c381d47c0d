package postprocess

// Canonical sentiment tokens, per the artifact schema.
const (
	SentimentStrongPositive = "강한긍정"
	SentimentWeakPositive   = "약한긍정"
	SentimentNeutral        = "보통"
	SentimentWeakNegative   = "약한부정"
	SentimentStrongNegative = "강한부정"
)

// sentimentCanonicalization maps every accepted input token to one of
// the five canonical tokens. Unknown input maps to SentimentNeutral.
var sentimentCanonicalization = map[string]string{
	SentimentStrongPositive: SentimentStrongPositive,
	SentimentWeakPositive:   SentimentWeakPositive,
	SentimentNeutral:        SentimentNeutral,
	SentimentWeakNegative:   SentimentWeakNegative,
	SentimentStrongNegative: SentimentStrongNegative,

	"긍정": SentimentWeakPositive,
	"만족": SentimentWeakPositive,
	"신남": SentimentWeakPositive,

	"부정": SentimentWeakNegative,
	"불만": SentimentWeakNegative,
	"우려": SentimentWeakNegative,

	"중립": SentimentNeutral,
	"화남": SentimentStrongNegative,
}

// canonicalSentiment maps any input to exactly one of the five canonical
// tokens, defaulting to SentimentNeutral.
func canonicalSentiment(s string) string {
	if canon, ok := sentimentCanonicalization[s]; ok {
		return canon
	}
	return SentimentNeutral
}

package postprocess

import "regexp"

// rewriteRule is one ordered entry in the verb-to-noun table: a compiled
// pattern anchored at the end of the string and its noun-phrase
// replacement. Rules are tried in order; the first match wins.
//
// This table is the hardest-to-port asset in the system because it is
// culturally and linguistically specific. It is kept here as a single,
// ordered, data-driven list rather than inline regex calls scattered
// through the summary logic, so it stays auditable and can be extended
// without touching control flow.
type rewriteRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// verbToNounRules rewrites common Korean verb-final sentence endings
// into noun-phrase-final equivalents, matched against the end of the
// (already whitespace-collapsed) summary string.
var verbToNounRules = []rewriteRule{
	{regexp.MustCompile(`했습니다\.?$`), "안내"},
	{regexp.MustCompile(`됩니다\.?$`), "확인"},
	{regexp.MustCompile(`합니다\.?$`), "처리"},
	{regexp.MustCompile(`드립니다\.?$`), "안내"},
	{regexp.MustCompile(`주세요\.?$`), "요청"},
	{regexp.MustCompile(`부탁드립니다\.?$`), "요청"},
	{regexp.MustCompile(`바랍니다\.?$`), "요청"},
	{regexp.MustCompile(`있습니다\.?$`), "있음"},
	{regexp.MustCompile(`없습니다\.?$`), "없음"},
	{regexp.MustCompile(`입니다\.?$`), ""},
	{regexp.MustCompile(`습니다\.?$`), ""},
	{regexp.MustCompile(`했다\.?$`), "완료"},
	{regexp.MustCompile(`한다\.?$`), "처리"},
}

// applyVerbToNounRewrite runs the ordered rule table against s and
// returns the rewritten string. If no rule matches, s is returned
// unchanged.
func applyVerbToNounRewrite(s string) string {
	for _, rule := range verbToNounRules {
		if rule.pattern.MatchString(s) {
			return rule.pattern.ReplaceAllString(s, rule.replacement)
		}
	}
	return s
}

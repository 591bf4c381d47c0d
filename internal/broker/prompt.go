package broker

import "fmt"

// buildAnalysisPrompt constructs the Korean expert-role instruction that
// asks the model to produce the fenced JSON artifact for dialogue.
func buildAnalysisPrompt(dialogue string) string {
	return fmt.Sprintf(`당신은 상담 대화를 분석하는 전문가입니다. 아래 대화 내용을 읽고 반드시 다음 JSON 형식으로만 응답하세요.

[분석 규칙]
- summary: 대화 전체를 25자 이내의 명사형으로 요약합니다. 문장이 아니라 명사로 끝나야 합니다.
- keyword: 대화에서 가장 중요한 키워드 3개를 쉼표로 구분하여 작성합니다.
- paragraphs: 대화를 2~3개의 문단으로 나누고, 각 문단마다 summary, keyword, sentiment를 작성합니다.
- sentiment는 반드시 다음 5개 중 하나여야 합니다: 강한긍정, 약한긍정, 보통, 약한부정, 강한부정.

[출력 형식]
`+"```json"+`
{"summary": "string", "keyword": "string", "paragraphs": [{"summary": "string", "keyword": "string", "sentiment": "string"}]}
`+"```"+`

[대화 내용]
%s
`, dialogue)
}

// buildRequeryPrompt constructs the short follow-up prompt used when a
// summary exceeds its byte budget: it asks the model to shrink its own
// previous summary into a bare noun phrase. No JSON is required here.
func buildRequeryPrompt(previousSummary string) string {
	return fmt.Sprintf(`다음 요약을 25자 이내의 명사형 구문으로 다시 작성하세요. 설명 없이 결과만 출력하세요.

예시) 입력: "고객이 카드 발급 절차에 대해 문의하였고 상담원이 필요한 서류를 안내하였습니다." -> 출력: "카드 발급 절차 문의 및 서류 안내"

입력: %q
출력:`, previousSummary)
}

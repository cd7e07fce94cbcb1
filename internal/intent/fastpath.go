package intent

import (
	"regexp"
	"strings"
)

// The fast path answers trivial turns without touching the classifier, so
// greetings stay free of model latency and cost.
var (
	greetingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(hi|hiya|hey|hello|yo|howdy)[!.\s]*$`),
		regexp.MustCompile(`^good (morning|afternoon|evening)[!.\s]*$`),
		regexp.MustCompile(`^(hi|hey|hello) there[!.\s]*$`),
		regexp.MustCompile(`^(thanks|thank you|ty)[!.\s]*$`),
	}
	helpPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^help[!.?\s]*$`),
		regexp.MustCompile(`^what can you do[?!.\s]*$`),
		regexp.MustCompile(`^(how do(es)? (this|it) work|how do i use (this|you))[?!.\s]*$`),
		regexp.MustCompile(`\bwhat (commands|things) (do you|can you)\b`),
	}
)

// matchFastPath detects pure greeting/help utterances. The input must
// already be trimmed and lowercased.
func matchFastPath(in string) (Decision, bool) {
	for _, re := range greetingPatterns {
		if re.MatchString(in) {
			return Greeting(), true
		}
	}
	for _, re := range helpPatterns {
		if re.MatchString(in) {
			return HelpReply(), true
		}
	}
	return Decision{}, false
}

func normalizeUtterance(in string) string {
	in = strings.ToLower(strings.TrimSpace(in))
	return strings.Join(strings.Fields(in), " ")
}

package agents

import (
	"regexp"
	"strings"
)

var confirmYesPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^yes$`),
	regexp.MustCompile(`^y$`),
	regexp.MustCompile(`^yeah$`),
	regexp.MustCompile(`^yep$`),
	regexp.MustCompile(`^yup$`),
	regexp.MustCompile(`^confirm$`),
	regexp.MustCompile(`^do it$`),
	regexp.MustCompile(`^go ahead$`),
	regexp.MustCompile(`^sure$`),
	regexp.MustCompile(`^ok$`),
	regexp.MustCompile(`^okay$`),
}

var confirmNoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^no$`),
	regexp.MustCompile(`^n$`),
	regexp.MustCompile(`^nope$`),
	regexp.MustCompile(`^cancel$`),
	regexp.MustCompile(`^don'?t$`),
	regexp.MustCompile(`^never mind$`),
	regexp.MustCompile(`^nevermind$`),
	regexp.MustCompile(`^stop$`),
}

// isConfirmYes reports whether the message confirms a pending action.
func isConfirmYes(message string) bool {
	return matchAny(confirmYesPatterns, message)
}

// isConfirmNo reports whether the message denies a pending action.
func isConfirmNo(message string) bool {
	return matchAny(confirmNoPatterns, message)
}

func matchAny(patterns []*regexp.Regexp, message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, p := range patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

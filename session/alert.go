package session

import (
	"regexp"

	log "github.com/sirupsen/logrus"
)

// AlertMatcher flags inbound Text(58) content against a configured set of
// substrings/regexes, surfacing it to operators at warning level. Adapted
// from a console-output pattern matcher: the match engine (case-insensitive
// literal-or-regex scan) carries over unchanged, only the pattern vocabulary
// and what triggers a check are domain-specific now.
type AlertMatcher struct {
	patterns []*regexp.Regexp
	raw      []string
}

func NewAlertMatcher(patterns []string) *AlertMatcher {
	am := &AlertMatcher{
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
		raw:      patterns,
	}
	for _, p := range patterns {
		if re, err := regexp.Compile("(?i)" + p); err == nil {
			am.patterns = append(am.patterns, re)
		}
	}
	return am
}

// Check scans one inbound message's free-text field and logs a warning for
// every configured pattern it matches. Returns true if anything matched.
func (am *AlertMatcher) Check(counterparty, text string) bool {
	matched := false
	for i, p := range am.patterns {
		if p.MatchString(text) {
			log.WithField("counterparty", counterparty).Warnf("alert pattern %q matched: %s", am.raw[i], text)
			matched = true
		}
	}
	return matched
}

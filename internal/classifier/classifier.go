// Package classifier maps free-text employee messages to a coarse intent
// using an ordered keyword table. It is deterministic: no model is involved.
package classifier

import "strings"

// Intent is the coarse category of a message.
type Intent string

const (
	IntentLicense    Intent = "license"
	IntentGroup      Intent = "group"
	IntentPassword   Intent = "password"
	IntentNetwork    Intent = "network"
	IntentOnboarding Intent = "onboarding"
	IntentGeneral    Intent = "general"
)

// Rule matches when any keyword occurs in the lower-cased message.
type Rule struct {
	Intent   Intent
	Keywords []string
}

// Rules is evaluated in order; the first matching rule wins regardless of
// where its keyword appears in the message.
var Rules = []Rule{
	{Intent: IntentLicense, Keywords: []string{"license", "software"}},
	{Intent: IntentGroup, Keywords: []string{"group", "access"}},
	{Intent: IntentPassword, Keywords: []string{"password", "reset"}},
	{Intent: IntentNetwork, Keywords: []string{"vpn", "network"}},
	{Intent: IntentOnboarding, Keywords: []string{"onboard", "new hire"}},
}

// Classify returns the intent of message, or IntentGeneral when no rule matches.
func Classify(message string) Intent {
	return ClassifyWith(Rules, message)
}

// ClassifyWith evaluates a custom rule table.
func ClassifyWith(rules []Rule, message string) Intent {
	lower := strings.ToLower(message)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Intent
			}
		}
	}
	return IntentGeneral
}

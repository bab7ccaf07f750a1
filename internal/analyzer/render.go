package analyzer

import (
	"strings"
	"unicode"

	"github.com/ashureev/symptom-checker/internal/domain"
)

const (
	// Greeting opens every new session.
	Greeting = "Hello! I'm here to help you understand your symptoms better. " +
		"Please describe what symptoms you're experiencing, and I'll provide general health awareness guidance."

	// Apology is the only reply shown when the local analyzer itself fails.
	Apology = "I apologize, but I encountered an error. Please try again."

	// Disclaimer is appended to every assessment.
	Disclaimer = "Medical disclaimer: This assistant provides general health awareness information only. " +
		"It does not diagnose diseases, recommend treatments, or provide medical advice. " +
		"Please consult a qualified healthcare professional for medical concerns."

	durationQuestion = "How long have you been experiencing these symptoms?"
)

var guidance = map[domain.RiskTier]string{
	domain.RiskHigh: "Your description includes signs that may need urgent medical attention.\n\n" +
		"- Call your local emergency number (for example 911 or 112) or go to the nearest emergency department now.\n" +
		"- Do not drive yourself if you feel faint, confused or short of breath.\n" +
		"- If someone is nearby, tell them how you are feeling and stay with them until help arrives.",
	domain.RiskModerate: "These symptoms may indicate a potential health concern that should be evaluated.\n\n" +
		"- Consider seeing a healthcare professional within the next 24-48 hours.\n" +
		"- Monitor your symptoms and note any changes, such as a rising temperature or new pain.\n" +
		"- Seek urgent care sooner if your symptoms get worse or new symptoms appear.",
	domain.RiskLow: "Based on what you shared, this appears to be a lower-risk concern.\n\n" +
		"- Rest, stay hydrated and give your body time to recover.\n" +
		"- Monitor your symptoms over the next few days.\n" +
		"- Consider consulting a healthcare professional if your symptoms persist or worsen.",
}

// Render builds the assessment text for tier. It is a pure function of its
// inputs. Unknown tiers use the LOW guidance.
func Render(tier domain.RiskTier, symptoms []string, duration string) string {
	block, ok := guidance[tier]
	if !ok {
		block = guidance[domain.RiskLow]
	}

	var b strings.Builder
	b.WriteString(summarize(symptoms, duration))
	b.WriteString("\n\n")
	b.WriteString(block)
	b.WriteString("\n\n")
	b.WriteString(Disclaimer)
	return b.String()
}

// RenderQuestion builds the duration follow-up for the symptoms seen so far.
func RenderQuestion(symptoms []string) string {
	if len(symptoms) == 0 {
		return durationQuestion
	}
	return "Thank you for sharing. I understand you're experiencing " + joinList(symptoms) + ". " + durationQuestion
}

func summarize(symptoms []string, duration string) string {
	switch {
	case len(symptoms) > 0 && duration != "":
		return "You mentioned " + joinList(symptoms) + " " + durationPhrase(duration) + "."
	case len(symptoms) > 0:
		return "You mentioned " + joinList(symptoms) + "."
	case duration != "":
		return "Thank you for sharing. You mentioned this has been going on " + durationPhrase(duration) + "."
	default:
		return "Thank you for sharing how you are feeling."
	}
}

// durationPhrase turns "2 days" into "for 2 days" and "yesterday" into
// "since yesterday".
func durationPhrase(duration string) string {
	if duration != "" && unicode.IsDigit(rune(duration[0])) {
		return "for " + duration
	}
	return "since " + duration
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

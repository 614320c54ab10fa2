package services

import "strings"

// Intent classifies an inbound message.
type Intent string

const (
	IntentBookAppointment Intent = "appointment"
	IntentMedicalQuery    Intent = "medical_query"
	IntentGeneralChat     Intent = "general"
)

// Keyword sets are checked in priority order: appointment wins over medical
// even when both occur in the same message, everything else is general chat.
var (
	appointmentKeywords = []string{"appointment", "book a visit", "see a doctor"}
	medicalKeywords     = []string{"symptom", "disease", "medical", "health"}
)

// ClassifyIntent maps a raw message to an intent. Matching is
// case-insensitive substring matching with no side effects; the default is
// general chat, so classification never fails.
func ClassifyIntent(message string) Intent {
	msg := strings.ToLower(message)

	for _, keyword := range appointmentKeywords {
		if strings.Contains(msg, keyword) {
			return IntentBookAppointment
		}
	}
	for _, keyword := range medicalKeywords {
		if strings.Contains(msg, keyword) {
			return IntentMedicalQuery
		}
	}
	return IntentGeneralChat
}

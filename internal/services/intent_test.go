package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntentAppointment(t *testing.T) {
	cases := []string{
		"I need an appointment",
		"APPOINTMENT please",
		"Can I Book A Visit tomorrow?",
		"i want to see a doctor",
	}
	for _, msg := range cases {
		assert.Equal(t, IntentBookAppointment, ClassifyIntent(msg), "message: %s", msg)
	}
}

func TestClassifyIntentAppointmentBeatsMedical(t *testing.T) {
	// Appointment keywords take priority even when medical keywords occur
	// in the same message.
	cases := []string{
		"I have a symptom and need an appointment",
		"my health is bad, book a visit",
		"APPOINTMENT for my disease",
	}
	for _, msg := range cases {
		assert.Equal(t, IntentBookAppointment, ClassifyIntent(msg), "message: %s", msg)
	}
}

func TestClassifyIntentMedical(t *testing.T) {
	cases := []string{
		"I have a strange symptom",
		"is this DISEASE contagious?",
		"a medical question",
		"how is my health affected by smoking",
	}
	for _, msg := range cases {
		assert.Equal(t, IntentMedicalQuery, ClassifyIntent(msg), "message: %s", msg)
	}
}

func TestClassifyIntentDefaultsToGeneral(t *testing.T) {
	cases := []string{
		"hello there",
		"",
		"what are your opening hours?",
	}
	for _, msg := range cases {
		assert.Equal(t, IntentGeneralChat, ClassifyIntent(msg), "message: %s", msg)
	}
}

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateReferenceFormat(t *testing.T) {
	ref := GenerateReference("APPT")
	assert.True(t, strings.HasPrefix(ref, "APPT_"))
	assert.Len(t, ref, len("APPT_")+14+4)
}

func TestGenerateReferenceCarriesPrefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateReference("ORDER"), "ORDER_"))
	assert.True(t, strings.HasPrefix(GenerateReference("APPT"), "APPT_"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "254712345678", NormalizePhone("whatsapp:+254712345678"))
	assert.Equal(t, "254712345678", NormalizePhone("+254712345678"))
	assert.Equal(t, "254712345678", NormalizePhone("254712345678"))
}

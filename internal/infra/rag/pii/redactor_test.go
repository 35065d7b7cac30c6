package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFindsEmailAndPhone(t *testing.T) {
	r := NewRedactor()
	d := r.Detect("Contact jane@example.com or call 415-555-0199.")
	assert.Contains(t, d.Categories, CategoryEmail)
	assert.Contains(t, d.Categories, CategoryPhone)
}

func TestDetectIsDeterministic(t *testing.T) {
	r := NewRedactor()
	text := "ssn 123-45-6789 email a@b.com"
	first := r.Detect(text)
	second := r.Detect(text)
	assert.Equal(t, first, second)
}

func TestRedactMasksSpans(t *testing.T) {
	r := NewRedactor()
	out := r.Redact("email me at jane@example.com please")
	assert.NotContains(t, out, "jane@example.com")
	assert.Contains(t, out, "[email redacted]")
}

func TestRedactNoPIIReturnsUnchanged(t *testing.T) {
	r := NewRedactor()
	text := "nothing sensitive here"
	assert.Equal(t, text, r.Redact(text))
}

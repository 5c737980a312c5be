package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntity_SpanValid(t *testing.T) {
	tests := []struct {
		name    string
		entity  Entity
		textLen int
		want    bool
	}{
		{"inside", Entity{Start: 2, End: 5}, 10, true},
		{"full text", Entity{Start: 0, End: 10}, 10, true},
		{"negative start", Entity{Start: -1, End: 5}, 10, false},
		{"empty span", Entity{Start: 3, End: 3}, 10, false},
		{"inverted", Entity{Start: 5, End: 2}, 10, false},
		{"end past text", Entity{Start: 2, End: 11}, 10, false},
		{"zero-length text", Entity{Start: 0, End: 1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entity.SpanValid(tt.textLen))
		})
	}
}

func TestContextWindow_Clamping(t *testing.T) {
	text := "the department of education manages the program"
	idx := strings.Index(text, "education")

	got := ContextWindow(text, idx, idx+len("education"), 10)
	assert.Contains(t, got, "education")
	assert.True(t, len(got) <= len("education")+20)

	// A window larger than the text returns the whole text.
	assert.Equal(t, text, ContextWindow(text, idx, idx+len("education"), 1000))

	// A window of zero returns exactly the span.
	assert.Equal(t, "education", ContextWindow(text, idx, idx+len("education"), 0))
}

func TestContextWindow_EmptyOnDegenerateSpan(t *testing.T) {
	assert.Equal(t, "", ContextWindow("", 0, 0, 50))
	assert.Equal(t, "", ContextWindow("abc", 2, 2, 0))
}

func TestContextWindow_RuneBoundaries(t *testing.T) {
	// Multi-byte runes on both sides of the span. The cut points must not
	// split a rune even when the raw byte offsets land mid-sequence.
	text := "ééé target ééé"
	idx := strings.Index(text, "target")

	got := ContextWindow(text, idx, idx+len("target"), 1)
	assert.True(t, strings.Contains(got, "target"))
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}

func TestNewNoopLogger_AllLevels(t *testing.T) {
	logger := NewNoopLogger()

	assert.NotPanics(t, func() {
		logger.Info("info", "k", 1)
		logger.Warn("warn", "k", 2)
		logger.Debug("debug", "k", 3)
		logger.Error("error", "k", 4)
	})
}

package receiver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_RedactsDefaultPatterns(t *testing.T) {
	s := NewSanitizer()
	props := map[string]any{
		"password": "password: hunter2",
		"apiKey":   "api_key: sk-abc123",
		"username": "alice",
	}
	out := s.SanitizeProps(props)
	assert.Contains(t, out["password"], "[REDACTED]")
	assert.Contains(t, out["apiKey"], "[REDACTED]")
	assert.Equal(t, "alice", out["username"])
}

func TestSanitizer_WalksNestedStructures(t *testing.T) {
	s := NewSanitizer()
	props := map[string]any{
		"nested": map[string]any{
			"secret": "secret: topsecret",
		},
		"list": []any{"token: abc123", "plain"},
	}
	out := s.SanitizeValue(props).(map[string]any)

	nested := out["nested"].(map[string]any)
	assert.Contains(t, nested["secret"], "[REDACTED]")

	list := out["list"].([]any)
	assert.Contains(t, list[0], "[REDACTED]")
	assert.Equal(t, "plain", list[1])
}

func TestSanitizer_NonStringLeavesPassThrough(t *testing.T) {
	s := NewSanitizer()
	out := s.SanitizeValue(42)
	assert.Equal(t, 42, out)
}

func TestSanitizer_FunctionPropsPassThrough(t *testing.T) {
	s := NewSanitizer()
	fn := func(args []any) any { return nil }
	props := map[string]any{"onPress": fn}
	out := s.SanitizeProps(props)
	assert.NotNil(t, out["onPress"])
}

func TestSanitizer_AddPatternWithPriorityOrdersApplication(t *testing.T) {
	s := &Sanitizer{}
	require := assert.New(t)
	err := s.AddPatternWithPriority(`foo`, "low", 1, "low")
	require.NoError(err)
	err = s.AddPatternWithPriority(`foo`, "high", 10, "high")
	require.NoError(err)

	out := s.SanitizeValue("foo").(string)
	require.Equal("high", out)
}

func TestSanitizer_InvalidPatternReturnsError(t *testing.T) {
	s := NewSanitizer()
	err := s.AddPatternWithPriority("(unclosed", "x", 0, "")
	assert.Error(t, err)
}

package minja

import (
	"os"
	"testing"

	"github.com/pkg/profile"
)

// largeConversationTemplate renders a long chat history, the kind of prompt
// this engine spends most of its time on in production.
const largeConversationTemplate = `{% for msg in messages -%}
<|{{ msg.role }}|>{{ msg.content }}
{% endfor -%}
{%- if add_generation_prompt %}<|assistant|>{% endif %}`

func BenchmarkRenderLargeConversation(b *testing.B) {
	if os.Getenv("MINJA_PROFILE") != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	env := NewEnvironment()
	tmpl, err := env.TemplateFromString(largeConversationTemplate)
	if err != nil {
		b.Fatal(err)
	}

	messages := make([]any, 0, 500)
	for i := 0; i < 500; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		messages = append(messages, map[string]any{
			"role":    role,
			"content": "this is message number and some filler text to pad it out",
		})
	}
	ctx := map[string]any{
		"messages":              messages,
		"add_generation_prompt": true,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tmpl.Render(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

package minja

import (
	"os"
	"strings"
	"testing"

	"github.com/jxt1234/minja/internal/testutil"
)

// chatFixtures holds inline golden fixtures for chat-prompt templates, in the
// same "$settings JSON\n---\ntemplate" input format and "metadata\n---\nexpected
// output" snapshot format testutil's parsers expect, just supplied as
// literals instead of files on disk so this package stays self-contained.
type chatFixture struct {
	name     string
	input    string // testutil.ParseTestInput format
	snapshot string // testutil.ParseSnapshot format
}

var chatFixtures = []chatFixture{
	{
		name: "system_and_turns",
		input: `{"messages": [{"role": "system", "content": "Be concise."}, {"role": "user", "content": "Hi"}, {"role": "assistant", "content": "Hello!"}]}
---
{% for message in messages %}{{ message.role }}: {{ message.content }}
{% endfor %}`,
		snapshot: `source: chat.txt
description: renders a short conversation
---
system: Be concise.
user: Hi
assistant: Hello!
`,
	},
	{
		name: "tool_call_arguments",
		// arguments is built as a dict literal inside the template rather
		// than passed in through the JSON context, since the context here
		// round-trips through encoding/json's unordered map[string]any -
		// this checks that a {"key": value, ...} literal keeps the order
		// it was written in once it reaches |items.
		input: `{"name": "search"}
---
{% set arguments = {"query": "weather", "limit": 3} %}{{ name }}({% for k, v in arguments|items %}{{ k }}={{ v }}{% if not loop.last %}, {% endif %}{% endfor %})`,
		snapshot: `source: tool_call.txt
description: preserves argument order when rendering a tool call
---
search(query=weather, limit=3)`,
	},
}

// TestChatFixtures runs each inline fixture's template against its context
// and checks the rendered output against its golden snapshot, using
// testutil's fixture/snapshot parsing helpers instead of hand-rolled string
// splitting.
func TestChatFixtures(t *testing.T) {
	for _, fx := range chatFixtures {
		t.Run(fx.name, func(t *testing.T) {
			input, err := testutil.ParseTestInput(fx.input)
			if err != nil {
				t.Fatalf("failed to parse fixture input: %v", err)
			}
			snap, err := testutil.ParseSnapshot(fx.snapshot)
			if err != nil {
				t.Fatalf("failed to parse fixture snapshot: %v", err)
			}

			env := NewEnvironment()
			tmpl, err := env.TemplateFromNamedString(fx.name, input.Template)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			got, err := tmpl.Render(input.Context)
			if err != nil {
				t.Fatalf("render error: %v", err)
			}

			want := strings.TrimSuffix(snap.Expected, "\n")
			got = strings.TrimSuffix(got, "\n")
			if got != want {
				result := &testutil.TestResult{Name: fx.name, Expected: want, Actual: got}
				t.Errorf("output mismatch:\n%s", result.Diff())
			}
		})
	}
}

// TestLoadSkipList exercises the skip-list loader against a conventional
// "name per line, # comment" skip list, the same format used to exclude
// known-divergent fixtures from a full run.
func TestLoadSkipList(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/skiplist.txt"
	content := "# not ready yet\nsome_fixture.txt\n\nanother_fixture.txt\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write skip list: %v", err)
	}

	skip, err := testutil.LoadSkipList(path)
	if err != nil {
		t.Fatalf("LoadSkipList: %v", err)
	}
	if !skip["some_fixture.txt"] || !skip["another_fixture.txt"] {
		t.Errorf("expected both fixtures to be skipped, got %v", skip)
	}
	if skip["# not ready yet"] {
		t.Errorf("comment line should not be treated as a skip entry")
	}
}

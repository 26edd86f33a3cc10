package minja

import (
	"strings"
	"testing"
)

func TestLoadOptionsYAML(t *testing.T) {
	env := NewEnvironment()
	yamlDoc := `
trim_blocks: true
fuel: 100
recursion_limit: 7
`
	if err := env.LoadOptionsYAML(strings.NewReader(yamlDoc)); err != nil {
		t.Fatalf("load options error: %v", err)
	}

	tmpl, err := env.TemplateFromString("{% if true %}\nHello{% endif %}")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out, err := tmpl.Render(nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "Hello" {
		t.Errorf("expected trim_blocks to drop the newline after the tag, got %q", out)
	}

	if env.fuelLimit != 100 {
		t.Errorf("expected fuel limit 100, got %d", env.fuelLimit)
	}
	if env.recursionLimit != 7 {
		t.Errorf("expected recursion limit 7, got %d", env.recursionLimit)
	}
}

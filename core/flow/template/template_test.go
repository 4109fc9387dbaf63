package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	vars := map[string]string{
		"name": "Astrid",
		"age":  "23",
		"city": "Oslo",
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "single", in: "Hi {name}!", want: "Hi Astrid!"},
		{name: "multiple", in: "{name} ({age}) from {city}", want: "Astrid (23) from Oslo"},
		{name: "unknown falls back to name", in: "Your plan: {plan}", want: "Your plan: plan"},
		{name: "repeated", in: "{city}, {city}", want: "Oslo, Oslo"},
		{name: "no placeholders", in: "plain text", want: "plain text"},
		{name: "empty", in: "", want: ""},
		{name: "braces without name kept", in: "set {1} here", want: "set {1} here"},
		{name: "empty value renders empty", in: "[{empty}]", want: "[]"},
	}

	vars["empty"] = ""
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(tc.in, vars))
		})
	}
}

func TestRenderIsIdempotentForStableVars(t *testing.T) {
	vars := map[string]string{"age": "23"}
	text := "You are {age} years old, {name}."
	first := Render(text, vars)
	second := Render(text, vars)
	assert.Equal(t, first, second)
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{a} then {b} then {a}")
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Empty(t, Placeholders("nothing here"))
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFlow = `
start: welcome
nodes:
  welcome:
    kind: message
    text: "Welcome, {name}!"
    next: ask_city
  ask_city:
    kind: collect
    text: "Which city are you in?"
    input:
      variable: city
      validate: text
      min_len: 2
      retry: "City names have at least two letters."
    condition:
      variable: city
      text: "Still {city}?"
      keyboard:
        - label: "Yes"
          target: done
        - label: "Change"
          skip: true
          target: done
      wait_for_input: true
    next: route
  route:
    kind: branch
    condition:
      variable: city
      next: done
    next: done
  done:
    kind: message
    text: "All set."
`

func TestParseSampleFlow(t *testing.T) {
	g, err := Parse([]byte(sampleFlow))
	require.NoError(t, err)
	assert.Equal(t, "welcome", g.Start())
	assert.Equal(t, 4, g.Len())

	n, ok := g.Node("ask_city")
	require.True(t, ok)
	assert.Equal(t, KindCollect, n.Kind)
	require.NotNil(t, n.Input)
	assert.Equal(t, "city", n.Input.Variable)
	assert.Equal(t, 2, n.Input.MinLen)
	require.NotNil(t, n.Condition)
	assert.True(t, n.Condition.WaitForInput)
	require.Len(t, n.Condition.Keyboard, 2)
	assert.True(t, n.Condition.Keyboard[1].Skip)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("start: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestParseSchemaRejectsUnknownKind(t *testing.T) {
	doc := `
start: a
nodes:
  a:
    kind: teleport
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow schema")
	assert.Contains(t, err.Error(), "/nodes/a/kind")
}

func TestParseSchemaRejectsUnknownField(t *testing.T) {
	doc := `
start: a
nodes:
  a:
    kind: message
    txet: "typo"
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow schema")
}

func TestParseSchemaRequiresInputVariable(t *testing.T) {
	doc := `
start: a
nodes:
  a:
    kind: collect
    input:
      min_len: 2
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow schema")
}

func TestParseRunsGraphValidation(t *testing.T) {
	doc := `
start: a
nodes:
  a:
    kind: message
    next: missing
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing node "missing"`)
}

// Package graph holds the static description of a conversation flow: a set
// of named nodes, the start node, and the transitions between them. A graph
// is loaded once at startup and never mutated afterwards, so lookups need no
// locking.
package graph

import (
	"fmt"
	"strings"

	"github.com/m3rciful/flowbot/core/flow/validate"
)

// NodeKind classifies what a node does when the flow reaches it.
type NodeKind string

const (
	// KindMessage renders text and optionally waits for input.
	KindMessage NodeKind = "message"
	// KindCollect renders a prompt and always waits for a variable.
	KindCollect NodeKind = "collect"
	// KindBranch renders nothing and routes on a variable predicate.
	KindBranch NodeKind = "branch"
	// KindPassthrough renders nothing and jumps straight to next.
	KindPassthrough NodeKind = "passthrough"
)

// Valid reports whether the kind is one the engine understands.
func (k NodeKind) Valid() bool {
	switch k {
	case KindMessage, KindCollect, KindBranch, KindPassthrough:
		return true
	}
	return false
}

// InputKind names an accepted way for the user to answer a waiting node.
type InputKind string

const (
	InputText   InputKind = "text"
	InputButton InputKind = "button"
	InputPhoto  InputKind = "photo"
)

// Button is one pressable option attached to a node or condition.
type Button struct {
	Label  string `yaml:"label"`
	Target string `yaml:"target,omitempty"`
	URL    string `yaml:"url,omitempty"`
	Value  string `yaml:"value,omitempty"`
	Skip   bool   `yaml:"skip,omitempty"`
	Row    int    `yaml:"row,omitempty"`
}

// InputSpec describes the answer a node waits for and where it is stored.
type InputSpec struct {
	Variable string        `yaml:"variable"`
	Modes    []InputKind   `yaml:"modes,omitempty"`
	Validate validate.Kind `yaml:"validate,omitempty"`
	MinLen   int           `yaml:"min_len,omitempty"`
	MaxLen   int           `yaml:"max_len,omitempty"`
	Retry    string        `yaml:"retry,omitempty"`
	OnSaved  string        `yaml:"on_saved,omitempty"`
}

// Accepts reports whether this input takes the given kind. An empty
// mode list accepts text only.
func (s InputSpec) Accepts(kind InputKind) bool {
	if len(s.Modes) == 0 {
		return kind == InputText
	}
	for _, m := range s.Modes {
		if m == kind {
			return true
		}
	}
	return false
}

// Condition overrides a node's rendering when a variable already holds a
// value. The conditional text and keyboard replace the node's own, and
// WaitForInput keeps the flow paused even when the node would auto-advance.
type Condition struct {
	Variable     string   `yaml:"variable"`
	Text         string   `yaml:"text,omitempty"`
	Keyboard     []Button `yaml:"keyboard,omitempty"`
	WaitForInput bool     `yaml:"wait_for_input,omitempty"`
	Next         string   `yaml:"next,omitempty"`
}

// Node is one step of the flow.
type Node struct {
	ID        string     `yaml:"-"`
	Kind      NodeKind   `yaml:"kind"`
	Text      string     `yaml:"text,omitempty"`
	Keyboard  []Button   `yaml:"keyboard,omitempty"`
	Input     *InputSpec `yaml:"input,omitempty"`
	Condition *Condition `yaml:"condition,omitempty"`
	Next      string     `yaml:"next,omitempty"`
}

// Waits reports whether reaching this node pauses the flow for user input.
func (n Node) Waits() bool {
	return n.Input != nil
}

// Graph is the loaded, validated flow definition.
type Graph struct {
	start string
	nodes map[string]Node
}

// New assembles a graph from a start id and a node map. Callers normally go
// through Load; New exists for tests and programmatic construction.
func New(start string, nodes map[string]Node) *Graph {
	indexed := make(map[string]Node, len(nodes))
	for id, n := range nodes {
		n.ID = id
		indexed[id] = n
	}
	return &Graph{start: start, nodes: indexed}
}

// Start returns the id of the entry node.
func (g *Graph) Start() string { return g.start }

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Validate checks structural soundness: the start node exists, every
// referenced node id resolves, and no cycle consists purely of nodes that
// render nothing. Render-free cycles would spin the advance loop without
// ever reaching the user.
func (g *Graph) Validate() error {
	var problems []string

	if g.start == "" {
		problems = append(problems, "start node id is empty")
	} else if _, ok := g.nodes[g.start]; !ok {
		problems = append(problems, fmt.Sprintf("start node %q does not exist", g.start))
	}

	for id, n := range g.nodes {
		if !n.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("node %q: unknown kind %q", id, n.Kind))
		}
		problems = append(problems, g.checkRefs(n)...)
		switch n.Kind {
		case KindBranch:
			if n.Condition == nil {
				problems = append(problems, fmt.Sprintf("node %q: branch without condition", id))
			}
			if n.Next == "" {
				problems = append(problems, fmt.Sprintf("node %q: branch without fallback next", id))
			}
		case KindPassthrough:
			if n.Next == "" {
				problems = append(problems, fmt.Sprintf("node %q: passthrough without next", id))
			}
		case KindCollect:
			if n.Input == nil || n.Input.Variable == "" {
				problems = append(problems, fmt.Sprintf("node %q: collect without input variable", id))
			}
		}
		if n.Input != nil && n.Input.Validate != "" && !n.Input.Validate.Valid() {
			problems = append(problems, fmt.Sprintf("node %q: unknown validation kind %q", id, n.Input.Validate))
		}
	}

	if cycle := g.silentCycle(); len(cycle) > 0 {
		problems = append(problems, fmt.Sprintf("render-free cycle: %s", strings.Join(cycle, " -> ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid flow graph: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (g *Graph) checkRefs(n Node) []string {
	var problems []string
	check := func(target, what string) {
		if target == "" {
			return
		}
		if _, ok := g.nodes[target]; !ok {
			problems = append(problems, fmt.Sprintf("node %q: %s points to missing node %q", n.ID, what, target))
		}
	}
	check(n.Next, "next")
	for _, b := range n.Keyboard {
		check(b.Target, fmt.Sprintf("button %q", b.Label))
	}
	if n.Condition != nil {
		check(n.Condition.Next, "condition next")
		for _, b := range n.Condition.Keyboard {
			check(b.Target, fmt.Sprintf("condition button %q", b.Label))
		}
	}
	return problems
}

// silentCycle walks next edges across nodes that render nothing and wait for
// nothing. Returns the first cycle found, or nil.
func (g *Graph) silentCycle() []string {
	silent := func(n Node) bool {
		return (n.Kind == KindBranch || n.Kind == KindPassthrough) && !n.Waits()
	}
	const (
		unseen = 0
		active = 1
		done   = 2
	)
	state := make(map[string]int, len(g.nodes))
	var cycle []string

	var visit func(id string, trail []string) bool
	visit = func(id string, trail []string) bool {
		n, ok := g.nodes[id]
		if !ok || !silent(n) {
			return false
		}
		switch state[id] {
		case done:
			return false
		case active:
			cycle = append(trail, id)
			return true
		}
		state[id] = active
		trail = append(trail, id)
		targets := []string{n.Next}
		if n.Condition != nil && n.Condition.Next != "" {
			targets = append(targets, n.Condition.Next)
		}
		for _, t := range targets {
			if t != "" && visit(t, trail) {
				return true
			}
		}
		state[id] = done
		return false
	}

	for id := range g.nodes {
		if state[id] == unseen && visit(id, nil) {
			return cycle
		}
	}
	return nil
}

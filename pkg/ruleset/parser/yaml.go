package parser

import (
	"gopkg.in/yaml.v3"
)

// Intermediate structures mirror the YAML layout before conversion into
// rule types. Each one records where it started and which keys it carried
// so the builder can report unknown fields with locations.

type position struct {
	line, column int
	keys         []keyPos
}

type keyPos struct {
	name         string
	line, column int
}

func (p *position) capture(n *yaml.Node) {
	p.line, p.column = n.Line, n.Column
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		p.keys = append(p.keys, keyPos{name: k.Value, line: k.Line, column: k.Column})
	}
}

type yamlRuleSet struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description"`
	Scope       string     `yaml:"scope"`
	Duplicates  string     `yaml:"duplicate_ids"`
	Facts       yaml.Node  `yaml:"facts"`
	Rules       []yamlRule `yaml:"rules"`
	Tests       []yamlTest `yaml:"tests"`

	pos position
}

func (s *yamlRuleSet) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlRuleSet
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.pos.capture(n)
	return nil
}

type yamlRule struct {
	ID            string             `yaml:"id"`
	Description   string             `yaml:"description"`
	Event         string             `yaml:"event"`
	Condition     yaml.Node          `yaml:"condition"`
	Modifications []yamlModification `yaml:"modifications"`
	Actions       []string           `yaml:"actions"`
	Outputs       []string           `yaml:"outputs"`
	ConsumeEvent  bool               `yaml:"consume_event"`
	EmitOnChange  bool               `yaml:"emit_on_change"`
	Priority      int                `yaml:"priority"`
	Enabled       *bool              `yaml:"enabled"` // nil means enabled

	pos position
}

func (r *yamlRule) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlRule
	if err := n.Decode((*plain)(r)); err != nil {
		return err
	}
	r.pos.capture(n)
	return nil
}

type yamlModification struct {
	Op    string    `yaml:"op"`
	Key   string    `yaml:"key"`
	Layer string    `yaml:"layer"`
	Value yaml.Node `yaml:"value"` // literal
	Expr  string    `yaml:"expr"`  // expression, alternative to value
	Min   yaml.Node `yaml:"min"`
	Max   yaml.Node `yaml:"max"`

	pos position
}

func (m *yamlModification) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlModification
	if err := n.Decode((*plain)(m)); err != nil {
		return err
	}
	m.pos.capture(n)
	return nil
}

type yamlTest struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Facts       yaml.Node  `yaml:"facts"`
	Steps       []yamlStep `yaml:"steps"`

	pos position
}

func (t *yamlTest) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlTest
	if err := n.Decode((*plain)(t)); err != nil {
		return err
	}
	t.pos.capture(n)
	return nil
}

type yamlStep struct {
	Enter  []string    `yaml:"enter"`
	Exit   []string    `yaml:"exit"`
	Emit   []yamlEvent `yaml:"emit"`
	Repeat int         `yaml:"repeat"`
	Expect *yamlExpect `yaml:"expect"`

	pos position
}

func (s *yamlStep) UnmarshalYAML(n *yaml.Node) error {
	type plain yamlStep
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.pos.capture(n)
	return nil
}

// yamlEvent accepts either a bare event name or {event, payload}.
type yamlEvent struct {
	Event   string            `yaml:"event"`
	Payload map[string]string `yaml:"payload"`
}

func (e *yamlEvent) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		e.Event = n.Value
		return nil
	}
	type plain yamlEvent
	return n.Decode((*plain)(e))
}

type yamlExpect struct {
	Facts      yaml.Node `yaml:"facts"`
	Absent     []string  `yaml:"absent"`
	Actions    *[]string `yaml:"actions"` // pointer keeps "actions: []" distinct from unset
	NotActions []string  `yaml:"not_actions"`
	Fired      []string  `yaml:"fired"`
	Overflow   *bool     `yaml:"overflow"`
}

var (
	ruleSetFields      = []string{"name", "version", "description", "scope", "duplicate_ids", "facts", "rules", "tests"}
	ruleFields         = []string{"id", "description", "event", "condition", "modifications", "actions", "outputs", "consume_event", "emit_on_change", "priority", "enabled"}
	modificationFields = []string{"op", "key", "layer", "value", "expr", "min", "max"}
	testFields         = []string{"name", "description", "facts", "steps"}
	stepFields         = []string{"enter", "exit", "emit", "repeat", "expect"}
)

// parseYAMLBytes decodes data into the intermediate structure.
func parseYAMLBytes(data []byte) (*yamlRuleSet, error) {
	var set yamlRuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

package core

import (
	"encoding/json"
	"time"
)

// Level is one escalation entry of a ProstheticConfig.
// Implementations: Advisory, Constraint, Intervention, Disqualification.
type Level interface {
	Severity() int
	CapabilityName() string
}

// Advisory is soft level-1 guidance prepended to the system prompt
type Advisory struct {
	Capability string `json:"capability"`
	Text       string `json:"text"`
}

// Constraint is hard level-2 guidance prepended to the system prompt
type Constraint struct {
	Capability string `json:"capability"`
	Text       string `json:"text"`
}

// Intervention is a level-3 rule applied to tool calls before execution
type Intervention struct {
	Trigger string `json:"trigger"` // lowercase capability name
	Action  string `json:"action"`  // block | warn
	Message string `json:"message"`
}

// Disqualification removes a capability from a model at level 4
type Disqualification struct {
	Capability string `json:"capability"`
}

const (
	InterventionBlock = "block"
	InterventionWarn  = "warn"
)

func (a Advisory) Severity() int { return 1 }
func (a Advisory) CapabilityName() string { return a.Capability }
func (c Constraint) Severity() int { return 2 }
func (c Constraint) CapabilityName() string { return c.Capability }
func (i Intervention) Severity() int { return 3 }
func (i Intervention) CapabilityName() string { return i.Trigger }
func (d Disqualification) Severity() int { return 4 }
func (d Disqualification) CapabilityName() string { return d.Capability }

// ProstheticConfig is the escalating compensation of one model
type ProstheticConfig struct {
	ModelID   string
	Levels    []Level
	UpdatedAt time.Time
}

// Advisories returns the level-1 texts in order
func (p ProstheticConfig) Advisories() []string {
	var out []string
	for _, l := range p.Levels {
		if a, ok := l.(Advisory); ok {
			out = append(out, a.Text)
		}
	}
	return out
}

// Constraints returns the level-2 texts in order
func (p ProstheticConfig) Constraints() []string {
	var out []string
	for _, l := range p.Levels {
		if c, ok := l.(Constraint); ok {
			out = append(out, c.Text)
		}
	}
	return out
}

// Interventions returns the level-3 rules in order
func (p ProstheticConfig) Interventions() []Intervention {
	var out []Intervention
	for _, l := range p.Levels {
		if i, ok := l.(Intervention); ok {
			out = append(out, i)
		}
	}
	return out
}

// Disqualifications returns the disqualified capability names in order
func (p ProstheticConfig) Disqualifications() []string {
	var out []string
	for _, l := range p.Levels {
		if d, ok := l.(Disqualification); ok {
			out = append(out, d.Capability)
		}
	}
	return out
}

// IsDisqualified reports whether the capability is disqualified
func (p ProstheticConfig) IsDisqualified(capability string) bool {
	for _, l := range p.Levels {
		if d, ok := l.(Disqualification); ok && d.Capability == capability {
			return true
		}
	}
	return false
}

// HighestLevel returns the highest severity recorded for the capability, 0 when none.
// Interventions are matched by their lowercase trigger.
func (p ProstheticConfig) HighestLevel(capability string, lower string) int {
	highest := 0
	for _, l := range p.Levels {
		name := l.CapabilityName()
		if name != capability && name != lower {
			continue
		}
		if s := l.Severity(); s > highest {
			highest = s
		}
	}
	return highest
}

type prostheticJSON struct {
	ModelID                 string         `json:"modelId"`
	Level1Prompts           []string       `json:"level1Prompts"`
	Level2Constraints       []string       `json:"level2Constraints"`
	Level3Interventions     []Intervention `json:"level3Interventions"`
	Level4Disqualifications []string       `json:"level4Disqualifications"`
	Level1Capabilities      []string       `json:"level1Capabilities,omitempty"`
	Level2Capabilities      []string       `json:"level2Capabilities,omitempty"`
	UpdatedAt               time.Time      `json:"updatedAt"`
}

// MarshalJSON encodes the config in its four-array persisted form
func (p ProstheticConfig) MarshalJSON() ([]byte, error) {
	out := prostheticJSON{
		ModelID:                 p.ModelID,
		Level1Prompts:           []string{},
		Level2Constraints:       []string{},
		Level3Interventions:     []Intervention{},
		Level4Disqualifications: []string{},
		UpdatedAt:               p.UpdatedAt,
	}
	for _, l := range p.Levels {
		switch v := l.(type) {
		case Advisory:
			out.Level1Prompts = append(out.Level1Prompts, v.Text)
			out.Level1Capabilities = append(out.Level1Capabilities, v.Capability)
		case Constraint:
			out.Level2Constraints = append(out.Level2Constraints, v.Text)
			out.Level2Capabilities = append(out.Level2Capabilities, v.Capability)
		case Intervention:
			out.Level3Interventions = append(out.Level3Interventions, v)
		case Disqualification:
			out.Level4Disqualifications = append(out.Level4Disqualifications, v.Capability)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the four-array persisted form
func (p *ProstheticConfig) UnmarshalJSON(data []byte) error {
	var in prostheticJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.ModelID = in.ModelID
	p.UpdatedAt = in.UpdatedAt
	p.Levels = nil
	for i, text := range in.Level1Prompts {
		p.Levels = append(p.Levels, Advisory{Capability: at(in.Level1Capabilities, i), Text: text})
	}
	for i, text := range in.Level2Constraints {
		p.Levels = append(p.Levels, Constraint{Capability: at(in.Level2Capabilities, i), Text: text})
	}
	for _, iv := range in.Level3Interventions {
		p.Levels = append(p.Levels, iv)
	}
	for _, c := range in.Level4Disqualifications {
		p.Levels = append(p.Levels, Disqualification{Capability: c})
	}
	return nil
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

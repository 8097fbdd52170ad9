// Package scenario models a multi-step request flow: templated payloads,
// per-step assertions, and think-time.
package scenario

import (
	"encoding/json"
	"time"
)

// Scenario is an ordered list of Steps plus scenario-wide defaults and
// variables, matching the v1 JSON schema
// { schema_version, base_url?, method?, headers?, data?, vars?, steps[] }.
type Scenario struct {
	SchemaVersion int               `json:"schema_version" yaml:"schema_version"`
	BaseURL       string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Method        string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Data          json.RawMessage   `json:"data,omitempty" yaml:"data,omitempty"`
	Vars          map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
	Steps         []Step            `json:"steps" yaml:"steps"`
}

// Step is one request within a Scenario: { name?, method?, url?|path?,
// headers?, data?, assert_status?, assert_body_contains?, think_time?,
// vars? }.
type Step struct {
	Name               string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method             string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL                string            `json:"url,omitempty" yaml:"url,omitempty"`
	Path               string            `json:"path,omitempty" yaml:"path,omitempty"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Data               json.RawMessage   `json:"data,omitempty" yaml:"data,omitempty"`
	AssertStatus       *int              `json:"assert_status,omitempty" yaml:"assert_status,omitempty"`
	AssertBodyContains string            `json:"assert_body_contains,omitempty" yaml:"assert_body_contains,omitempty"`
	ThinkTimeRaw        string           `json:"think_time,omitempty" yaml:"think_time,omitempty"`
	Vars               map[string]string `json:"vars,omitempty" yaml:"vars,omitempty"`
}

// ThinkTime parses the step's think_time field, defaulting to 0 when unset
// or unparsable (a malformed duration does not abort the scenario; it is
// treated as no think-time).
func (s Step) ThinkTime() time.Duration {
	if s.ThinkTimeRaw == "" {
		return 0
	}
	d, err := time.ParseDuration(s.ThinkTimeRaw)
	if err != nil {
		return 0
	}
	return d
}

// EffectiveMethod returns the step's method, falling back to the scenario
// default and finally GET.
func (s Step) EffectiveMethod(scenarioDefault string) string {
	switch {
	case s.Method != "":
		return s.Method
	case scenarioDefault != "":
		return scenarioDefault
	default:
		return "GET"
	}
}

// SingleURL builds a one-step scenario for single-URL mode.
func SingleURL(method, url string) *Scenario {
	return &Scenario{
		SchemaVersion: 1,
		Steps: []Step{
			{Method: method, URL: url},
		},
	}
}

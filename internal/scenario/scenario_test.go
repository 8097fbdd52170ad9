package scenario

import "testing"

func TestVarsRenderPrecedence(t *testing.T) {
	v := NewVars(map[string]string{"token": "scenario-token", "x": "scenario-x"},
		map[string]string{"token": "step-token"}, 3, 42)

	if got := v.Render("Bearer {{token}}"); got != "Bearer step-token" {
		t.Fatalf("step var should win, got %q", got)
	}
	if got := v.Render("{{x}}"); got != "scenario-x" {
		t.Fatalf("scenario var fallback failed, got %q", got)
	}
	if got := v.Render("{{seq}}/{{step}}"); got != "42/3" {
		t.Fatalf("builtins failed, got %q", got)
	}
}

func TestVarsRenderUnresolvedLeftVerbatim(t *testing.T) {
	v := NewVars(nil, nil, 0, 0)
	if got := v.Render("{{unknown}}"); got != "{{unknown}}" {
		t.Fatalf("unresolved var should be left verbatim, got %q", got)
	}
}

func TestAssertBodyContainsSubstring(t *testing.T) {
	if !AssertBodyContains([]byte(`{"token":"abc"}`), "token") {
		t.Fatal("expected substring match")
	}
	if AssertBodyContains([]byte(`{"ok":true}`), "token") {
		t.Fatal("expected no match")
	}
}

func TestAssertBodyContainsGjsonPath(t *testing.T) {
	if !AssertBodyContains([]byte(`{"data":{"token":"abc"}}`), "data.token") {
		t.Fatal("expected gjson path match")
	}
	if AssertBodyContains([]byte(`{"data":{}}`), "data.token") {
		t.Fatal("expected gjson path to not exist")
	}
}

func TestAssertStatus(t *testing.T) {
	expect := 200
	if !AssertStatus(200, &expect) {
		t.Fatal("expected status match")
	}
	if AssertStatus(500, &expect) {
		t.Fatal("expected status mismatch")
	}
	if !AssertStatus(999, nil) {
		t.Fatal("nil expectation should always pass")
	}
}

func TestLoadJSONValid(t *testing.T) {
	data := []byte(`{
		"schema_version": 1,
		"base_url": "http://example.com",
		"steps": [
			{"method": "GET", "path": "/health", "assert_status": 200},
			{"method": "POST", "path": "/login", "assert_status": 200, "assert_body_contains": "token"}
		]
	}`)
	sc, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sc.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(sc.Steps))
	}
}

func TestLoadYAMLValid(t *testing.T) {
	data := []byte("schema_version: 1\nbase_url: http://example.com\nsteps:\n  - method: GET\n    path: /health\n")
	sc, err := Load(data)
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if sc.Steps[0].Path != "/health" {
		t.Fatalf("unexpected path %q", sc.Steps[0].Path)
	}
}

func TestLoadMissingStepsRejected(t *testing.T) {
	data := []byte(`{"schema_version": 1}`)
	if _, err := Load(data); err == nil {
		t.Fatal("expected schema validation error for missing steps")
	}
}

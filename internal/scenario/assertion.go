package scenario

import (
	"strings"

	"github.com/tidwall/gjson"
)

// AssertBodyContains reports whether body satisfies target. A target that
// looks like a gjson path (contains '.' or '[') is evaluated as a JSON path
// existence check; otherwise it falls back to a plain substring match, per
// the scenario executor's assertion contract.
func AssertBodyContains(body []byte, target string) bool {
	if target == "" {
		return true
	}
	if strings.ContainsAny(target, ".[") && gjson.ValidBytes(body) {
		return gjson.GetBytes(body, target).Exists()
	}
	return strings.Contains(string(body), target)
}

// AssertStatus reports whether status matches the step's expected status,
// when one is configured. A nil expectation always passes.
func AssertStatus(status int, expected *int) bool {
	if expected == nil {
		return true
	}
	return status == *expected
}

package scenario

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Vars resolves `{{var}}` substitution in precedence order: step vars,
// scenario vars, then built-ins (seq, step, timestamp_ms, timestamp_s).
// One Vars is built per worker iteration; Seq is worker-local and
// monotonically increasing across that worker's iterations.
type Vars struct {
	stepVars     map[string]string
	scenarioVars map[string]string
	stepIndex    int
	seq          int64
	now          time.Time
}

// NewVars builds the substitution context for one step execution.
func NewVars(scenarioVars, stepVars map[string]string, stepIndex int, seq int64) Vars {
	return Vars{
		stepVars:     stepVars,
		scenarioVars: scenarioVars,
		stepIndex:    stepIndex,
		seq:          seq,
		now:          time.Now(),
	}
}

func (v Vars) lookup(name string) (string, bool) {
	if val, ok := v.stepVars[name]; ok {
		return val, true
	}
	if val, ok := v.scenarioVars[name]; ok {
		return val, true
	}
	switch name {
	case "seq":
		return strconv.FormatInt(v.seq, 10), true
	case "step":
		return strconv.Itoa(v.stepIndex), true
	case "timestamp_ms":
		return strconv.FormatInt(v.now.UnixMilli(), 10), true
	case "timestamp_s":
		return strconv.FormatInt(v.now.Unix(), 10), true
	}
	return "", false
}

// Render substitutes every `{{var}}` occurrence in s. An unresolved
// variable is left verbatim (including its braces) rather than erroring.
func (v Vars) Render(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start == -1 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			b.WriteString(s[start:])
			break
		}
		end += start
		name := strings.TrimSpace(s[start+2 : end])
		if val, ok := v.lookup(name); ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : end+2])
		}
		i = end + 2
	}
	return b.String()
}

// RenderMap renders every value in m, returning a new map.
func (v Vars) RenderMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = v.Render(val)
	}
	return out
}

// WorkerSeq is the per-worker monotonic counter backing the `seq` built-in.
type WorkerSeq struct {
	n atomic.Int64
}

// Next returns the next sequence value, starting at 0.
func (w *WorkerSeq) Next() int64 { return w.n.Add(1) - 1 }

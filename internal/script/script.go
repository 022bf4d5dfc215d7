// Package script turns a free-form completion into a renderable Manim script
// and knows how to name and archive it.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultSceneName is used when neither the code nor the response names a
// usable scene class.
const DefaultSceneName = "GeneratedScene"

var ErrEmptyScript = errors.New("completion contained no script")

// SceneBases are the Manim base classes a renderable scene may derive from.
var SceneBases = []string{"Scene", "MovingCameraScene", "ThreeDScene"}

// Generated is one script returned by the completion service. It lives only
// for the duration of a render.
type Generated struct {
	Code              string  `json:"code"`
	SceneName         string  `json:"scene_name"`
	Description       string  `json:"description"`
	EstimatedDuration float64 `json:"estimated_duration"`
	Filename          string  `json:"filename,omitempty"`
	// Raw is the untouched completion text.
	Raw string `json:"-"`
}

var (
	classRe      = regexp.MustCompile(`(?m)^[ \t]*class[ \t]+([A-Za-z_]\w*)[ \t]*\(([^)]*)\)[ \t]*:`)
	identRe      = regexp.MustCompile(`^[A-Za-z_]\w*$`)
	pythonFence  = regexp.MustCompile("(?s)```(?:python|py)[ \t]*\r?\n(.*?)```")
	genericFence = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)```")
)

// ParseResponse extracts a script from a completion. It accepts, in order:
// a JSON object (optionally fenced), a fenced python block, or bare code.
// The scene name is always taken from the code when possible.
func ParseResponse(raw string) (*Generated, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrEmptyScript
	}

	g, isJSON := parseJSON(text)
	if isJSON && strings.TrimSpace(g.Code) == "" {
		return nil, fmt.Errorf("%w: JSON object without code", ErrEmptyScript)
	}
	if g == nil {
		g = &Generated{Code: extractCode(text)}
	}
	g.Raw = raw
	g.Code = strings.TrimSpace(g.Code)
	if g.Code == "" {
		return nil, ErrEmptyScript
	}

	g.SceneName = ResolveSceneName(g.Code, g.SceneName)
	return g, nil
}

// parseJSON reports whether text holds the JSON answer. An object counts when
// it carries a "code" key or is the whole answer: {"error": "..."} is never
// taken for code, and a dict literal inside bare Python is not taken for JSON.
func parseJSON(text string) (*Generated, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	body := []byte(text[start : end+1])

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}
	if _, ok := fields["code"]; !ok && !wholeAnswer(text, start, end) {
		return nil, false
	}

	var g Generated
	if err := json.Unmarshal(body, &g); err != nil {
		return nil, false
	}
	return &g, true
}

// wholeAnswer reports whether only whitespace or a code fence surrounds the
// object at text[start:end+1].
func wholeAnswer(text string, start, end int) bool {
	before := strings.TrimSpace(text[:start])
	after := strings.TrimSpace(text[end+1:])
	return (before == "" || before == "```json" || before == "```") && (after == "" || after == "```")
}

func extractCode(text string) string {
	if m := pythonFence.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := genericFence.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// ExtractSceneName returns the first class deriving from one of SceneBases,
// bare or module-qualified. It returns "" when there is none.
func ExtractSceneName(code string) string {
	for _, m := range classRe.FindAllStringSubmatch(code, -1) {
		for _, base := range strings.Split(m[2], ",") {
			base = strings.TrimSpace(base)
			if i := strings.LastIndex(base, "."); i >= 0 {
				base = base[i+1:]
			}
			for _, known := range SceneBases {
				if base == known {
					return m[1]
				}
			}
		}
	}
	return ""
}

// ResolveSceneName prefers the class found in code, then the declared name if
// it is a valid identifier, then DefaultSceneName.
func ResolveSceneName(code, declared string) string {
	if name := ExtractSceneName(code); name != "" {
		return name
	}
	declared = strings.TrimSpace(declared)
	if identRe.MatchString(declared) {
		return declared
	}
	return DefaultSceneName
}

var (
	ForbiddenModules = []string{"os", "subprocess", "sys", "shutil"}
	ForbiddenCalls   = []string{"open", "exec", "eval", "__import__"}

	importRe     = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+([\w.]+(?:[ \t]*,[ \t]*[\w.]+)*)`)
	fromImportRe = regexp.MustCompile(`(?m)^[ \t]*from[ \t]+([\w.]+)[ \t]+import\b`)
	callRe       = regexp.MustCompile(`(?:^|[^\w.])(open|exec|eval|__import__)[ \t]*\(`)
)

// ValidationError lists every unsafe construct found in a script.
type ValidationError struct {
	Findings []string
}

func (e *ValidationError) Error() string {
	return "potentially dangerous operations detected: " + strings.Join(e.Findings, ", ")
}

// Validate rejects scripts that reach outside the scene sandbox. It is a
// line-level check, not a parser; comments are ignored.
func Validate(code string) error {
	var findings []string
	clean := stripComments(code)

	for _, m := range importRe.FindAllStringSubmatch(clean, -1) {
		for _, mod := range strings.Split(m[1], ",") {
			root := strings.SplitN(strings.TrimSpace(mod), ".", 2)[0]
			if contains(ForbiddenModules, root) {
				findings = append(findings, fmt.Sprintf("import of '%s' module", root))
			}
		}
	}
	for _, m := range fromImportRe.FindAllStringSubmatch(clean, -1) {
		root := strings.SplitN(m[1], ".", 2)[0]
		if contains(ForbiddenModules, root) {
			findings = append(findings, fmt.Sprintf("import from '%s' module", root))
		}
	}
	for _, line := range strings.Split(clean, "\n") {
		for _, m := range callRe.FindAllStringSubmatch(line, -1) {
			findings = append(findings, fmt.Sprintf("call to '%s' function", m[1]))
		}
	}

	if len(findings) > 0 {
		return &ValidationError{Findings: findings}
	}
	return nil
}

func stripComments(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "#"); idx >= 0 && !strings.ContainsAny(line[:idx], `"'`) {
			lines[i] = line[:idx]
		}
	}
	return strings.Join(lines, "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Package jsonextract pulls a JSON value out of free-form LLM output:
// chain-of-thought preambles, fenced code blocks, multiple concatenated
// objects, inline comments, and truncated structures all show up in
// practice. Extract tries a sequence of strategies, in order of how
// "clean" the response has to be, and returns the first one that parses.
package jsonextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedBlockPattern  = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\})\s*` + "```")
	thinkTagPattern     = regexp.MustCompile(`(?s)</think>\s*(\{.*\})`)
	multiClaimsPattern  = regexp.MustCompile(`(?s)(\{"claims":\s*\[.*?\]\s*\})`)
	taxonomyPattern     = regexp.MustCompile(`(?s)(\{"taxonomy".*?\}\s*\]?\s*\})`)
	looseTaxonomyPat    = regexp.MustCompile(`(?s)(\{[^{}]*"taxonomy"[^{}]*\[.*?\]\s*\})`)
	looseClaimsPattern  = regexp.MustCompile(`(?s)(\{"claims":\s*\[.*?\]\s*\})`)
	introProsePattern   = regexp.MustCompile(`(?is)(?:output|result|JSON|taxonomy|claims):\s*(\{.*?\})`)
)

// Extract runs the layered strategy chain and returns the first value that
// parses as valid JSON, either an object or an array. The caller coerces
// the returned raw message into whatever shape the stage expects.
func Extract(text string) (json.RawMessage, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, fmt.Errorf("jsonextract: empty input")
	}

	if v, ok := tryParse(content); ok {
		return v, nil
	}
	if v, ok := tryParse(stripComments(content)); ok {
		return v, nil
	}
	if v, ok := fromFencedBlock(content); ok {
		return v, nil
	}
	if v, ok := fromThinkTag(content); ok {
		return v, nil
	}
	if v, ok := fromMultipleClaimsObjects(content); ok {
		return v, nil
	}
	if v, ok := fromPattern(content, taxonomyPattern, "taxonomy"); ok {
		return v, nil
	}
	if v, ok := fromPattern(content, looseTaxonomyPat, ""); ok {
		return v, nil
	}
	if v, ok := fromPattern(content, looseClaimsPattern, ""); ok {
		return v, nil
	}
	if v, ok := fromIntroProse(content); ok {
		return v, nil
	}
	if v, ok := fromBracketScanRepair(content); ok {
		return v, nil
	}

	preview := content
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return nil, fmt.Errorf("jsonextract: no strategy could extract valid JSON from response: %s...", preview)
}

func tryParse(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	return json.RawMessage(s), true
}

func parseWithCommentFallback(candidate string, fieldName string) (json.RawMessage, bool) {
	candidate = strings.TrimSpace(candidate)
	if fieldName == "taxonomy" && !strings.HasSuffix(candidate, "}") {
		candidate += "}"
	}
	if v, ok := tryParse(candidate); ok {
		return v, true
	}
	return tryParse(stripComments(candidate))
}

func fromFencedBlock(content string) (json.RawMessage, bool) {
	m := fencedBlockPattern.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	return parseWithCommentFallback(m[1], "")
}

func fromThinkTag(content string) (json.RawMessage, bool) {
	m := thinkTagPattern.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	return parseWithCommentFallback(m[1], "")
}

// fromMultipleClaimsObjects handles the common pathological case where the
// model emits more than one top-level {"claims": [...]} object back to
// back; the individual claims arrays are concatenated.
func fromMultipleClaimsObjects(content string) (json.RawMessage, bool) {
	matches := multiClaimsPattern.FindAllStringSubmatch(content, -1)
	if len(matches) <= 1 {
		return nil, false
	}
	return mergeClaimsObjects(matches)
}

func mergeClaimsObjects(matches [][]string) (json.RawMessage, bool) {
	var all []json.RawMessage
	for _, m := range matches {
		var obj struct {
			Claims []json.RawMessage `json:"claims"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &obj); err != nil {
			continue
		}
		all = append(all, obj.Claims...)
	}
	if len(all) == 0 {
		return nil, false
	}
	return marshalClaims(all)
}

func marshalClaims(claims []json.RawMessage) (json.RawMessage, bool) {
	out, err := json.Marshal(struct {
		Claims []json.RawMessage `json:"claims"`
	}{Claims: claims})
	if err != nil {
		return nil, false
	}
	return out, true
}

func fromPattern(content string, pattern *regexp.Regexp, fieldName string) (json.RawMessage, bool) {
	m := pattern.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	return parseWithCommentFallback(m[1], fieldName)
}

func fromIntroProse(content string) (json.RawMessage, bool) {
	m := introProsePattern.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	return tryParse(m[1])
}

// fromBracketScanRepair is the last resort: take the substring spanning
// the first '{' to the last '}', and if it looks like several concatenated
// {"claims":...} objects, walk brace depth to split and merge them.
func fromBracketScanRepair(content string) (json.RawMessage, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	candidate := content[start : end+1]

	if strings.Count(candidate, `{"claims"`) > 1 {
		if v, ok := splitConcatenatedClaimsObjects(candidate); ok {
			return v, true
		}
	}

	return parseWithCommentFallback(candidate, "")
}

func splitConcatenatedClaimsObjects(content string) (json.RawMessage, bool) {
	var matches [][]string
	remaining := content
	for strings.Contains(remaining, `{"claims"`) {
		start := strings.Index(remaining, `{"claims"`)
		if start == -1 {
			break
		}
		depth := 0
		end := -1
		for i := start; i < len(remaining); i++ {
			switch remaining[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end != -1 {
				break
			}
		}
		if end == -1 || end <= start {
			break
		}
		matches = append(matches, []string{"", remaining[start : end+1]})
		remaining = remaining[end+1:]
	}
	if len(matches) == 0 {
		return nil, false
	}
	return mergeClaimsObjects(matches)
}

// stripComments removes "//" line comments that occur outside of string
// literals, tracking backslash escapes and quote state per line. Lines
// that become empty after stripping are dropped.
func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		inString := false
		escapeNext := false
		commentPos := -1

		for i := 0; i < len(line); i++ {
			c := line[i]
			if escapeNext {
				escapeNext = false
				continue
			}
			if c == '\\' {
				escapeNext = true
				continue
			}
			if c == '"' {
				inString = !inString
				continue
			}
			if !inString && c == '/' && i+1 < len(line) && line[i+1] == '/' {
				commentPos = i
				break
			}
		}

		if commentPos >= 0 {
			line = strings.TrimRight(line[:commentPos], " \t")
		}
		if strings.TrimSpace(line) != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}

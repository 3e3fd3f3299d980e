package questions

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

var (
	codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	// "1.", "2)", "(3)", "٤-", "۵:", "Q1:", "س1:", "سؤال ١:"
	numbering = regexp.MustCompile(`^(?:(?:سؤال|س|Q|q)\s*)?[(\[]?[0-9٠-٩۰-۹]+[)\].:\-–،]+\s*`)
)

const (
	bulletRunes = "-*•·–—▪◦●○+>"
	quoteRunes  = "\"'«»“”„‟‘’`"
)

// ParseStructured reads a JSON reply: either an array of strings or an
// object with a "questions" array. Markdown code fences are tolerated.
func ParseStructured(reply string) ([]string, bool) {
	text := strings.TrimSpace(reply)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if text == "" || (text[0] != '[' && text[0] != '{') {
		return nil, false
	}

	var list []string
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		var obj struct {
			Questions []string `json:"questions"`
		}
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, false
		}
		list = obj.Questions
	}

	out := make([]string, 0, len(list))
	for _, q := range list {
		if q = cleanLine(q); q != "" {
			out = append(out, q)
		}
	}
	return out, len(out) > 0
}

// ParseHeuristic splits a free-text reply into lines, strips numbering
// (Latin, Arabic-Indic and Persian digits), bullets and quotes, and drops
// heading lines. When any line is phrased as a question, only question
// lines are kept.
func ParseHeuristic(reply string) []string {
	var lines, asked []string
	for _, raw := range strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n") {
		line := cleanLine(raw)
		if line == "" || isHeading(line) {
			continue
		}
		lines = append(lines, line)
		if strings.ContainsAny(line, "?؟") {
			asked = append(asked, line)
		}
	}
	if len(asked) > 0 {
		return asked
	}
	return lines
}

func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	for {
		before := s
		s = strings.TrimLeft(s, bulletRunes)
		s = strings.TrimSpace(s)
		s = numbering.ReplaceAllString(s, "")
		s = strings.TrimSpace(strings.Trim(s, quoteRunes+"*_"))
		if s == before {
			break
		}
	}
	if !hasLetter(s) {
		return ""
	}
	return s
}

func isHeading(s string) bool {
	return strings.HasSuffix(s, ":") || strings.HasSuffix(s, "：")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

package sanitizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Result reports the outcome of a validation pass. When Valid is false,
// Sanitized holds the original input untouched and must not be used.
type Result struct {
	Valid     bool
	Sanitized interface{}
	Warnings  []string
}

type namedPattern struct {
	name    string
	pattern *regexp.Regexp
}

// SQL-like injection detectors, checked in order; the first match marks the
// input invalid.
var sqlPatterns = []namedPattern{
	{"sql_keywords", regexp.MustCompile(`(?i)\b(?:SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|UNION|DECLARE|EXEC(?:UTE)?)\b\s+\w`)},
	{"quote_comment", regexp.MustCompile(`['"][^'"]*(?:--|#|/\*)`)},
	{"tautology", regexp.MustCompile(`(?i)(?:['"]\s*OR\s+['"]?\d+['"]?\s*=|\b(?:OR|AND)\s+\d+\s*=\s*\d+)`)},
	{"shell_exec", regexp.MustCompile(`(?i)(?:\b(?:exec|system|eval|shell_exec|popen)\s*\(|[;&|]\s*(?:ls|cat|rm|wget|curl|nc|bash|sh)\b)`)},
}

// Markup injection detectors. A match is reported as a warning; the content
// is removed during sanitization instead of rejecting the input outright.
var xssPatterns = []namedPattern{
	{"script_tag", regexp.MustCompile(`(?i)<[^>]*script`)},
	{"javascript_uri", regexp.MustCompile(`(?i)javascript:`)},
	{"event_handler", regexp.MustCompile(`(?i)\bon\w+\s*=`)},
	{"iframe_tag", regexp.MustCompile(`(?i)<[^>]*iframe`)},
}

var dangerousSequences = []string{`<`, `>`, `"`, `'`, `&`, `;`, `--`, `/*`, `*/`}

var (
	markupTagPattern   = regexp.MustCompile(`<[^>]*>`)
	jsPrefixPattern    = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerRemove = regexp.MustCompile(`(?i)\bon\w+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]*)`)
)

// Sanitizer validates and cleans caller-supplied payloads. It is stateless
// and safe for concurrent use.
type Sanitizer struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Sanitizer {
	return &Sanitizer{logger: logger}
}

// Validate runs the ordered detectors over the serialized textual form of
// data. SQL-like matches mark the input invalid; markup matches and
// dangerous character sequences only add warnings. Valid input is returned
// sanitized; invalid input is returned as-is. Faults never escape the
// sanitizer boundary.
func (s *Sanitizer) Validate(data interface{}, dataType string) (result Result) {
	if dataType == "" {
		dataType = "general"
	}
	result = Result{Valid: true, Sanitized: data}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("input validation panicked")
			result = Result{
				Valid:     false,
				Sanitized: data,
				Warnings:  append(result.Warnings, "internal validation error"),
			}
		}
	}()

	text, err := serialize(data)
	if err != nil {
		result.Valid = false
		result.Warnings = append(result.Warnings, fmt.Sprintf("input is not serializable: %v", err))
		return result
	}

	for _, p := range sqlPatterns {
		if p.pattern.MatchString(text) {
			result.Valid = false
			result.Warnings = append(result.Warnings, fmt.Sprintf("potential SQL injection detected (%s)", p.name))
			break
		}
	}

	for _, p := range xssPatterns {
		if p.pattern.MatchString(text) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("potential XSS content detected (%s)", p.name))
			break
		}
	}

	for _, seq := range dangerousSequences {
		if strings.Contains(text, seq) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("dangerous character sequence %q present", seq))
		}
	}

	if !result.Valid {
		s.logger.WithFields(logrus.Fields{
			"data_type": dataType,
			"warnings":  result.Warnings,
		}).Warn("input rejected")
		return result
	}

	result.Sanitized = s.sanitize(data)
	return result
}

func serialize(data interface{}) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		// Plain json.Marshal escapes < and > and would hide markup from the
		// detectors.
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(data); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

// sanitize walks nested structures, cleaning string leaves and passing
// everything else through unchanged. Types outside the generic JSON shapes
// are round-tripped through JSON first.
func (s *Sanitizer) sanitize(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		return cleanString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = s.sanitize(value)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, value := range v {
			out[key] = cleanString(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.sanitize(item)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = cleanString(item)
		}
		return out
	case nil, bool, int, int32, int64, float32, float64, json.Number:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return v
		}
		switch generic.(type) {
		case map[string]interface{}, []interface{}, string:
			return s.sanitize(generic)
		default:
			return v
		}
	}
}

func cleanString(value string) string {
	value = markupTagPattern.ReplaceAllString(value, "")
	value = strings.ReplaceAll(value, "<", "")
	value = strings.ReplaceAll(value, ">", "")
	value = jsPrefixPattern.ReplaceAllString(value, "")
	value = eventHandlerRemove.ReplaceAllString(value, "")
	return strings.TrimSpace(value)
}

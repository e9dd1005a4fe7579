package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"exam-grader/api/internal/util"
)

type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeDegraded Outcome = "degraded"
)

// DecodeAnomaly describes why a result was degraded. It is reported, never returned as an error.
type DecodeAnomaly struct {
	Stage string // "syntax" or "payload"
	Err   error
}

func (a *DecodeAnomaly) Error() string { return a.Stage + ": " + a.Err.Error() }
func (a *DecodeAnomaly) Unwrap() error { return a.Err }

// Decoded is the tagged outcome of Decode. Result is always fully populated.
type Decoded struct {
	Result    EvaluationResult
	Outcome   Outcome
	Anomalies []string       // field-level fixes applied to a parsed result
	Err       *DecodeAnomaly // set when Outcome is OutcomeDegraded
}

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// DecodeResult is Decode without the diagnostics.
func DecodeResult(raw string, maxMarks int) EvaluationResult {
	return Decode(raw, maxMarks).Result
}

// Decode is defined for every input: any failure becomes a degraded result with the reason in
// Feedback.
func Decode(raw string, maxMarks int) (d Decoded) {
	defer func() {
		if r := recover(); r != nil {
			d = payloadFailure(fmt.Errorf("panic: %v", r))
		}
	}()

	if !utf8.ValidString(raw) {
		return payloadFailure(errors.New("model output is not valid UTF-8"))
	}
	text := strings.TrimSpace(raw)
	payload := text
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		payload = m[1]
	}

	v, err := parseJSON(payload)
	if err != nil {
		if obj, ok := firstObject(text); ok {
			v, err = obj, nil
		}
	}
	if err != nil {
		return syntaxFailure(err, payload)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return payloadFailure(fmt.Errorf("expected a JSON object, got %s", kindOf(v)))
	}
	res, anomalies := fromObject(obj, maxMarks)
	return Decoded{Result: res, Outcome: OutcomeParsed, Anomalies: anomalies}
}

func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected end of JSON input")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid character after top-level value at offset %d", dec.InputOffset())
	}
	return v, nil
}

// firstObject returns the first JSON object embedded in prose. Anything after it is ignored.
func firstObject(text string) (map[string]any, bool) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err == nil && obj != nil {
			return obj, true
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}

func syntaxFailure(err error, payload string) Decoded {
	res := defaults()
	res.Strengths = []string{parseFailedStrength}
	res.MissingPoints = []string{parseFailedMissing}
	res.Feedback = fmt.Sprintf("Evaluation error: %v. Raw response: %s", err, util.ClampRunes(payload, rawPreviewRunes))
	return Decoded{Result: res, Outcome: OutcomeDegraded, Err: &DecodeAnomaly{Stage: "syntax", Err: err}}
}

func payloadFailure(err error) Decoded {
	res := defaults()
	res.Feedback = fmt.Sprintf("Error during evaluation: %v", err)
	return Decoded{Result: res, Outcome: OutcomeDegraded, Err: &DecodeAnomaly{Stage: "payload", Err: err}}
}

func fromObject(obj map[string]any, maxMarks int) (EvaluationResult, []string) {
	res := defaults()
	var anomalies []string
	note := func(format string, args ...any) {
		anomalies = append(anomalies, fmt.Sprintf(format, args...))
	}

	if v, ok := present(obj, "marks_awarded"); ok {
		f, err := toNumber(v)
		if err != nil {
			note("marks_awarded: %v", err)
		} else {
			res.MarksAwarded = f
		}
	}
	if res.MarksAwarded < 0 {
		note("marks_awarded %v clamped to 0", res.MarksAwarded)
		res.MarksAwarded = 0
	}
	if maxMarks > 0 && res.MarksAwarded > float64(maxMarks) {
		note("marks_awarded %v clamped to %d", res.MarksAwarded, maxMarks)
		res.MarksAwarded = float64(maxMarks)
	}

	if v, ok := present(obj, "percentage"); ok {
		f, err := toNumber(v)
		if err != nil {
			note("percentage: %v", err)
		} else {
			res.Percentage = f
		}
	}
	if res.Percentage < 0 || res.Percentage > 100 {
		clamped := math.Min(math.Max(res.Percentage, 0), 100)
		note("percentage %v clamped to %v", res.Percentage, clamped)
		res.Percentage = clamped
	}

	if v, ok := present(obj, "strengths"); ok {
		res.Strengths = toList(v, "strengths", note)
	}
	if v, ok := present(obj, "missing_points"); ok {
		res.MissingPoints = toList(v, "missing_points", note)
	}

	if v, ok := present(obj, "feedback"); ok {
		s, isString := v.(string)
		if !isString {
			s = stringify(v)
			note("feedback was %s", kindOf(v))
		}
		if strings.TrimSpace(s) == "" {
			note("feedback empty")
			s = DefaultFeedback
		}
		res.Feedback = s
	}

	if v, ok := present(obj, "grade"); ok {
		s, isString := v.(string)
		if !isString {
			s = stringify(v)
		}
		g, valid := NormalizeGrade(s)
		if valid {
			res.Grade = g
		} else {
			note("grade %q not on the scale", s)
		}
	}
	return res, anomalies
}

// present treats JSON null like an absent key.
func present(obj map[string]any, key string) (any, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func toNumber(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %s", kindOf(v))
	}
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", fmt.Sprint(v))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

func toList(v any, field string, note func(string, ...any)) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case nil:
			case string:
				out = append(out, it)
			default:
				note("%s item was %s", field, kindOf(item))
				out = append(out, stringify(item))
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		note("%s was a string", field)
		return []string{t}
	default:
		note("%s was %s", field, kindOf(v))
		return []string{stringify(v)}
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSpace(buf.String())
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	}
	return fmt.Sprintf("%T", v)
}

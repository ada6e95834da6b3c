// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jobsync/ingestion/internal/stage"
)

// ParseResponse reads the first balanced {...} span of a model answer.
// Prose or markdown fences around the object are ignored. Strings equal to
// "null" (any case) are treated as JSON null.
func ParseResponse(text string) (*Result, error) {
	span, ok := firstObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	res := &Result{
		Salary:       field(fields, "salary"),
		Location:     field(fields, "location"),
		Contact:      field(fields, "contact"),
		EmailSummary: field(fields, "email_summary"),
		Notes:        field(fields, "notes"),
	}
	if v := field(fields, "company"); v != nil {
		res.Company = *v
	}
	if v := field(fields, "job_title"); v != nil {
		res.JobTitle = *v
	}
	if v := field(fields, "current_stage"); v != nil {
		if st, ok := stage.Parse(*v); ok {
			res.CurrentStage = &st
		}
	}
	return res, nil
}

// firstObject returns the first brace-balanced span. A '{' that never
// closes is skipped and the scan resumes at the next one. Braces inside
// JSON strings do not count.
func firstObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end, ok := balancedEnd(text, start); ok {
			return text[start:end], true
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// balancedEnd returns the index just past the '}' closing text[start].
func balancedEnd(text string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// field normalises one answer value to an optional string.
func field(fields map[string]any, key string) *string {
	var s string
	switch v := fields[key].(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

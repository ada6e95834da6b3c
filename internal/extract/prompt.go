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
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jobsync/ingestion/internal/stage"
)

// MaxBodyChars caps how much of the email body goes into the prompt.
const MaxBodyChars = 12000

const promptTemplate = `Analyze this job application email and extract structured information.

EMAIL DETAILS:
From: %s
Subject: %s
Date: %s
Content: %s

Extract the following information:
1. Company name
2. Job title/position
3. Current stage (one of: %s)
4. Salary range (if mentioned)
5. Location (if mentioned)
6. Recruiter/contact name or email (if mentioned)
7. Brief summary of this email (1-2 sentences)
8. Any important notes or action items

Respond ONLY with valid JSON in this exact format. Use JSON null for anything
not found, never the string "null":
{
  "company": "Company Name",
  "job_title": "Job Title",
  "current_stage": "screening",
  "salary": null,
  "location": null,
  "contact": "recruiter@example.com",
  "email_summary": "Brief summary here",
  "notes": null
}`

// BuildPrompt renders the extraction prompt for one email.
func BuildPrompt(req Request) string {
	names := make([]string, 0, len(stage.All()))
	for _, s := range stage.All() {
		names = append(names, s.String())
	}
	return fmt.Sprintf(promptTemplate,
		orUnknown(req.Sender),
		orUnknown(req.Subject),
		orUnknown(req.SentAt),
		truncate(req.Body, MaxBodyChars),
		strings.Join(names, ", "),
	)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

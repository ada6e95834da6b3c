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

package sender

import (
	"regexp"
	"strings"
)

// blockMarkers open a forwarded-message block whose header lines (From,
// Date, Subject, To) describe the original email.
var blockMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)-+[ \t]*Forwarded message[ \t]*-+`),
	regexp.MustCompile(`(?i)-----Original Message-----`),
	regexp.MustCompile(`(?i)Begin forwarded message:`),
	regexp.MustCompile(`(?i)Forwarded message:`),
}

var (
	headerLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z\-]*):[ \t]*(.*)$`)
	fwdPrefixRe  = regexp.MustCompile(`(?i)^(?:fwd?:\s*)+`)

	// bodyStops end the original message body; the earliest one wins.
	bodyStops = []*regexp.Regexp{
		regexp.MustCompile(`\n[ \t]*--[ \t]*\n`),
		regexp.MustCompile(`(?i)\n[ \t]*-+[ \t]*Forwarded message[ \t]*-+`),
		regexp.MustCompile(`(?i)\nOn [^\n]+ wrote:`),
	}
)

// forwardedBlock is the original message embedded in a forwarding email.
type forwardedBlock struct {
	headers map[string]string // lower-cased names
	body    string
}

func (b *forwardedBlock) header(name string) string {
	return b.headers[strings.ToLower(name)]
}

// findForwardedBlock locates the earliest forwarded-message marker and splits
// what follows it into header lines and body. It returns nil when the email
// carries no recognisable block.
func findForwardedBlock(content string) *forwardedBlock {
	first, start := -1, -1
	for _, re := range blockMarkers {
		if loc := re.FindStringIndex(content); loc != nil && (first < 0 || loc[0] < first) {
			first, start = loc[0], loc[1]
		}
	}
	if first < 0 {
		return nil
	}

	rest := strings.TrimLeft(content[start:], " \t\n")
	lines := strings.Split(rest, "\n")

	block := &forwardedBlock{headers: make(map[string]string)}
	last := ""
	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		if strings.TrimSpace(line) == "" {
			break
		}
		if m := headerLineRe.FindStringSubmatch(line); m != nil {
			last = strings.ToLower(m[1])
			if _, seen := block.headers[last]; !seen {
				block.headers[last] = strings.TrimSpace(m[2])
			}
			continue
		}
		if last == "" || !isFolded(line) {
			// First line that is neither a header nor a folded
			// continuation starts the body.
			break
		}
		block.headers[last] = strings.TrimSpace(block.headers[last] + " " + strings.TrimSpace(line))
	}

	if len(block.headers) == 0 {
		block.body = rest
	} else {
		block.body = strings.Join(lines[i:], "\n")
	}
	return block
}

// subject prefers the forwarded block's subject over the wrapper's own.
func subject(block *forwardedBlock, headers map[string]string) string {
	if block != nil {
		if s := block.header("subject"); s != "" {
			return strings.TrimSpace(s)
		}
	}
	s := strings.TrimSpace(HeaderValue(headers, "Subject"))
	return strings.TrimSpace(fwdPrefixRe.ReplaceAllString(s, ""))
}

// body returns the original message text, cut at the first signature
// delimiter, nested forward or reply marker.
func body(content string, block *forwardedBlock) string {
	if block != nil {
		if text := trimAtStops(block.body); text != "" {
			return text
		}
		return strings.TrimSpace(content)
	}
	return trimAtStops(content)
}

func isFolded(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

func trimAtStops(text string) string {
	s := "\n" + strings.TrimSpace(text)
	cut := len(s)
	for _, re := range bodyStops {
		if loc := re.FindStringIndex(s); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	return strings.TrimSpace(s[:cut])
}

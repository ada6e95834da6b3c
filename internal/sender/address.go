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

var (
	emailRe     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	angleAddrRe = regexp.MustCompile(`<\s*([^<>\s]+@[^<>\s]+)\s*>`)

	// srsRe matches SRS0/SRS1 rewritten senders. The last two '='-separated
	// fields before the relay are the original domain and local part:
	//
	//	SRS0=<hash>=<tag>=<domain>=<localpart>@<relay>
	srsRe = regexp.MustCompile(`(?i)^SRS[01]=.*=([^=@]+)=([^=@]+)@[^@]+$`)
)

// DecodeSRS recovers localpart@domain from a Sender-Rewriting-Scheme address.
func DecodeSRS(addr string) (string, bool) {
	m := srsRe.FindStringSubmatch(strings.TrimSpace(addr))
	if m == nil {
		return "", false
	}
	return m[2] + "@" + m[1], true
}

// extractAddress pulls a bare address out of a header-style value such as
// `Jane Doe <jane@acme.com>` or `jane@acme.com (Jane)`.
func extractAddress(s string) string {
	if m := angleAddrRe.FindStringSubmatch(s); m != nil {
		return cleanAddress(m[1])
	}
	return emailRe.FindString(s)
}

// cleanAddress strips angle brackets and surrounding whitespace.
func cleanAddress(s string) string {
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	return strings.TrimSpace(s)
}

// addressOnDomain returns the first address in v whose domain is domain.
func addressOnDomain(v, domain string) string {
	if v == "" || domain == "" {
		return ""
	}
	for _, addr := range emailRe.FindAllString(v, -1) {
		at := strings.LastIndex(addr, "@")
		if strings.EqualFold(addr[at+1:], domain) {
			return addr
		}
	}
	return ""
}

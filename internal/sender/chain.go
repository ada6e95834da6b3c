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

// matcher is one rule of the original-sender chain. It returns the address
// it found or "" when the rule does not apply.
type matcher struct {
	name  string
	match func(body string, in Input) string
}

// forwardingClient describes the wrapper a mail client puts around a
// forwarded message.
type forwardingClient struct {
	name   string
	marker string // regexp fragment matching the wrapper line
}

// forwardingClients are tried in order; the first whose wrapper is followed
// by a From: line carrying an address wins.
var forwardingClients = []forwardingClient{
	{"Gmail", `-+\s*Forwarded message\s*-+`},
	{"Outlook", regexp.QuoteMeta("-----Original Message-----")},
	{"Apple Mail", regexp.QuoteMeta("Begin forwarded message:")},
	{"Yahoo", regexp.QuoteMeta("----- Forwarded Message -----")},
	{"Generic 1", regexp.QuoteMeta("Forwarded message:")},
	{"Generic 2", regexp.QuoteMeta("--- Forwarded message ---")},
	{"Mobile", regexp.QuoteMeta("Forwarded by")},
	{"Simple 1", regexp.QuoteMeta("Forwarded:")},
	{"Simple 2", regexp.QuoteMeta("Fwd:")},
}

var (
	angleFromRe = regexp.MustCompile(`(?i)From:[^<\n]*<([^>\n]+@[^>\n]+)>`)
	bareFromRe  = regexp.MustCompile(`(?i)From:[ \t]*([^\n]*@[^\n]*)`)
	noReplyRe   = regexp.MustCompile(`(?i)no-?reply|donotreply|do-not-reply`)
)

// senderChain builds the ordered rule list for the original sender.
func (r *Resolver) senderChain() []matcher {
	chain := make([]matcher, 0, len(forwardingClients)+5)
	for _, fc := range forwardingClients {
		re := regexp.MustCompile(`(?i)` + fc.marker + `[\s\S]*?From:[ \t]*([^\n]*@[^\n]*)`)
		chain = append(chain, matcher{
			name: fc.name,
			match: func(body string, _ Input) string {
				if m := re.FindStringSubmatch(body); m != nil {
					return extractAddress(m[1])
				}
				return ""
			},
		})
	}

	chain = append(chain,
		matcher{name: "From angle", match: func(body string, _ Input) string {
			if m := angleFromRe.FindStringSubmatch(body); m != nil {
				return cleanAddress(m[1])
			}
			return ""
		}},
		matcher{name: "From bare", match: func(body string, _ Input) string {
			if m := bareFromRe.FindStringSubmatch(body); m != nil {
				return extractAddress(m[1])
			}
			return ""
		}},
		matcher{name: "Body address", match: func(body string, _ Input) string {
			for _, addr := range emailRe.FindAllString(body, -1) {
				if r.plausibleSender(addr) {
					return addr
				}
			}
			return ""
		}},
		matcher{name: "Envelope", match: func(_ string, in Input) string {
			from := cleanAddress(in.Envelope.From)
			if from == "" || r.isForwarderProxy(from) {
				return ""
			}
			return from
		}},
		matcher{name: "Header From", match: func(_ string, in Input) string {
			return extractAddress(HeaderValue(in.Headers, "From"))
		}},
	)
	return chain
}

// originalSender runs the chain and reports the first match and its rule.
func (r *Resolver) originalSender(body string, in Input) (string, string) {
	for _, m := range r.chain {
		if addr := m.match(body, in); addr != "" {
			return addr, m.name
		}
	}
	return "", ""
}

// plausibleSender filters out addresses that are more likely the forwarder,
// a relay, this system, or an automated mailbox.
func (r *Resolver) plausibleSender(addr string) bool {
	lower := strings.ToLower(addr)
	if r.isForwarderProxy(lower) {
		return false
	}
	at := strings.LastIndex(lower, "@")
	if at < 0 {
		return false
	}
	local, domain := lower[:at], lower[at+1:]
	if noReplyRe.MatchString(local) {
		return false
	}
	if r.opts.InboundDomain != "" && domainMatches(domain, r.opts.InboundDomain) {
		return false
	}
	for _, d := range r.opts.PersonalDomains {
		if domainMatches(domain, d) {
			return false
		}
	}
	return true
}

// isForwarderProxy reports whether addr is an SRS or forwarding-relay address.
func (r *Resolver) isForwarderProxy(addr string) bool {
	lower := strings.ToLower(addr)
	if srsRe.MatchString(lower) {
		return true
	}
	for _, marker := range r.opts.ForwarderMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// domainMatches reports whether domain is want or one of its subdomains.
func domainMatches(domain, want string) bool {
	want = strings.ToLower(want)
	return domain == want || strings.HasSuffix(domain, "."+want)
}

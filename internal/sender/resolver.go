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

// Package sender turns a relayed, forwarded email into the fields the
// pipeline needs: who originally wrote it, who forwarded it, which tracking
// code it was sent to, and the original date, subject and body.
//
// Resolution never fails. Every field degrades to a best guess through an
// ordered fallback chain.
package sender

import (
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
)

// Envelope holds the protocol-level addresses reported by the mail relay.
type Envelope struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Input is one inbound email as delivered by the relay.
type Input struct {
	Envelope Envelope
	Headers  map[string]string
	Plain    string
	HTML     string
}

// Result is the resolved view of an inbound email.
type Result struct {
	OriginalSender  string
	SenderRule      string // name of the chain rule that produced OriginalSender
	ForwarderEmail  string
	ReceiverAddress string
	TrackingCode    string
	OriginalSentAt  string
	Subject         string
	BodyContent     string
	ContentType     string // "plain" or "html"
}

// Options configures domain knowledge used by the resolver.
type Options struct {
	// InboundDomain is this system's receiving domain, e.g. "jobsync.fyi".
	InboundDomain string
	// RelayDomain is the placeholder domain the relay uses in envelope "to"
	// when mail reaches it through domain forwarding.
	RelayDomain string
	// ForwarderMarkers are substrings identifying mail-forwarding proxy
	// addresses (SRS relays) that never carry the original sender.
	ForwarderMarkers []string
	// PersonalDomains are mailbox providers skipped when guessing the
	// original sender from arbitrary addresses in the body.
	PersonalDomains []string
}

// DefaultPersonalDomains lists consumer mailbox providers that are far more
// likely to belong to the forwarder than to a recruiter.
var DefaultPersonalDomains = []string{
	"gmail.com", "googlemail.com", "outlook.com", "yahoo.com", "icloud.com",
	"hotmail.com", "live.com", "aol.com", "mail.com", "protonmail.com",
	"proton.me", "tutanota.com", "company.com", "example.com",
}

// DefaultForwarderMarkers identifies Namecheap-style SRS forwarding relays.
var DefaultForwarderMarkers = []string{"eforward", "registrar-servers"}

// Resolver extracts sender and content details from inbound emails.
type Resolver struct {
	opts   Options
	chain  []matcher
	now    func() time.Time
	toHTML func(string) (string, error)
}

// NewResolver creates a resolver. Empty option lists fall back to defaults.
func NewResolver(opts Options) *Resolver {
	if len(opts.ForwarderMarkers) == 0 {
		opts.ForwarderMarkers = DefaultForwarderMarkers
	}
	if len(opts.PersonalDomains) == 0 {
		opts.PersonalDomains = DefaultPersonalDomains
	}
	opts.InboundDomain = strings.ToLower(strings.TrimSpace(opts.InboundDomain))
	opts.RelayDomain = strings.ToLower(strings.TrimSpace(opts.RelayDomain))

	r := &Resolver{
		opts: opts,
		now:  time.Now,
		toHTML: func(s string) (string, error) {
			return html2text.FromString(s, html2text.Options{OmitLinks: true})
		},
	}
	r.chain = r.senderChain()
	return r
}

// Resolve extracts all fields from an inbound email.
func (r *Resolver) Resolve(in Input) Result {
	content, contentType := r.content(in)
	block := findForwardedBlock(content)

	res := Result{ContentType: contentType}
	res.OriginalSender, res.SenderRule = r.originalSender(content, in)
	res.ForwarderEmail = r.forwarder(in.Envelope.From, block)
	res.ReceiverAddress = r.receiver(in)
	res.TrackingCode = TrackingCode(res.ReceiverAddress)
	res.OriginalSentAt = r.sentAt(block, in.Headers)
	res.Subject = subject(block, in.Headers)
	res.BodyContent = body(content, block)
	return res
}

// content picks the plain body, converting HTML when that is all we have.
func (r *Resolver) content(in Input) (string, string) {
	if strings.TrimSpace(in.Plain) != "" {
		return normalizeNewlines(in.Plain), "plain"
	}
	if in.HTML == "" {
		return "", "plain"
	}
	text, err := r.toHTML(in.HTML)
	if err != nil || strings.TrimSpace(text) == "" {
		return normalizeNewlines(in.HTML), "html"
	}
	return normalizeNewlines(text), "html"
}

// forwarder recovers the forwarding user's real address from the envelope.
func (r *Resolver) forwarder(envelopeFrom string, block *forwardedBlock) string {
	addr := cleanAddress(envelopeFrom)
	if decoded, ok := DecodeSRS(addr); ok {
		addr = decoded
	}
	if !strings.Contains(addr, "@") && block != nil {
		if to := extractAddress(block.header("to")); to != "" {
			addr = to
		}
	}
	return cleanAddress(addr)
}

// receiver returns the address on this system's domain the email was sent to.
func (r *Resolver) receiver(in Input) string {
	receiver := cleanAddress(in.Envelope.To)
	if receiver != "" && (r.opts.RelayDomain == "" || !strings.Contains(strings.ToLower(receiver), "@"+r.opts.RelayDomain)) {
		return receiver
	}
	for _, name := range []string{"X-Forwarded-To", "Delivered-To", "To"} {
		if addr := addressOnDomain(HeaderValue(in.Headers, name), r.opts.InboundDomain); addr != "" {
			return addr
		}
	}
	return receiver
}

func (r *Resolver) sentAt(block *forwardedBlock, headers map[string]string) string {
	if block != nil {
		if d := block.header("date"); d != "" {
			return d
		}
		if d := block.header("sent"); d != "" {
			return d
		}
	}
	if d := strings.TrimSpace(HeaderValue(headers, "Date")); d != "" {
		return d
	}
	return r.now().UTC().Format(time.RFC3339)
}

// TrackingCode derives the upper-cased tracking code from a receiver address.
func TrackingCode(receiver string) string {
	local := receiver
	if i := strings.Index(receiver, "@"); i >= 0 {
		local = receiver[:i]
	}
	return strings.ToUpper(strings.TrimSpace(local))
}

// HeaderValue looks a header up case-insensitively.
func HeaderValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

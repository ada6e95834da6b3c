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
	"strings"
	"testing"
	"time"
)

func newTestResolver() *Resolver {
	r := NewResolver(Options{
		InboundDomain: "jobsync.fyi",
		RelayDomain:   "cloudmailin.net",
	})
	r.now = func() time.Time { return time.Date(2025, 10, 18, 7, 0, 0, 0, time.UTC) }
	return r
}

const gmailForward = `Check this out

---------- Forwarded message ---------
From: Acme Talent <talent@acme.com>
Date: Sat, Oct 18, 2025 at 12:33 AM
Subject: Second Round Interview - Software Engineer
To: <maihe88@gmail.com>

Hi Demo,

We would like to invite you to a second interview.

--
Acme Talent Team
`

// TestResolve_ForwardingClients verifies each named forwarding wrapper.
func TestResolve_ForwardingClients(t *testing.T) {
	wrappers := []string{
		"---------- Forwarded message ---------",
		"-----Original Message-----",
		"Begin forwarded message:",
		"----- Forwarded Message -----",
		"Forwarded message:",
		"--- Forwarded message ---",
		"Forwarded by Jane's iPhone",
		"Forwarded:",
		"Fwd:",
	}

	r := newTestResolver()
	for _, w := range wrappers {
		t.Run(w, func(t *testing.T) {
			body := "FYI\n\n" + w + "\nFrom: Name <addr@co.com>\nSubject: Hello\n\nBody text\n"
			res := r.Resolve(Input{
				Envelope: Envelope{From: "me@gmail.com", To: "abc123@jobsync.fyi"},
				Plain:    body,
			})
			if res.OriginalSender != "addr@co.com" {
				t.Errorf("OriginalSender = %q, want addr@co.com (rule %q)", res.OriginalSender, res.SenderRule)
			}
		})
	}
}

// TestResolve_GmailBlock verifies field extraction from a forwarded block.
func TestResolve_GmailBlock(t *testing.T) {
	r := newTestResolver()
	res := r.Resolve(Input{
		Envelope: Envelope{
			From: "SRS0=61A8=42=gmail.com=maihe88@eforward.registrar-servers.com",
			To:   "abc123@jobsync.fyi",
		},
		Headers: map[string]string{
			"Subject": "Fwd: Second Round Interview - Software Engineer",
			"Date":    "Sat, 18 Oct 2025 09:00:00 +0000",
		},
		Plain: gmailForward,
	})

	checks := map[string][2]string{
		"OriginalSender": {res.OriginalSender, "talent@acme.com"},
		"SenderRule":     {res.SenderRule, "Gmail"},
		"ForwarderEmail": {res.ForwarderEmail, "maihe88@gmail.com"},
		"Receiver":       {res.ReceiverAddress, "abc123@jobsync.fyi"},
		"TrackingCode":   {res.TrackingCode, "ABC123"},
		"OriginalSentAt": {res.OriginalSentAt, "Sat, Oct 18, 2025 at 12:33 AM"},
		"Subject":        {res.Subject, "Second Round Interview - Software Engineer"},
		"BodyContent":    {res.BodyContent, "Hi Demo,\n\nWe would like to invite you to a second interview."},
		"ContentType":    {res.ContentType, "plain"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
}

// TestDecodeSRS verifies SRS0 and SRS1 decoding.
func TestDecodeSRS(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"SRS0=61A8=42=gmail.com=maihe88@eforward.registrar-servers.com", "maihe88@gmail.com", true},
		{"srs0=abcd=XY=outlook.com=jane.doe@relay.example.net", "jane.doe@outlook.com", true},
		{"SRS1=HHH=first.example==HHH=TT=yahoo.com=bob@second.example", "bob@yahoo.com", true},
		{"maihe88@gmail.com", "", false},
		{"SRS0=broken", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DecodeSRS(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("DecodeSRS(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestResolve_ForwarderFallsBackToBlockTo covers envelopes without an address.
func TestResolve_ForwarderFallsBackToBlockTo(t *testing.T) {
	r := newTestResolver()
	res := r.Resolve(Input{
		Envelope: Envelope{From: "bounce-handler", To: "abc123@jobsync.fyi"},
		Plain:    gmailForward,
	})
	if res.ForwarderEmail != "maihe88@gmail.com" {
		t.Errorf("ForwarderEmail = %q, want maihe88@gmail.com", res.ForwarderEmail)
	}
}

func TestResolve_ForwarderStripsBrackets(t *testing.T) {
	r := newTestResolver()
	res := r.Resolve(Input{Envelope: Envelope{From: "  <jane@acme.com> "}})
	if res.ForwarderEmail != "jane@acme.com" {
		t.Errorf("ForwarderEmail = %q", res.ForwarderEmail)
	}
}

// TestResolve_ReceiverFromHeaders covers relay placeholder envelopes.
func TestResolve_ReceiverFromHeaders(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "x-forwarded-to first",
			headers: map[string]string{"X-Forwarded-To": "zzz999@jobsync.fyi", "Delivered-To": "xyz789@jobsync.fyi"},
			want:    "ZZZ999",
		},
		{
			name:    "delivered-to lower case",
			headers: map[string]string{"delivered-to": "xyz789@jobsync.fyi", "To": "Me <me@gmail.com>"},
			want:    "XYZ789",
		},
		{
			name:    "to with display name",
			headers: map[string]string{"To": "Me <me@gmail.com>, Tracker <qrs456@JobSync.fyi>"},
			want:    "QRS456",
		},
		{
			name:    "no system address keeps placeholder",
			headers: map[string]string{"To": "me@gmail.com"},
			want:    "A1B2C3D4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(Input{
				Envelope: Envelope{From: "me@gmail.com", To: "a1b2c3d4@cloudmailin.net"},
				Headers:  tt.headers,
			})
			if res.TrackingCode != tt.want {
				t.Errorf("TrackingCode = %q, want %q", res.TrackingCode, tt.want)
			}
		})
	}
}

// TestResolve_SenderFallbacks walks the chain after the forwarding patterns.
func TestResolve_SenderFallbacks(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name     string
		in       Input
		want     string
		wantRule string
	}{
		{
			name:     "angle from anywhere",
			in:       Input{Plain: "Reply below\nFrom: Jane <jane@acme.com>\n"},
			want:     "jane@acme.com",
			wantRule: "From angle",
		},
		{
			name:     "bare from anywhere",
			in:       Input{Plain: "Reply below\nFrom: jane@acme.com\n"},
			want:     "jane@acme.com",
			wantRule: "From bare",
		},
		{
			name:     "body address skips personal and noreply",
			in:       Input{Plain: "Me me@gmail.com, noreply@acme.io, abc123@jobsync.fyi and careers@acme.io"},
			want:     "careers@acme.io",
			wantRule: "Body address",
		},
		{
			name:     "body address skips relay",
			in:       Input{Plain: "via x@eforward.registrar-servers.com then hr@globex.com"},
			want:     "hr@globex.com",
			wantRule: "Body address",
		},
		{
			name:     "direct email uses envelope",
			in:       Input{Envelope: Envelope{From: "jane@acme.com"}, Plain: "Hello there"},
			want:     "jane@acme.com",
			wantRule: "Envelope",
		},
		{
			name: "srs envelope falls to header from",
			in: Input{
				Envelope: Envelope{From: "SRS0=61A8=42=gmail.com=maihe88@eforward.registrar-servers.com"},
				Headers:  map[string]string{"From": "Mai He <maihe88@gmail.com>"},
				Plain:    "Hello there",
			},
			want:     "maihe88@gmail.com",
			wantRule: "Header From",
		},
		{
			name: "nothing found",
			in:   Input{Plain: "Hello there"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.in)
			if res.OriginalSender != tt.want || res.SenderRule != tt.wantRule {
				t.Errorf("sender = (%q, %q), want (%q, %q)", res.OriginalSender, res.SenderRule, tt.want, tt.wantRule)
			}
		})
	}
}

// TestResolve_SubjectAndDateFallbacks covers emails without a forwarded block.
func TestResolve_SubjectAndDateFallbacks(t *testing.T) {
	r := newTestResolver()

	res := r.Resolve(Input{
		Headers: map[string]string{
			"subject": "Fwd: FWD: Fw: Offer letter",
			"date":    "Mon, 13 Oct 2025 10:00:00 +0000",
		},
		Plain: "Congratulations!",
	})
	if res.Subject != "Offer letter" {
		t.Errorf("Subject = %q, want Offer letter", res.Subject)
	}
	if res.OriginalSentAt != "Mon, 13 Oct 2025 10:00:00 +0000" {
		t.Errorf("OriginalSentAt = %q", res.OriginalSentAt)
	}

	res = r.Resolve(Input{Plain: "Congratulations!"})
	if res.OriginalSentAt != "2025-10-18T07:00:00Z" {
		t.Errorf("OriginalSentAt = %q, want clock fallback", res.OriginalSentAt)
	}
}

// TestResolve_OutlookBlockUsesSent verifies Outlook's "Sent:" date header.
func TestResolve_OutlookBlockUsesSent(t *testing.T) {
	r := newTestResolver()
	body := "-----Original Message-----\r\nFrom: HR <hr@globex.com>\r\nSent: Tuesday, October 14, 2025 3:12 PM\r\nTo: me@outlook.com\r\nSubject: Application received\r\n\r\nThanks for applying.\r\n"
	res := r.Resolve(Input{Plain: body})

	if res.OriginalSentAt != "Tuesday, October 14, 2025 3:12 PM" {
		t.Errorf("OriginalSentAt = %q", res.OriginalSentAt)
	}
	if res.Subject != "Application received" {
		t.Errorf("Subject = %q", res.Subject)
	}
	if res.BodyContent != "Thanks for applying." {
		t.Errorf("BodyContent = %q", res.BodyContent)
	}
}

// TestResolve_BlockWithoutBlankLine covers a forwarded block whose text
// starts right after the header lines, as html2text often renders it.
func TestResolve_BlockWithoutBlankLine(t *testing.T) {
	r := newTestResolver()
	body := "---------- Forwarded message ---------\n" +
		"From: Acme Talent <talent@acme.com>\n" +
		"Subject: Interview at Acme\n" +
		"To: me@gmail.com\n" +
		"Hi there, we would like to schedule a call.\n"
	res := r.Resolve(Input{Plain: body})

	if res.Subject != "Interview at Acme" {
		t.Errorf("Subject = %q", res.Subject)
	}
	if res.BodyContent != "Hi there, we would like to schedule a call." {
		t.Errorf("BodyContent = %q", res.BodyContent)
	}
	if res.OriginalSender != "talent@acme.com" {
		t.Errorf("OriginalSender = %q", res.OriginalSender)
	}
}

// TestResolve_FoldedBlockHeader verifies indented lines continue a header.
func TestResolve_FoldedBlockHeader(t *testing.T) {
	r := newTestResolver()
	body := "Begin forwarded message:\n" +
		"From: HR <hr@globex.com>\n" +
		"Subject: Your application for\n" +
		"  Senior Engineer\n" +
		"\n" +
		"Thanks for applying.\n"
	res := r.Resolve(Input{Plain: body})

	if res.Subject != "Your application for Senior Engineer" {
		t.Errorf("Subject = %q", res.Subject)
	}
	if res.BodyContent != "Thanks for applying." {
		t.Errorf("BodyContent = %q", res.BodyContent)
	}
}

// TestResolve_EmptyBlockBodyFallsBack verifies a block with headers only
// keeps the whole email as the body.
func TestResolve_EmptyBlockBodyFallsBack(t *testing.T) {
	r := newTestResolver()
	body := "See below\n\n-----Original Message-----\nFrom: HR <hr@globex.com>\nSubject: Offer\n"
	res := r.Resolve(Input{Plain: body})

	if res.BodyContent != strings.TrimSpace(body) {
		t.Errorf("BodyContent = %q, want whole content", res.BodyContent)
	}
}

// TestTrimAtStops verifies the earliest stop marker wins.
func TestTrimAtStops(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"signature", "Hello\n-- \nSig", "Hello"},
		{"reply", "Thanks.\n\nOn Mon, Oct 13, 2025 at 9:00 AM Jane <jane@x.com> wrote:\n> old", "Thanks."},
		{"nested forward", "Top\n---------- Forwarded message ---------\nFrom: a@b.com", "Top"},
		{"earliest wins", "A\nOn Tue Bob wrote:\nB\n-- \nC", "A"},
		{"none", "  Just text  ", "Just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trimAtStops(tt.in); got != tt.want {
				t.Errorf("trimAtStops = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestResolve_HTMLOnly verifies HTML bodies are converted to text.
func TestResolve_HTMLOnly(t *testing.T) {
	r := newTestResolver()
	res := r.Resolve(Input{HTML: "<html><body><p>Hello from Acme</p></body></html>"})

	if res.ContentType != "html" {
		t.Errorf("ContentType = %q, want html", res.ContentType)
	}
	if !strings.Contains(res.BodyContent, "Hello from Acme") {
		t.Errorf("BodyContent = %q", res.BodyContent)
	}
	if strings.Contains(res.BodyContent, "<p>") {
		t.Errorf("BodyContent still contains markup: %q", res.BodyContent)
	}
}

func TestHeaderValue(t *testing.T) {
	h := map[string]string{"x-forwarded-to": "a@b.com"}
	if HeaderValue(h, "X-Forwarded-To") != "a@b.com" {
		t.Error("expected case-insensitive lookup")
	}
	if HeaderValue(nil, "To") != "" {
		t.Error("nil map should yield empty value")
	}
}

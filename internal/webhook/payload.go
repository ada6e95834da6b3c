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

package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/jobsync/ingestion/internal/sender"
)

// Payload is the CloudMailin JSON (normalized) format.
type Payload struct {
	Envelope sender.Envelope `json:"envelope"`
	Headers  HeaderMap       `json:"headers"`
	Plain    string          `json:"plain"`
	HTML     string          `json:"html"`
}

// Input converts the payload for the resolver.
func (p Payload) Input() sender.Input {
	return sender.Input{
		Envelope: p.Envelope,
		Headers:  map[string]string(p.Headers),
		Plain:    p.Plain,
		HTML:     p.HTML,
	}
}

// HeaderMap holds one value per header. Repeated headers arrive as arrays
// and keep their first value.
type HeaderMap map[string]string

// UnmarshalJSON accepts string, array and null header values.
func (h *HeaderMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(HeaderMap, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			if len(list) > 0 {
				out[k] = list[0]
			}
			continue
		}
		// Numbers and objects are not useful headers.
	}
	*h = out
	return nil
}

// ParseJSON decodes a CloudMailin JSON body.
func ParseJSON(body []byte) (sender.Input, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return sender.Input{}, fmt.Errorf("decode json payload: %w", err)
	}
	return p.Input(), nil
}

// ParseForm decodes CloudMailin's multipart field layout:
// envelope[from], headers[Subject], plain, html.
func ParseForm(form url.Values) sender.Input {
	in := sender.Input{
		Envelope: sender.Envelope{
			From: form.Get("envelope[from]"),
			To:   form.Get("envelope[to]"),
		},
		Headers: make(map[string]string),
		Plain:   form.Get("plain"),
		HTML:    form.Get("html"),
	}
	for key, values := range form {
		rest, ok := strings.CutPrefix(key, "headers[")
		if !ok || len(values) == 0 {
			continue
		}
		name, _, ok := strings.Cut(rest, "]")
		if !ok || name == "" {
			continue
		}
		if _, seen := in.Headers[name]; !seen || strings.HasSuffix(key, "[0]") {
			in.Headers[name] = values[0]
		}
	}
	return in
}

// ParseMIME decodes a raw RFC 822 message. The envelope comes from the
// query string when the relay passes it, otherwise from delivery headers.
func ParseMIME(raw []byte, query url.Values) (sender.Input, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return sender.Input{}, errors.New("empty message")
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return sender.Input{}, fmt.Errorf("parse mime message: %w", err)
	}

	headers := make(map[string]string)
	for _, k := range env.GetHeaderKeys() {
		headers[k] = env.GetHeader(k)
	}

	in := sender.Input{
		Envelope: sender.Envelope{
			From: firstNonEmpty(query.Get("from"), env.GetHeader("Return-Path"), env.GetHeader("From")),
			To:   firstNonEmpty(query.Get("to"), env.GetHeader("X-Original-To"), env.GetHeader("Delivered-To"), env.GetHeader("To")),
		},
		Headers: headers,
		Plain:   env.Text,
		HTML:    env.HTML,
	}
	return in, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

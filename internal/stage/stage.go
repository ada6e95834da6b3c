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

// Package stage models the hiring-funnel position of a job application.
//
// Stages form a fixed total order:
//
//	applied < screening < interview1 < ... < interview6 < {offer, rejected}
//
// offer and rejected are terminal and mutually exclusive. A terminal stage
// never advances on its own; only an explicitly detected stage moves it.
package stage

import "strings"

// Stage is a position in the hiring funnel.
type Stage string

const (
	Applied    Stage = "applied"
	Screening  Stage = "screening"
	Interview1 Stage = "interview1"
	Interview2 Stage = "interview2"
	Interview3 Stage = "interview3"
	Interview4 Stage = "interview4"
	Interview5 Stage = "interview5"
	Interview6 Stage = "interview6"
	Offer      Stage = "offer"
	Rejected   Stage = "rejected"
)

// rank gives the position of each stage in the funnel. The two terminal
// stages share the top rank.
var rank = map[Stage]int{
	Applied:    0,
	Screening:  1,
	Interview1: 2,
	Interview2: 3,
	Interview3: 4,
	Interview4: 5,
	Interview5: 6,
	Interview6: 7,
	Offer:      8,
	Rejected:   8,
}

// lastProgress is the highest stage reachable by automatic advancement.
const lastProgress = Interview6

// All returns every stage in funnel order.
func All() []Stage {
	return []Stage{
		Applied, Screening,
		Interview1, Interview2, Interview3, Interview4, Interview5, Interview6,
		Offer, Rejected,
	}
}

// Parse converts a model- or store-supplied value into a Stage. Matching is
// case-insensitive and ignores surrounding whitespace.
func Parse(s string) (Stage, bool) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rank[st]; !ok {
		return "", false
	}
	return st, true
}

// Valid reports whether s is a member of the enum.
func (s Stage) Valid() bool {
	_, ok := rank[s]
	return ok
}

// Terminal reports whether s is an absorbing state.
func (s Stage) Terminal() bool {
	return s == Offer || s == Rejected
}

// Compare orders two valid stages. It returns -1, 0 or +1. offer and
// rejected compare equal since neither precedes the other.
func Compare(a, b Stage) int {
	ra, rb := rank[a], rank[b]
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// Successor returns the stage after s. Terminal stages return themselves and
// interview6 is the ceiling for non-terminal progress.
func (s Stage) Successor() Stage {
	if s.Terminal() || s == lastProgress {
		return s
	}
	r, ok := rank[s]
	if !ok {
		return Applied
	}
	for _, next := range All() {
		if rank[next] == r+1 {
			return next
		}
	}
	return lastProgress
}

func (s Stage) String() string { return string(s) }

// Next decides the stage after one more email for an application currently
// at current. A recognised detected stage always wins, including moves out
// of a terminal stage or backwards. Without one, terminal stages stay put,
// unknown current stages reset to applied and everything else advances by
// one step.
func Next(current Stage, detected *Stage) Stage {
	if detected != nil && detected.Valid() {
		return *detected
	}
	if !current.Valid() {
		return Applied
	}
	return current.Successor()
}

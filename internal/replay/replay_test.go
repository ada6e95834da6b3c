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

package replay

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/jobsync/ingestion/internal/extract"
	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/pipeline"
	"github.com/jobsync/ingestion/internal/ratelimit"
	"github.com/jobsync/ingestion/internal/sender"
	"github.com/jobsync/ingestion/internal/store/memory"
)

// --- Mock generator ---

type staticGenerator string

func (g staticGenerator) Generate(context.Context, string) (string, error) {
	return string(g), nil
}

// --- Test helpers ---

func payload(to, messageID string) string {
	return `{
  "envelope": {"from": "maihe88@gmail.com", "to": "` + to + `"},
  "headers": {"Subject": "Fwd: Update", "Message-ID": "` + messageID + `"},
  "plain": "---------- Forwarded message ---------\nFrom: HR <hr@acme.com>\n\nThanks for applying."
}`
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newRunner(t *testing.T, s *memory.Store) *Runner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ing := pipeline.NewIngestor(
		sender.NewResolver(sender.Options{InboundDomain: "jobsync.fyi"}),
		s, s, ratelimit.New(s, 0, logger), nil, logger,
	)
	gen := staticGenerator(`{"company":"Acme","job_title":"SWE","current_stage":"applied"}`)
	cls := pipeline.NewClassifier(extract.NewClient(gen, logger), s, s, s, nil, logger)
	return NewRunner(RunnerConfig{Ingester: ing, Classifier: cls, Concurrency: 2, Logger: logger})
}

func TestRun(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"01.json":   payload("abc123@jobsync.fyi", "<1@x>"),
		"02.json":   payload("abc123@jobsync.fyi", "<2@x>"),
		"03.json":   payload("nobody@jobsync.fyi", "<3@x>"),
		"04.json":   "{broken",
		"notes.txt": "ignored",
		"05.eml":    "From: maihe88@gmail.com\r\nTo: abc123@jobsync.fyi\r\nSubject: Fwd: Hi\r\n\r\nHello\r\n",
	})

	paths, err := Expand([]string{dir})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(paths) != 5 || !strings.HasSuffix(paths[0], "01.json") {
		t.Fatalf("paths = %v", paths)
	}

	s := memory.New()
	s.AddUser("ABC123", "user-1")

	res, err := newRunner(t, s).Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Accepted != 3 || res.Skipped != 1 || res.Errors != 1 || res.Classified != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Files[3].Err == nil || res.Files[3].Status != "error" {
		t.Errorf("broken file = %+v", res.Files[3])
	}

	jobs, _ := s.ListJobs(context.Background(), "user-1", "ABC123")
	if len(jobs) != 1 || len(jobs[0].LinkedEmailIDs) != 3 {
		t.Errorf("jobs = %+v", jobs)
	}
	for _, e := range s.RawEmails() {
		if e.ProcessingStatus != models.StatusCompleted {
			t.Errorf("email %s status = %s", e.ID, e.ProcessingStatus)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"01.json": payload("abc123@jobsync.fyi", "<1@x>")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newRunner(t, memory.New()).Run(ctx, []string{filepath.Join(dir, "01.json")}); err == nil {
		t.Error("expected context error")
	}
}

func TestExpand_Empty(t *testing.T) {
	if _, err := Expand([]string{t.TempDir()}); err == nil {
		t.Error("expected error for empty directory")
	}
	if _, err := Expand([]string{"/does/not/exist"}); err == nil {
		t.Error("expected error for missing path")
	}
}

package pipeline

import (
	"errors"
	"testing"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

func TestParseIngestMessage(t *testing.T) {
	msg, err := ParseIngestMessage(`{"bucket":"inbound-docs","key":"drop/a.pdf","timestamp":"2025-06-01T12:00:00Z"}`)
	if err != nil {
		t.Fatalf("ParseIngestMessage: %v", err)
	}
	if msg.Bucket != "inbound-docs" || msg.Key != "drop/a.pdf" {
		t.Errorf("parsed = %+v", msg)
	}

	bad := []struct {
		name string
		body string
	}{
		{"not json", `{oops`},
		{"missing bucket", `{"key":"drop/a.pdf"}`},
		{"missing key", `{"bucket":"inbound-docs"}`},
		{"bad timestamp", `{"bucket":"b","key":"k.pdf","timestamp":"yesterday"}`},
		{"bad documentId", `{"bucket":"b","key":"k.pdf","documentId":"nope"}`},
		{"bad eventTime", `{"bucket":"b","key":"k.pdf","metadata":{"eventTime":"noon"}}`},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseIngestMessage(tc.body); !errors.Is(err, common.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestParseCompletionNotificationAcceptsBothForms(t *testing.T) {
	bare := `{"JobId":"tx-1","Status":"SUCCEEDED","API":"StartDocumentAnalysis"}`
	note, err := ParseCompletionNotification(bare)
	if err != nil {
		t.Fatalf("bare payload: %v", err)
	}
	if note.JobID != "tx-1" || note.Status != "SUCCEEDED" {
		t.Errorf("parsed = %+v", note)
	}

	wrapped := `{"Type":"Notification","Message":"{\"JobId\":\"tx-2\",\"Status\":\"FAILED\"}"}`
	note, err = ParseCompletionNotification(wrapped)
	if err != nil {
		t.Fatalf("wrapped payload: %v", err)
	}
	if note.JobID != "tx-2" || note.Status != "FAILED" {
		t.Errorf("parsed = %+v", note)
	}
}

func TestParseCompletionNotificationRejectsIncomplete(t *testing.T) {
	bad := []string{
		`not json at all`,
		`{"Status":"SUCCEEDED"}`,
		`{"JobId":"tx-1"}`,
		`{"Type":"Notification","Message":"{\"Status\":\"SUCCEEDED\"}"}`,
	}
	for _, body := range bad {
		if _, err := ParseCompletionNotification(body); !errors.Is(err, common.ErrValidation) {
			t.Errorf("body %q: err = %v, want validation error", body, err)
		}
	}
}

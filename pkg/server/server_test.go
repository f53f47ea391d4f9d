package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/traceqa/backend/pkg/archive"
	"github.com/traceqa/backend/pkg/credentials"
	"github.com/traceqa/backend/pkg/notifier"
	"github.com/traceqa/backend/pkg/testcases"
)

type fakeDispatcher struct {
	state   credentials.State
	outcome notifier.Outcome

	journey string
	records []testcases.Record
}

func (d *fakeDispatcher) State() credentials.State { return d.state }

func (d *fakeDispatcher) Send(_ context.Context, records []testcases.Record, journey string) notifier.Outcome {
	d.journey, d.records = journey, records
	return d.outcome
}

func (d *fakeDispatcher) Prepare(_ context.Context, records []testcases.Record, journey string) notifier.Outcome {
	d.journey, d.records = journey, records
	return d.outcome
}

type fakeRenderer struct {
	data []byte
	err  error
}

func (r *fakeRenderer) Build([]testcases.Record) ([]byte, error) { return r.data, r.err }

func intPtr(i int) *int { return &i }

func fixedClock() time.Time { return time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC) }

func serve(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const twoCases = `{"journey":"Onboarding","tests":[{"test_case_name":"a","steps":["x","y"]},{"title":"b"}]}`

func TestBannerAndHealth(t *testing.T) {
	handler := New(&fakeDispatcher{state: credentials.StateDegraded}, &fakeRenderer{}).Handler(DefaultAllowedOrigins)

	testCases := []struct {
		path     string
		expected map[string]string
	}{
		{path: "/", expected: map[string]string{"message": "Enterprise Requirements AI API", "version": "1.0.0", "health": "/api/health"}},
		{path: "/api/health", expected: map[string]string{"status": "ok", "email": "degraded"}},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			rec := serve(t, handler, http.MethodGet, tc.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var actual map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &actual); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if diff := cmp.Diff(tc.expected, actual); diff != "" {
				t.Errorf("unexpected body (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEmailHandlers(t *testing.T) {
	testCases := []struct {
		name    string
		path    string
		body    string
		outcome notifier.Outcome

		expectedStatus int
		expectedBody   string
		expectedCount  int
	}{
		{
			name:           "sent",
			path:           "/api/tests/email",
			body:           twoCases,
			outcome:        notifier.Outcome{Success: true, Message: "Test cases sent to BA successfully", MessageID: "msg-1", Recipient: "ba@example.com", AttachmentFilename: "f.xlsx"},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"message":"Test cases sent to BA successfully","message_id":"msg-1","recipient":"ba@example.com","attachment_filename":"f.xlsx"}`,
			expectedCount:  2,
		},
		{
			name:           "unauthenticated",
			path:           "/api/tests/email",
			body:           twoCases,
			outcome:        notifier.Outcome{Message: notifier.MessageUnauthenticated, Unauthenticated: true},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"success":false,"message":"Gmail API not authenticated. Please check credentials."}`,
			expectedCount:  2,
		},
		{
			name:           "send failure",
			path:           "/api/tests/email",
			body:           twoCases,
			outcome:        notifier.Outcome{Message: "Failed to send email: connection reset"},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"success":false,"message":"Failed to send email: connection reset"}`,
			expectedCount:  2,
		},
		{
			name:           "malformed body",
			path:           "/api/tests/email",
			body:           `{"journey":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "empty journey",
			path:           "/api/tests/email/preview",
			body:           `{"journey":" ","tests":[]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "preview",
			path:           "/api/tests/email/preview",
			body:           twoCases,
			outcome:        notifier.Outcome{Success: true, Message: "prepared", Journey: "Onboarding", TestCount: intPtr(2), AttachmentSize: 10, Note: "Email details logged, not sent"},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"success":true,"message":"prepared","journey":"Onboarding","test_count":2,"attachment_size":10,"note":"Email details logged, not sent"}`,
			expectedCount:  2,
		},
		{
			name:           "preview failure",
			path:           "/api/tests/email/preview",
			body:           twoCases,
			outcome:        notifier.Outcome{Message: "Failed to prepare email: boom"},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"success":false,"message":"Failed to prepare email: boom"}`,
			expectedCount:  2,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{outcome: tc.outcome}
			rec := serve(t, New(dispatcher, &fakeRenderer{}).Handler(DefaultAllowedOrigins), http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.expectedStatus, rec.Code, rec.Body.String())
			}
			if tc.expectedBody != "" {
				if diff := cmp.Diff(tc.expectedBody, rec.Body.String()); diff != "" {
					t.Errorf("unexpected body (-want +got):\n%s", diff)
				}
				if rec.Header().Get("Content-Type") != "application/json" {
					t.Errorf("expected a json response, got %q", rec.Header().Get("Content-Type"))
				}
			}
			if len(dispatcher.records) != tc.expectedCount {
				t.Errorf("expected %d records to reach the dispatcher, got %d", tc.expectedCount, len(dispatcher.records))
			}
			if tc.expectedCount > 0 {
				if dispatcher.journey != "Onboarding" {
					t.Errorf("expected the journey to reach the dispatcher, got %q", dispatcher.journey)
				}
				if diff := cmp.Diff([]interface{}{"x", "y"}, dispatcher.records[0]["steps"]); diff != "" {
					t.Errorf("unexpected decoded steps (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestRequestBodyLimit(t *testing.T) {
	testCases := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
		expectedCount  int
	}{
		{
			name:           "body within the limit",
			path:           "/api/tests/email/preview",
			body:           twoCases,
			expectedStatus: http.StatusOK,
			expectedCount:  2,
		},
		{
			name:           "oversized preview is rejected",
			path:           "/api/tests/email/preview",
			body:           `{"journey":"Onboarding","tests":[{"name":"` + strings.Repeat("a", 1024) + `"}]}`,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:           "oversized send is rejected",
			path:           "/api/tests/email",
			body:           `{"journey":"Onboarding","tests":[{"name":"` + strings.Repeat("a", 1024) + `"}]}`,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:           "oversized export is rejected",
			path:           "/api/tests/export",
			body:           `{"journey":"Onboarding","tests":[{"name":"` + strings.Repeat("a", 1024) + `"}]}`,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{outcome: notifier.Outcome{Success: true, Message: "prepared"}}
			handler := New(dispatcher, &fakeRenderer{data: []byte("xlsx")}, WithMaxRequestBytes(512)).Handler(DefaultAllowedOrigins)
			rec := serve(t, handler, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.expectedStatus, rec.Code, rec.Body.String())
			}
			if len(dispatcher.records) != tc.expectedCount {
				t.Errorf("expected %d records to reach the dispatcher, got %d", tc.expectedCount, len(dispatcher.records))
			}
		})
	}
}

func TestExportHandler(t *testing.T) {
	testCases := []struct {
		name           string
		renderer       *fakeRenderer
		expectedStatus int
	}{
		{name: "report is downloaded", renderer: &fakeRenderer{data: []byte("xlsx bytes")}, expectedStatus: http.StatusOK},
		{name: "render failure", renderer: &fakeRenderer{err: errors.New("boom")}, expectedStatus: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := New(&fakeDispatcher{}, tc.renderer, WithClock(fixedClock)).Handler(DefaultAllowedOrigins)
			rec := serve(t, handler, http.MethodPost, "/api/tests/export", twoCases)
			if rec.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d", tc.expectedStatus, rec.Code)
			}
			if tc.expectedStatus != http.StatusOK {
				return
			}
			if diff := cmp.Diff(`attachment; filename="test_cases_Onboarding_20250102_030405.xlsx"`, rec.Header().Get("Content-Disposition")); diff != "" {
				t.Errorf("unexpected disposition (-want +got):\n%s", diff)
			}
			if rec.Header().Get("Content-Type") != notifier.SpreadsheetContentType {
				t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
			}
			if rec.Body.String() != "xlsx bytes" {
				t.Errorf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestReportHandler(t *testing.T) {
	reports := archive.NewLocalArchive(afero.NewMemMapFs(), "reports")
	if err := reports.Store(context.Background(), "kept.xlsx", []byte("kept")); err != nil {
		t.Fatalf("failed to seed archive: %v", err)
	}
	handler := New(&fakeDispatcher{}, &fakeRenderer{}, WithReports(reports)).Handler(DefaultAllowedOrigins)

	if rec := serve(t, handler, http.MethodGet, "/api/reports/kept.xlsx", ""); rec.Code != http.StatusOK || rec.Body.String() != "kept" {
		t.Errorf("expected the archived report, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(t, handler, http.MethodGet, "/api/reports/missing.xlsx", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing report, got %d", rec.Code)
	}
	if rec := serve(t, handler, http.MethodGet, "/api/reports/..%5Ckept.xlsx", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a name with a path separator, got %d", rec.Code)
	}

	withoutReports := New(&fakeDispatcher{}, &fakeRenderer{}).Handler(DefaultAllowedOrigins)
	if rec := serve(t, withoutReports, http.MethodGet, "/api/reports/kept.xlsx", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected the route to be absent without an archive, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	handler := New(&fakeDispatcher{}, &fakeRenderer{}).Handler(DefaultAllowedOrigins)
	testCases := []struct {
		name     string
		origin   string
		expected string
	}{
		{name: "allowed origin", origin: "http://localhost:3000", expected: "http://localhost:3000"},
		{name: "other allowed origin", origin: "http://127.0.0.1:3000", expected: "http://127.0.0.1:3000"},
		{name: "foreign origin", origin: "http://evil.example.com", expected: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/tests/email", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if diff := cmp.Diff(tc.expected, rec.Header().Get("Access-Control-Allow-Origin")); diff != "" {
				t.Errorf("unexpected allowed origin (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := New(&fakeDispatcher{state: credentials.StateReady}, &fakeRenderer{}).Handler(DefaultAllowedOrigins)
	serve(t, handler, http.MethodGet, "/api/health", "")

	rec := serve(t, handler, http.MethodGet, "/metrics", "")
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("failed to read metrics: %v", err)
	}
	for _, metric := range []string{
		`traceqa_http_request_duration_seconds_count{method="GET",path="/api/health",status="200"}`,
		`traceqa_http_response_size_bytes_count{method="GET",path="/api/health",status="200"}`,
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("expected metrics to contain %s", metric)
		}
	}
}

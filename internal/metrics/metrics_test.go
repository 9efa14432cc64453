package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := scraperRecordsTotal
	Init()
	if scraperRecordsTotal == nil || scraperRecordsTotal != first {
		t.Fatal("Init() should build collectors exactly once")
	}
}

func TestObserveRecordAndPass(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperRecordsTotal.WithLabelValues("relevance_failed"))
	ObserveRecord("relevance_failed")
	ObserveRecord("relevance_failed")
	if got := testutil.ToFloat64(scraperRecordsTotal.WithLabelValues("relevance_failed")) - before; got != 2 {
		t.Fatalf("expected 2 relevance_failed records, got %v", got)
	}

	passesBefore := testutil.ToFloat64(scraperPassesTotal.WithLabelValues("completed"))
	ObservePass("completed", 3*time.Second)
	if got := testutil.ToFloat64(scraperPassesTotal.WithLabelValues("completed")) - passesBefore; got != 1 {
		t.Fatalf("expected one completed pass, got %v", got)
	}
}

func TestObserveExtractionCountsBytesBySite(t *testing.T) {
	Init()
	ObserveExtraction("https://News.Example.test/a", true, 128, time.Second)
	ObserveExtraction("https://news.example.test/b", false, 0, time.Second)
	if got := testutil.ToFloat64(scraperBytesTotal.WithLabelValues("news.example.test")); got < 128 {
		t.Fatalf("expected at least 128 bytes recorded, got %v", got)
	}
	if testutil.CollectAndCount(scraperExtractDurationSeconds) < 2 {
		t.Fatal("expected ok and error extraction series")
	}
}

func TestRobotsFallbackCounter(t *testing.T) {
	Init()
	before := testutil.ToFloat64(scraperRobotsFallbackTotal)
	ObserveRobotsFallback()
	if got := testutil.ToFloat64(scraperRobotsFallbackTotal); got != before+1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, got)
	}
}

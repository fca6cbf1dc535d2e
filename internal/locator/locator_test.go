package locator

import (
	"strings"
	"testing"
)

const testHash = "a3f1c2d4e5b6978812345678deadbeef"

func TestParseAcceptedForms(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"bare", testHash + ":Daily Drift", testHash + ":Daily Drift"},
		{"scheme", "nomadcast:" + testHash + ":Daily Drift", testHash + ":Daily Drift"},
		{"double slash", "nomadcast://" + testHash + ":Daily Drift", testHash + ":Daily Drift"},
		{"trailing rss", "nomadcast:" + testHash + ":Daily Drift/rss", testHash + ":Daily Drift"},
		{"uppercase hash", strings.ToUpper(testHash) + ":Show", testHash + ":Show"},
		{"surrounding space", "  " + testHash + ":Show  ", testHash + ":Show"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := Parse(tc.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tc.input, err)
			}
			if loc.Canonical() != tc.want {
				t.Errorf("Canonical() = %q, want %q", loc.Canonical(), tc.want)
			}
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing name", testHash},
		{"empty name", testHash + ":"},
		{"short hash", "abc123:Show"},
		{"long hash", testHash + "00:Show"},
		{"non hex hash", strings.Repeat("g", 32) + ":Show"},
		{"media url", "nomadcast:" + testHash + ":Show/media/ep1.mp3"},
		{"wrong scheme", "http://example.com/feed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.input)
			}
		})
	}
}

func TestPathSegmentRoundTrip(t *testing.T) {
	loc, err := Parse(testHash + ":Shows & Tales/Weekly")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	segment := loc.PathSegment()
	if strings.Contains(segment, "/") {
		t.Errorf("PathSegment() = %q contains a path separator", segment)
	}
	back, err := ParsePathSegment(segment)
	if err != nil {
		t.Fatalf("ParsePathSegment(%q) failed: %v", segment, err)
	}
	if back != loc {
		t.Errorf("round trip = %+v, want %+v", back, loc)
	}
}

func TestParseMediaURL(t *testing.T) {
	loc, filename, err := ParseMediaURL("nomadcast:" + testHash + ":Daily Drift/media/episode%20one.mp3")
	if err != nil {
		t.Fatalf("ParseMediaURL failed: %v", err)
	}
	if loc.Hash != testHash || loc.Name != "Daily Drift" {
		t.Errorf("locator = %+v", loc)
	}
	if filename != "episode one.mp3" {
		t.Errorf("filename = %q", filename)
	}
}

func TestParseMediaURLRejects(t *testing.T) {
	cases := []string{
		"nomadcast:" + testHash + ":Show",
		"nomadcast:" + testHash + ":Show/media/",
		"nomadcast:" + testHash + ":Show/media/..%2Fstate.json",
		"nomadcast:" + testHash + ":Show/media/sub%2Fdir.mp3",
		"https://cdn.example.com/ep1.mp3",
	}
	for _, input := range cases {
		if _, _, err := ParseMediaURL(input); err == nil {
			t.Errorf("ParseMediaURL(%q) succeeded, want error", input)
		}
	}
}

func TestValidFilename(t *testing.T) {
	valid := []string{"ep1.mp3", "Episode One.mp3", "a", strings.Repeat("x", 255)}
	for _, name := range valid {
		if !ValidFilename(name) {
			t.Errorf("ValidFilename(%q) = false, want true", name)
		}
	}
	invalid := []string{"", "a/b.mp3", `a\b.mp3`, "..", "x..y.mp3", strings.Repeat("x", 256), "bad\x00name"}
	for _, name := range invalid {
		if ValidFilename(name) {
			t.Errorf("ValidFilename(%q) = true, want false", name)
		}
	}
}

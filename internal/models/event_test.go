package models

import (
	"testing"
	"time"
)

func TestEventQuery_Matches(t *testing.T) {
	ev := NormalizedEvent{
		PostKey:   "rss:src-1:post-1",
		TenantID:  "tenant-a",
		SourceID:  "src-1",
		Platform:  PlatformRSS,
		Domain:    DomainNews,
		Title:     "Fab expansion announced",
		CreatedAt: time.Date(2026, 1, 15, 3, 15, 0, 0, time.UTC),
	}

	tests := []struct {
		name  string
		query EventQuery
		want  bool
	}{
		{"empty query matches", EventQuery{}, true},
		{"tenant match", EventQuery{TenantID: "tenant-a"}, true},
		{"tenant mismatch", EventQuery{TenantID: "tenant-b"}, false},
		{"source match", EventQuery{SourceIDs: []string{"src-1", "src-2"}}, true},
		{"source mismatch", EventQuery{SourceIDs: []string{"src-9"}}, false},
		{"platform match", EventQuery{Platforms: []string{PlatformRSS}}, true},
		{"domain mismatch", EventQuery{Domains: []string{DomainMarket}}, false},
		{"since before event", EventQuery{Since: ev.CreatedAt.Add(-time.Hour)}, true},
		{"since after event", EventQuery{Since: ev.CreatedAt.Add(time.Hour)}, false},
		{"until before event", EventQuery{Until: ev.CreatedAt.Add(-time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(ev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDomainForPlatform(t *testing.T) {
	tests := []struct {
		platform string
		want     string
	}{
		{PlatformFacebook, DomainSocial},
		{PlatformInstagram, DomainSocial},
		{PlatformThreads, DomainSocial},
		{PlatformMarket, DomainMarket},
		{PlatformRSS, DomainNews},
		{PlatformNewsRSS, DomainNews},
		{"unknown", DomainNews},
	}

	for _, tt := range tests {
		if got := DomainForPlatform(tt.platform); got != tt.want {
			t.Errorf("DomainForPlatform(%s) = %s, want %s", tt.platform, got, tt.want)
		}
	}
}

func TestCursor_IsZero(t *testing.T) {
	if !(Cursor{}).IsZero() {
		t.Error("Expected zero cursor to report IsZero")
	}
	if (Cursor{Type: CursorSinceTs, Value: "2026-01-15T03:15:00Z"}).IsZero() {
		t.Error("Expected advanced cursor to not report IsZero")
	}
}

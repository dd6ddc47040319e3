package telegram

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestEstimateAccountCreationIsMonotonic(t *testing.T) {
	ids := []int64{1, 5_000_000, 150_000_000, 999_999_999, 1_750_000_000, 5_500_000_000, 7_900_000_000}
	prev := time.Time{}
	for _, id := range ids {
		got := EstimateAccountCreation(id)
		if got.Before(prev) {
			t.Fatalf("estimate for %d (%s) is before previous %s", id, got, prev)
		}
		prev = got
	}
}

func TestEstimateAccountCreationInterpolates(t *testing.T) {
	got := EstimateAccountCreation(1_750_000_000)
	lo := anchorDate(2021, time.January)
	hi := anchorDate(2021, time.September)
	if !got.After(lo) || !got.Before(hi) {
		t.Fatalf("expected estimate between %s and %s, got %s", lo, hi, got)
	}

	if got := EstimateAccountCreation(100_000_000); !got.Equal(anchorDate(2015, time.April)) {
		t.Fatalf("expected anchor date for exact id, got %s", got)
	}
}

func TestEstimateAccountCreationNeverInFuture(t *testing.T) {
	fixed := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	estimateNow = func() time.Time { return fixed }
	t.Cleanup(func() { estimateNow = time.Now })

	if got := EstimateAccountCreation(50_000_000_000); !got.Equal(fixed) {
		t.Fatalf("expected estimate clamped to now, got %s", got)
	}
}

func TestTicketRefRoundTrip(t *testing.T) {
	ref := FormatTicketRef(-1001234, 77)
	chatID, threadID, err := ParseTicketRef(ref)
	if err != nil {
		t.Fatalf("parse ref: %v", err)
	}
	if chatID != -1001234 || threadID != 77 {
		t.Fatalf("unexpected ref parts: %d %d", chatID, threadID)
	}

	for _, bad := range []string{"", "abc", "-100:", ":5", "-100:0", "0:5", "-100:x"} {
		if _, _, err := ParseTicketRef(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestJoinedTransitions(t *testing.T) {
	cases := []struct {
		old, new string
		want     bool
	}{
		{"left", "member", true},
		{"kicked", "restricted", true},
		{"", "member", true},
		{"member", "restricted", false},
		{"member", "left", false},
		{"left", "administrator", false},
	}
	for _, tc := range cases {
		if got := joined(tc.old, tc.new); got != tc.want {
			t.Fatalf("joined(%q, %q) = %v, want %v", tc.old, tc.new, got, tc.want)
		}
	}
}

func TestPermissionSets(t *testing.T) {
	if p := mutedPermissions(); p.CanSendMessages || p.CanSendMediaMessages {
		t.Fatalf("muted members must not send anything")
	}
	q := quarantinePermissions()
	if !q.CanSendMessages || q.CanSendMediaMessages || q.CanAddWebPagePreviews || q.CanSendOtherMessages {
		t.Fatalf("quarantine must allow text only: %+v", q)
	}
	if m := memberPermissions(); !m.CanSendMessages || !m.CanSendMediaMessages {
		t.Fatalf("restored members must send media: %+v", m)
	}
}

func TestDisplayName(t *testing.T) {
	if got := displayName(&tgbotapi.User{UserName: "sam"}); got != "@sam" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := displayName(&tgbotapi.User{FirstName: "Sam", LastName: "Lee"}); got != "Sam Lee" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := truncateTopicName(""); got != "ticket" {
		t.Fatalf("unexpected topic name %q", got)
	}
}

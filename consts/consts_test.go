package consts

import (
	"sync"
	"testing"
	"time"
)

func TestServiceName(t *testing.T) {
	if ServiceName != "jmerge" {
		t.Errorf("ServiceName = %q, want %q", ServiceName, "jmerge")
	}
}

func TestLabelVocabulary(t *testing.T) {
	labels := map[string]string{
		LabelRFR:           "rfr",
		LabelReady:         "ready",
		LabelMergeConflict: "merge-conflict",
		LabelClean:         "clean",
		LabelBackport:      "backport",
		LabelJEP:           "jep",
		LabelSponsor:       "sponsor",
		LabelIntegrated:    "integrated",
		LabelBlock:         "block",
	}
	for got, want := range labels {
		if got != want {
			t.Errorf("label = %q, want %q", got, want)
		}
	}
}

func TestCheckConstants(t *testing.T) {
	if CheckName != "jcheck" {
		t.Errorf("CheckName = %q, want %q", CheckName, "jcheck")
	}
	if DefaultCheckSummaryCap != 65000 {
		t.Errorf("DefaultCheckSummaryCap = %d, want 65000", DefaultCheckSummaryCap)
	}
}

func TestSetStartedAt(t *testing.T) {
	// Reset state for testing
	startedAt = time.Time{}
	startedOnce = sync.Once{}

	now := time.Now()
	SetStartedAt(now)

	got := GetStartedAt()
	if !got.Equal(now) {
		t.Errorf("GetStartedAt() = %v, want %v", got, now)
	}

	// Test that SetStartedAt can only be called once
	anotherTime := now.Add(time.Hour)
	SetStartedAt(anotherTime)
	got = GetStartedAt()
	if !got.Equal(now) {
		t.Errorf("GetStartedAt() after second call = %v, want %v (should not change)", got, now)
	}
}

func TestGetUptime(t *testing.T) {
	// Reset state
	startedAt = time.Time{}
	startedOnce = sync.Once{}

	// Zero time means no recorded start
	if GetUptime() != 0 {
		t.Error("GetUptime() should be 0 before SetStartedAt")
	}

	SetStartedAt(time.Now().Add(-time.Minute))
	if GetUptime() < time.Minute {
		t.Errorf("GetUptime() = %v, want >= 1m", GetUptime())
	}
}

package models

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestDynamicTopicAvailableOn(t *testing.T) {
	after := day(10)
	before := day(12)

	cases := []struct {
		name  string
		topic DynamicTopic
		day   time.Time
		want  bool
	}{
		{"no window", DynamicTopic{}, day(1), true},
		{"before window opens", DynamicTopic{UseAfterDate: &after}, day(9), false},
		{"on opening day", DynamicTopic{UseAfterDate: &after}, day(10), true},
		{"on closing day", DynamicTopic{UseBeforeDate: &before}, day(12), true},
		{"after window closes", DynamicTopic{UseBeforeDate: &before}, day(13), false},
		{"inside both bounds", DynamicTopic{UseAfterDate: &after, UseBeforeDate: &before}, day(11), true},
	}
	for _, c := range cases {
		if got := c.topic.AvailableOn(c.day); got != c.want {
			t.Errorf("%s: AvailableOn(%v) = %v, want %v", c.name, c.day, got, c.want)
		}
	}

	// Bounds compare at date granularity: a mid-day timestamp on the opening
	// day still counts as inside the window.
	afternoon := time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)
	topic := DynamicTopic{UseAfterDate: &after, UseBeforeDate: &before}
	if !topic.AvailableOn(afternoon) {
		t.Error("opening-day afternoon should be inside the window")
	}
}

func TestDynamicTopicExpired(t *testing.T) {
	before := day(12)
	topic := DynamicTopic{UseBeforeDate: &before}

	if topic.Expired(day(12)) {
		t.Error("closing day itself is not expired (inclusive bound)")
	}
	if !topic.Expired(day(13)) {
		t.Error("day after the closing day should be expired")
	}
	open := DynamicTopic{}
	if open.Expired(day(13)) {
		t.Error("topic without a closing bound never expires")
	}
}

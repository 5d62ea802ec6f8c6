package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/content-scheduler/internal/models"
	"github.com/content-scheduler/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestSchedule(t *testing.T, repo *Repository) *models.Schedule {
	t.Helper()
	schedule := &models.Schedule{
		Name:        "morning digest",
		IsActive:    true,
		Frequency:   models.FrequencyDaily,
		PublishTime: "09:00",
	}
	if err := repo.CreateSchedule(context.Background(), schedule); err != nil {
		t.Fatalf("failed to create schedule: %v", err)
	}
	return schedule
}

func TestBeginRunRejectsConcurrentExecution(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	first, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatalf("first BeginRun failed: %v", err)
	}
	if first.Status != models.ExecutionStatusRunning {
		t.Errorf("log status = %s, want running", first.Status)
	}

	if _, err := repo.BeginRun(ctx, schedule.ID, models.TriggerManual); !errors.Is(err, storage.ErrRunInProgress) {
		t.Errorf("second BeginRun error = %v, want ErrRunInProgress", err)
	}

	// Finalizing the first run unblocks the next trigger.
	now := time.Now()
	first.Status = models.ExecutionStatusSkipped
	first.CompletedAt = &now
	if err := repo.FinishRun(ctx, storage.RunCompletion{Log: first}); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if _, err := repo.BeginRun(ctx, schedule.ID, models.TriggerManual); err != nil {
		t.Errorf("BeginRun after completion failed: %v", err)
	}
}

func TestClaimTopicForRunIsCompareAndSet(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	topic := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "zero-downtime deploys"}
	if err := repo.CreateDynamicTopic(ctx, topic); err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); !errors.Is(err, storage.ErrTopicUnavailable) {
		t.Errorf("second claim error = %v, want ErrTopicUnavailable", err)
	}

	if err := repo.ReleaseDynamicTopic(ctx, topic.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); err != nil {
		t.Errorf("claim after release failed: %v", err)
	}
}

func TestClaimTopicForRunStampsLogAtomically(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	topic := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "claimed and recorded"}
	if err := repo.CreateDynamicTopic(ctx, topic); err != nil {
		t.Fatal(err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}

	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// The moment the claim is visible, the log row already names the topic;
	// there is no window where a claimed topic has no log pointing at it.
	logs, err := repo.ListLogs(ctx, schedule.ID, storage.LogFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].DynamicTopicID == nil || *logs[0].DynamicTopicID != topic.ID {
		t.Errorf("log dynamic topic = %v, want %d", logs[0].DynamicTopicID, topic.ID)
	}
	if logs[0].TopicType != models.TopicTypeDynamic || logs[0].TopicUsed != topic.Topic {
		t.Errorf("log topic stamp = %s %q", logs[0].TopicType, logs[0].TopicUsed)
	}
}

func TestClaimTopicForRunRollsBackWithoutRunningLog(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	topic := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "orphan claim"}
	if err := repo.CreateDynamicTopic(ctx, topic); err != nil {
		t.Fatal(err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	run.Status = models.ExecutionStatusSkipped
	if err := repo.FinishRun(ctx, storage.RunCompletion{Log: run}); err != nil {
		t.Fatal(err)
	}

	// Claiming against a terminal log must fail and roll the claim back.
	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); err == nil {
		t.Fatal("claim against a finished run should fail")
	}
	topics, _ := repo.ListDynamicTopics(ctx, schedule.ID, storage.TopicFilter{})
	if topics[0].Status != models.DynamicTopicStatusPending {
		t.Errorf("topic status = %s, want pending after rollback", topics[0].Status)
	}
}

func TestCandidateDynamicTopicsOrderingAndWindow(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()
	today := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	mk := func(topic string, priority int, after, before *time.Time) *models.DynamicTopic {
		dt := &models.DynamicTopic{
			ScheduleID:    schedule.ID,
			Topic:         topic,
			Priority:      priority,
			UseAfterDate:  after,
			UseBeforeDate: before,
		}
		if err := repo.CreateDynamicTopic(ctx, dt); err != nil {
			t.Fatalf("failed to create %q: %v", topic, err)
		}
		return dt
	}

	mk("low priority", 1, nil, nil)
	mk("not yet open", 9, &tomorrow, nil)
	mk("already closed", 9, nil, &yesterday)
	tieLater := mk("tie, later window", 5, &today, nil)
	tieEarlier := mk("tie, earlier window", 5, &yesterday, nil)
	top := mk("top priority", 7, nil, nil)

	got, err := repo.CandidateDynamicTopics(ctx, schedule.ID, today)
	if err != nil {
		t.Fatalf("CandidateDynamicTopics failed: %v", err)
	}

	want := []uint{top.ID, tieEarlier.ID, tieLater.ID}
	if len(got) < 3 {
		t.Fatalf("got %d candidates, want at least 3", len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("candidate[%d] = %q (id %d), want id %d", i, got[i].Topic, got[i].ID, id)
		}
	}
	for _, c := range got {
		if c.Topic == "not yet open" || c.Topic == "already closed" {
			t.Errorf("topic %q outside its window should not be a candidate", c.Topic)
		}
	}
}

func TestExpireDynamicTopics(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()
	today := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	lastWeek := today.AddDate(0, 0, -7)

	expired := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "stale", UseBeforeDate: &lastWeek}
	open := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "fresh"}
	for _, dt := range []*models.DynamicTopic{expired, open} {
		if err := repo.CreateDynamicTopic(ctx, dt); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.ExpireDynamicTopics(ctx, schedule.ID, today)
	if err != nil {
		t.Fatalf("ExpireDynamicTopics failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d topics, want 1", n)
	}

	topics, err := repo.ListDynamicTopics(ctx, schedule.ID, storage.TopicFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, topic := range topics {
		switch topic.Topic {
		case "stale":
			if topic.Status != models.DynamicTopicStatusSkipped {
				t.Errorf("stale topic status = %s, want skipped", topic.Status)
			}
		case "fresh":
			if topic.Status != models.DynamicTopicStatusPending {
				t.Errorf("fresh topic status = %s, want pending", topic.Status)
			}
		}
	}
}

func TestFixedTopicDayCollision(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	first := &models.FixedTopic{ScheduleID: schedule.ID, DayOfWeek: 2, Topic: "midweek roundup"}
	if err := repo.CreateFixedTopic(ctx, first); err != nil {
		t.Fatalf("first fixed topic failed: %v", err)
	}

	dup := &models.FixedTopic{ScheduleID: schedule.ID, DayOfWeek: 2, Topic: "another wednesday"}
	if err := repo.CreateFixedTopic(ctx, dup); !errors.Is(err, storage.ErrFixedDayTaken) {
		t.Errorf("duplicate day error = %v, want ErrFixedDayTaken", err)
	}

	// Same weekday on a different schedule is fine.
	other := newTestSchedule(t, repo)
	if err := repo.CreateFixedTopic(ctx, &models.FixedTopic{
		ScheduleID: other.ID, DayOfWeek: 2, Topic: "other schedule",
	}); err != nil {
		t.Errorf("fixed topic on other schedule failed: %v", err)
	}
}

func TestUpdateFixedTopicChecksPersistedSchedule(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	other := newTestSchedule(t, repo)
	ctx := context.Background()

	monday := &models.FixedTopic{ScheduleID: schedule.ID, DayOfWeek: 0, Topic: "monday"}
	tuesday := &models.FixedTopic{ScheduleID: schedule.ID, DayOfWeek: 1, Topic: "tuesday"}
	for _, topic := range []*models.FixedTopic{monday, tuesday} {
		if err := repo.CreateFixedTopic(ctx, topic); err != nil {
			t.Fatal(err)
		}
	}

	// Moving tuesday onto monday's slot collides even when the caller's
	// struct carries a wrong or missing schedule reference; the check runs
	// against the topic's stored schedule.
	edit := &models.FixedTopic{ID: tuesday.ID, ScheduleID: other.ID, DayOfWeek: 0, Topic: "tuesday"}
	if err := repo.UpdateFixedTopic(ctx, edit); !errors.Is(err, storage.ErrFixedDayTaken) {
		t.Errorf("update error = %v, want ErrFixedDayTaken", err)
	}

	// A legitimate move succeeds and never rebinds the topic's schedule.
	edit = &models.FixedTopic{ID: tuesday.ID, DayOfWeek: 2, Topic: "tuesday, moved"}
	if err := repo.UpdateFixedTopic(ctx, edit); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	topics, err := repo.ListFixedTopics(ctx, schedule.ID)
	if err != nil {
		t.Fatal(err)
	}
	moved := false
	for _, topic := range topics {
		if topic.ID == tuesday.ID {
			moved = true
			if topic.DayOfWeek != 2 || topic.ScheduleID != schedule.ID {
				t.Errorf("topic after update = day %d schedule %d", topic.DayOfWeek, topic.ScheduleID)
			}
		}
	}
	if !moved {
		t.Error("updated topic left its original schedule")
	}
}

func TestFinishRunCommitsPostTopicAndScheduleTogether(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	topic := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "observability on a budget"}
	if err := repo.CreateDynamicTopic(ctx, topic); err != nil {
		t.Fatal(err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	next := now.Add(24 * time.Hour)
	run.Status = models.ExecutionStatusSuccess
	run.TopicType = models.TopicTypeDynamic
	run.TopicUsed = topic.Topic
	run.CompletedAt = &now

	scheduleID := schedule.ID
	err = repo.FinishRun(ctx, storage.RunCompletion{
		Log:           run,
		Post:          &models.Post{ScheduleID: &scheduleID, Title: "Observability on a budget", Body: "..."},
		TopicID:       &topic.ID,
		TopicStatus:   models.DynamicTopicStatusUsed,
		TouchSchedule: true,
		LastRunAt:     &now,
		NextRunAt:     &next,
	})
	if err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	if run.PostID == nil {
		t.Fatal("log was not linked to the created post")
	}
	post, err := repo.GetPostByID(ctx, *run.PostID)
	if err != nil {
		t.Fatalf("post not found: %v", err)
	}
	if post.Title != "Observability on a budget" {
		t.Errorf("post title = %q", post.Title)
	}

	topics, _ := repo.ListDynamicTopics(ctx, schedule.ID, storage.TopicFilter{})
	if topics[0].Status != models.DynamicTopicStatusUsed {
		t.Errorf("topic status = %s, want used", topics[0].Status)
	}

	updated, err := repo.GetScheduleByID(ctx, schedule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LastRunAt == nil || updated.NextRunAt == nil {
		t.Fatal("schedule run times were not refreshed")
	}
	if !updated.NextRunAt.After(*updated.LastRunAt) {
		t.Errorf("next run %v not after last run %v", updated.NextRunAt, updated.LastRunAt)
	}
}

func TestFinishRunRejectsUnclaimedTopicTransition(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	topic := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "never claimed"}
	if err := repo.CreateDynamicTopic(ctx, topic); err != nil {
		t.Fatal(err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	run.Status = models.ExecutionStatusSuccess

	err = repo.FinishRun(ctx, storage.RunCompletion{
		Log:         run,
		TopicID:     &topic.ID,
		TopicStatus: models.DynamicTopicStatusUsed,
	})
	if err == nil {
		t.Fatal("FinishRun should fail when the topic is not scheduled")
	}

	// The whole transaction rolled back: the log is still running.
	logs, _ := repo.ListLogs(ctx, schedule.ID, storage.LogFilter{})
	if len(logs) != 1 || logs[0].Status != models.ExecutionStatusRunning {
		t.Errorf("log should remain running after rollback, got %+v", logs)
	}
}

func TestListLogsNewestFirstWithFilter(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	statuses := []models.ExecutionStatus{
		models.ExecutionStatusSuccess,
		models.ExecutionStatusFailed,
		models.ExecutionStatusSuccess,
		models.ExecutionStatusSkipped,
	}
	for _, status := range statuses {
		run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
		if err != nil {
			t.Fatal(err)
		}
		run.Status = status
		if err := repo.FinishRun(ctx, storage.RunCompletion{Log: run}); err != nil {
			t.Fatal(err)
		}
	}

	logs, err := repo.ListLogs(ctx, schedule.ID, storage.LogFilter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 4 {
		t.Fatalf("got %d logs, want 4", len(logs))
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].ID > logs[i-1].ID {
			t.Errorf("logs not newest-first: %d before %d", logs[i-1].ID, logs[i].ID)
		}
	}

	failed := models.ExecutionStatusFailed
	logs, err = repo.ListLogs(ctx, schedule.ID, storage.LogFilter{Status: &failed, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != models.ExecutionStatusFailed {
		t.Errorf("status filter returned %+v", logs)
	}
}

func TestGetScheduleStats(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusSuccess,
		models.ExecutionStatusSuccess,
		models.ExecutionStatusFailed,
		models.ExecutionStatusSkipped,
	} {
		run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
		if err != nil {
			t.Fatal(err)
		}
		run.Status = status
		if err := repo.FinishRun(ctx, storage.RunCompletion{Log: run}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := repo.GetScheduleStats(ctx, schedule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRuns != 4 || stats.Succeeded != 2 || stats.Failed != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// Skipped runs are healthy and excluded from the rate.
	if want := 2.0 / 3.0; stats.SuccessRate < want-0.001 || stats.SuccessRate > want+0.001 {
		t.Errorf("success rate = %f, want %f", stats.SuccessRate, want)
	}
	if stats.LastRunAt == nil {
		t.Error("stats missing last run time")
	}
}

func TestDeleteScheduleCascades(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	if err := repo.CreateFixedTopic(ctx, &models.FixedTopic{
		ScheduleID: schedule.ID, DayOfWeek: 0, Topic: "monday kickoff",
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateDynamicTopic(ctx, &models.DynamicTopic{
		ScheduleID: schedule.ID, Topic: "pooled",
	}); err != nil {
		t.Fatal(err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	run.Status = models.ExecutionStatusSkipped
	if err := repo.FinishRun(ctx, storage.RunCompletion{Log: run}); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteSchedule(ctx, schedule.ID); err != nil {
		t.Fatalf("DeleteSchedule failed: %v", err)
	}

	if _, err := repo.GetScheduleByID(ctx, schedule.ID); err == nil {
		t.Error("schedule still exists after delete")
	}
	fixed, _ := repo.ListFixedTopics(ctx, schedule.ID)
	if len(fixed) != 0 {
		t.Errorf("fixed topics survived cascade: %d", len(fixed))
	}
	dynamic, _ := repo.ListDynamicTopics(ctx, schedule.ID, storage.TopicFilter{})
	if len(dynamic) != 0 {
		t.Errorf("dynamic topics survived cascade: %d", len(dynamic))
	}
	logs, _ := repo.ListLogs(ctx, schedule.ID, storage.LogFilter{})
	if len(logs) != 0 {
		t.Errorf("logs survived cascade: %d", len(logs))
	}
}

func TestUpdateDynamicTopicLeavesStatusAlone(t *testing.T) {
	repo := newTestRepo(t)
	schedule := newTestSchedule(t, repo)
	ctx := context.Background()

	topic := &models.DynamicTopic{ScheduleID: schedule.ID, Topic: "original", Priority: 1}
	if err := repo.CreateDynamicTopic(ctx, topic); err != nil {
		t.Fatal(err)
	}
	run, err := repo.BeginRun(ctx, schedule.ID, models.TriggerAutomatic)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.ClaimTopicForRun(ctx, run.ID, topic); err != nil {
		t.Fatal(err)
	}

	// An admin edit arriving mid-run must not clobber the engine's claim.
	edit := &models.DynamicTopic{
		ID:         topic.ID,
		ScheduleID: schedule.ID,
		Topic:      "edited text",
		Priority:   9,
		Status:     models.DynamicTopicStatusPending, // stale view from the UI
	}
	if err := repo.UpdateDynamicTopic(ctx, edit); err != nil {
		t.Fatal(err)
	}

	topics, _ := repo.ListDynamicTopics(ctx, schedule.ID, storage.TopicFilter{})
	if topics[0].Topic != "edited text" || topics[0].Priority != 9 {
		t.Errorf("descriptive fields not updated: %+v", topics[0])
	}
	if topics[0].Status != models.DynamicTopicStatusScheduled {
		t.Errorf("status = %s, engine claim was clobbered by an admin edit", topics[0].Status)
	}
}

func TestDueSchedules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &models.Schedule{Name: "due", IsActive: true, Frequency: models.FrequencyDaily,
		PublishTime: "09:00", NextRunAt: &past}
	notYet := &models.Schedule{Name: "later", IsActive: true, Frequency: models.FrequencyDaily,
		PublishTime: "09:00", NextRunAt: &future}
	paused := &models.Schedule{Name: "paused", IsActive: true, IsPaused: true,
		Frequency: models.FrequencyDaily, PublishTime: "09:00", NextRunAt: &past}
	for _, s := range []*models.Schedule{due, notYet, paused} {
		if err := repo.CreateSchedule(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.DueSchedules(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("due schedules = %+v, want only %d", got, due.ID)
	}
}

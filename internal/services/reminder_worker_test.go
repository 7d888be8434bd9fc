package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"realtorvoice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingTasks struct {
	mu    sync.Mutex
	tasks []models.TaskInput
	err   error
}

func (r *recordingTasks) CreateTask(_ context.Context, _ string, in models.TaskInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, in)
	return r.err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []models.OutboundEmail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, e models.OutboundEmail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

type workerFixture struct {
	worker    *ReminderWorker
	reminders *memoryReminders
	inbox     *memoryInbox
	tasks     *recordingTasks
	mailer    *fakeMailer
	now       time.Time
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	f := &workerFixture{
		reminders: newMemoryReminders(),
		inbox:     &memoryInbox{},
		tasks:     &recordingTasks{},
		mailer:    &fakeMailer{},
		now:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	users := newMemoryUsers(
		models.User{ID: "agent-1", Email: "agent@example.com", DisplayName: "Sam Agent"},
		models.User{ID: "agent-2"},
	)
	f.worker = NewReminderWorker(f.reminders, f.inbox, f.inbox, users, f.tasks, f.mailer, time.Minute, 50, zap.NewNop())
	f.worker.now = func() time.Time { return f.now }
	return f
}

func (f *workerFixture) add(t *testing.T, r models.Reminder) string {
	t.Helper()
	if r.Type == "" {
		r.Type = models.ReminderFollowUp
	}
	if r.Message == "" {
		r.Message = "Call back"
	}
	require.NoError(t, f.reminders.CreateReminder(context.Background(), &r))
	return r.ID
}

func TestSweepDeliversDueReminders(t *testing.T) {
	f := newWorkerFixture(t)
	due := f.add(t, models.Reminder{
		UserID:       "agent-1",
		ContactID:    "42",
		ContactName:  "Jane Buyer",
		Provider:     "follow_up_boss",
		ScheduledFor: f.now.Add(-time.Minute),
	})
	future := f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now.Add(time.Hour)})

	result, err := f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Sent: 1}, result)

	assert.Equal(t, models.ReminderSent, f.reminders.status(due))
	assert.Equal(t, models.ReminderPending, f.reminders.status(future))

	require.Len(t, f.inbox.notifications, 1)
	n := f.inbox.notifications[0]
	assert.Equal(t, "Follow up: Jane Buyer", n.Title)
	assert.Equal(t, due, n.ReminderID)
	assert.JSONEq(t, `{"reminder_type":"follow_up","contact_id":"42","contact_name":"Jane Buyer","property_id":"","property_address":""}`, string(n.Data))

	require.Len(t, f.inbox.emails, 1)
	assert.Equal(t, "agent@example.com", f.inbox.emails[0].ToEmail)
	assert.Equal(t, models.EmailQueued, f.inbox.emails[0].Status)

	require.Len(t, f.tasks.tasks, 1)
	assert.Equal(t, "follow_up_boss", f.tasks.tasks[0].Provider)
	assert.Equal(t, "42", f.tasks.tasks[0].ContactID)

	// Nothing left to do on the next sweep
	result, err = f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, result)
}

func TestSweepCRMFailureStillSends(t *testing.T) {
	f := newWorkerFixture(t)
	f.tasks.err = errors.New("crm down")
	id := f.add(t, models.Reminder{UserID: "agent-1", ContactID: "42", Provider: "wise_agent", ScheduledFor: f.now})

	result, err := f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, models.ReminderSent, f.reminders.status(id))
}

func TestSweepNotificationFailureMarksFailed(t *testing.T) {
	f := newWorkerFixture(t)
	f.inbox.notifyErr = errors.New("db gone")
	id := f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now})

	result, err := f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Failed: 1}, result)

	r, err := f.reminders.GetReminder(context.Background(), "agent-1", id)
	require.NoError(t, err)
	assert.Equal(t, models.ReminderFailed, r.Status)
	assert.Contains(t, r.LastError, "notification: db gone")
	assert.Empty(t, f.inbox.emails)
}

func TestSweepEmailFailureMarksFailed(t *testing.T) {
	f := newWorkerFixture(t)
	f.inbox.enqueueErr = errors.New("queue full")
	withEmail := f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now})
	withoutEmail := f.add(t, models.Reminder{UserID: "agent-2", ScheduledFor: f.now})

	result, err := f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 2, Sent: 1, Failed: 1}, result)
	assert.Equal(t, models.ReminderFailed, f.reminders.status(withEmail))
	assert.Equal(t, models.ReminderSent, f.reminders.status(withoutEmail))
}

func TestSweepUnknownUserFails(t *testing.T) {
	f := newWorkerFixture(t)
	id := f.add(t, models.Reminder{UserID: "ghost", ScheduledFor: f.now})

	_, err := f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ReminderFailed, f.reminders.status(id))
}

func TestSweepRecordsBatchOnce(t *testing.T) {
	f := newWorkerFixture(t)
	for i := 0; i < 25; i++ {
		f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now.Add(-time.Duration(i) * time.Minute)})
	}

	result, err := f.worker.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, result.Sent)
	require.Len(t, f.reminders.applied, 1)
	assert.Len(t, f.reminders.applied[0], 25)
}

func TestSweepApplyError(t *testing.T) {
	f := newWorkerFixture(t)
	f.reminders.applyErr = errors.New("tx aborted")
	id := f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now})

	_, err := f.worker.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ReminderPending, f.reminders.status(id))
}

func TestDrainEmails(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()
	email := &models.OutboundEmail{UserID: "agent-1", ToEmail: "agent@example.com", Subject: "s", Body: "b"}
	require.NoError(t, f.inbox.Enqueue(ctx, email))

	sent, err := f.worker.DrainEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	stored := f.inbox.email(email.ID)
	assert.Equal(t, models.EmailSent, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.SentAt)
	assert.Len(t, f.mailer.sent, 1)
}

func TestDrainEmailsGivesUpAfterMaxAttempts(t *testing.T) {
	f := newWorkerFixture(t)
	f.mailer.err = errors.New("sendgrid 500")
	ctx := context.Background()
	email := &models.OutboundEmail{UserID: "agent-1", ToEmail: "agent@example.com", Subject: "s", Body: "b"}
	require.NoError(t, f.inbox.Enqueue(ctx, email))

	for attempt := 1; attempt < maxEmailAttempts; attempt++ {
		sent, err := f.worker.DrainEmails(ctx)
		require.NoError(t, err)
		assert.Zero(t, sent)
		stored := f.inbox.email(email.ID)
		assert.Equal(t, models.EmailQueued, stored.Status)
		assert.Equal(t, attempt, stored.Attempts)
	}

	_, err := f.worker.DrainEmails(ctx)
	require.NoError(t, err)
	stored := f.inbox.email(email.ID)
	assert.Equal(t, models.EmailFailed, stored.Status)
	assert.Equal(t, "sendgrid 500", stored.LastError)

	// Failed emails leave the queue
	_, err = f.worker.DrainEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxEmailAttempts, f.inbox.email(email.ID).Attempts)
}

func TestRunOnce(t *testing.T) {
	f := newWorkerFixture(t)
	f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now})

	result, sent, err := f.worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, sent)
	assert.Len(t, f.mailer.sent, 1)
}

func TestStartStopsOnCancel(t *testing.T) {
	f := newWorkerFixture(t)
	f.add(t, models.Reminder{UserID: "agent-1", ScheduledFor: f.now})

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)

	require.Eventually(t, func() bool {
		f.mailer.mu.Lock()
		defer f.mailer.mu.Unlock()
		return len(f.mailer.sent) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
}

func TestReminderTitle(t *testing.T) {
	assert.Equal(t, "Closing: 12 Elm St", reminderTitle(models.Reminder{Type: models.ReminderClosing, PropertyAddress: "12 Elm St"}))
	assert.Equal(t, "Birthday: Jane", reminderTitle(models.Reminder{Type: models.ReminderBirthday, ContactName: "Jane", PropertyAddress: "x"}))
	assert.Equal(t, "Reminder", reminderTitle(models.Reminder{Type: "unknown"}))
}

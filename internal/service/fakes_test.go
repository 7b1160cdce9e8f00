package service_test

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"nudge/internal/comm"
	"nudge/internal/scheduler"
	"nudge/internal/service"
)

type fakeComm struct {
	mu        sync.Mutex
	channels  []string
	statuses  map[string]comm.Status
	sent      []string
	stopCalls int
	stopErr   error
	stopPanic bool
	scheduler comm.Scheduler
}

func newFakeComm() *fakeComm {
	return &fakeComm{statuses: map[string]comm.Status{}}
}

func (f *fakeComm) HandleMessageSending(_ context.Context, userID, category string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, userID+"/"+category)
	return "hello " + userID, nil
}

func (f *fakeComm) RecipientForService(_ context.Context, userID string) (string, string, error) {
	return "console", userID, nil
}

func (f *fakeComm) SendCheckinPrompt(context.Context, string, string, string) (string, error) {
	return "How are you?", nil
}

func (f *fakeComm) HandleTaskReminder(context.Context, string, string) error { return nil }

func (f *fakeComm) SendTaskReminders(context.Context, string) (int, error) { return 0, nil }

func (f *fakeComm) InitializeChannels(enabled []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append([]string(nil), enabled...)
	for _, name := range enabled {
		if _, ok := f.statuses[name]; !ok {
			f.statuses[name] = comm.StatusConnected
		}
	}
	return nil
}

func (f *fakeComm) StartAll(context.Context) error { return nil }

func (f *fakeComm) StopAll() error {
	f.mu.Lock()
	f.stopCalls++
	panicking := f.stopPanic
	err := f.stopErr
	f.mu.Unlock()
	if panicking {
		panic("channel close exploded")
	}
	return err
}

func (f *fakeComm) SetSchedulerManager(s comm.Scheduler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduler = s
}

func (f *fakeComm) AvailableChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

func (f *fakeComm) ChannelStatuses() map[string]comm.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]comm.Status, len(f.statuses))
	for k, v := range f.statuses {
		out[k] = v
	}
	return out
}

func (f *fakeComm) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeComm) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeScheduler struct {
	mu          sync.Mutex
	rescheduled []string
	runs        int
	stopCalls   int
}

func (f *fakeScheduler) ResetAndRescheduleDailyMessages(_ context.Context, category, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled = append(f.rescheduled, userID+"/"+category)
	return nil
}

func (f *fakeScheduler) RunDailyScheduler(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

func (f *fakeScheduler) StopScheduler() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
}

func (f *fakeScheduler) ActiveJobs() int { return 3 }

func (f *fakeScheduler) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

func (f *fakeScheduler) reschedules() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rescheduled...)
}

// withFakes wires fake managers into opts and returns them.
func withFakes(opts *service.Options) (*fakeComm, *fakeScheduler) {
	fc := newFakeComm()
	fs := &fakeScheduler{}
	opts.NewComm = func(context.Context) (service.CommManager, error) { return fc, nil }
	opts.NewScheduler = func(context.Context, scheduler.Sender) (service.SchedulerManager, error) { return fs, nil }
	return fc, fs
}

var errBoom = errors.New("boom")

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"OctaMuse/core/credit"
	"OctaMuse/core/provider"
	"OctaMuse/model"
)

type fakeClient struct {
	mu         sync.Mutex
	submitErr  error
	jobID      string
	submits    int
	pollPlan   []*provider.PollResult // consumed per call; last entry repeats
	pollErrs   []error
	polls      int
	lastSubmit *model.GenerationRequest
}

func (f *fakeClient) Submit(_ context.Context, _ int64, req *model.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastSubmit = req
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.jobID, nil
}

func (f *fakeClient) Poll(_ context.Context, _ string) (*provider.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i < len(f.pollErrs) && f.pollErrs[i] != nil {
		return nil, f.pollErrs[i]
	}
	if len(f.pollPlan) == 0 {
		return &provider.PollResult{Pending: true}, nil
	}
	if i >= len(f.pollPlan) {
		i = len(f.pollPlan) - 1
	}
	return f.pollPlan[i], nil
}

type fakePendingStore struct {
	mu     sync.Mutex
	task   *model.PendingTask
	saves  []model.PendingTask
	clears int
}

func (f *fakePendingStore) SavePendingTask(_ context.Context, _ int64, task *model.PendingTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.task = &copied
	f.saves = append(f.saves, copied)
	return nil
}

func (f *fakePendingStore) GetPendingTask(_ context.Context, _ int64) (*model.PendingTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.task == nil {
		return nil, nil
	}
	copied := *f.task
	return &copied, nil
}

func (f *fakePendingStore) ClearPendingTask(_ context.Context, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.task = nil
	f.clears++
	return nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	existing  map[string]*model.GeneratedTrack
	saved     []*model.GeneratedTrack
	existsErr error
	saveErr   error
}

func (f *fakeCatalog) ExistsByProviderJob(_ context.Context, jobID string, _ int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.existing[jobID]
	return ok, nil
}

func (f *fakeCatalog) GetByProviderJob(_ context.Context, jobID string, _ int64) (*model.GeneratedTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[jobID], nil
}

func (f *fakeCatalog) Save(_ context.Context, track *model.GeneratedTrack) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	track.ID = "track-1"
	f.saved = append(f.saved, track)
	return track.ID, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	credits  int
	cost     int
	created  int
	debitErr error
}

func (f *fakeLedger) CanAfford(_ int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits >= f.cost, nil
}

func (f *fakeLedger) Debit(_ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return f.debitErr
	}
	if f.credits < f.cost {
		return credit.ErrInsufficientCredits
	}
	f.credits -= f.cost
	return nil
}

func (f *fakeLedger) IncrementCreatedMusics(_ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return nil
}

type fakeRepublisher struct {
	fail bool
}

func (f *fakeRepublisher) RepublishAudio(_ context.Context, userID int64, remoteURL string) string {
	if f.fail {
		return remoteURL
	}
	return "https://media.octamuse.example/music-files/republished.mp3"
}

func (f *fakeRepublisher) RepublishCover(_ context.Context, userID int64, remoteURL string) string {
	if f.fail || remoteURL == "" {
		return remoteURL
	}
	return "https://media.octamuse.example/cover-images/republished.jpg"
}

type fixture struct {
	client  *fakeClient
	pending *fakePendingStore
	catalog *fakeCatalog
	ledger  *fakeLedger
	orch    *Orchestrator
}

func newFixture(client *fakeClient) *fixture {
	f := &fixture{
		client:  client,
		pending: &fakePendingStore{},
		catalog: &fakeCatalog{existing: make(map[string]*model.GeneratedTrack)},
		ledger:  &fakeLedger{credits: 20, cost: 10},
	}
	f.orch = NewOrchestrator(client, f.pending, f.catalog, f.ledger, &fakeRepublisher{}, Config{
		PollInterval:    2 * time.Millisecond,
		PollMaxAttempts: 5,
	})
	return f
}

func waitForState(tb testing.TB, o *Orchestrator, userID int64, want model.JobState) StateUpdate {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := o.State(userID)
		if got.State == want {
			return got
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("state never reached %s, last %s", want, o.State(userID).State)
	return StateUpdate{}
}

func successPlan() []*provider.PollResult {
	return []*provider.PollResult{
		{Pending: true},
		{
			Succeeded:        true,
			ProviderResultID: "clip-1",
			AudioURL:         "https://provider.example/a.mp3",
			CoverURL:         "https://provider.example/a.jpg",
			DurationSeconds:  210,
		},
	}
}

func TestFullSuccessPipeline(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})

	err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{
		Prompt: "synthwave night drive",
		Genre:  "synthwave",
		Title:  "Night Drive",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobSucceeded)
	if got.Track == nil {
		t.Fatal("succeeded without track")
	}
	if got.Track.Duration != 210 {
		t.Errorf("duration = %d, want 210", got.Track.Duration)
	}
	if got.Track.AudioURL != "https://media.octamuse.example/music-files/republished.mp3" {
		t.Errorf("audioURL = %q, want republished url", got.Track.AudioURL)
	}

	// The marker is persisted before the provider call, then updated with the
	// acknowledged job id.
	f.pending.mu.Lock()
	if len(f.pending.saves) != 2 {
		t.Fatalf("pending saves = %d, want 2", len(f.pending.saves))
	}
	if f.pending.saves[0].JobID != "" {
		t.Errorf("first save jobID = %q, want empty", f.pending.saves[0].JobID)
	}
	if f.pending.saves[1].JobID != "job-1" {
		t.Errorf("second save jobID = %q", f.pending.saves[1].JobID)
	}
	if f.pending.task != nil {
		t.Error("pending task not cleared after success")
	}
	f.pending.mu.Unlock()

	f.ledger.mu.Lock()
	if f.ledger.credits != 10 {
		t.Errorf("credits = %d, want 10 after one debit", f.ledger.credits)
	}
	if f.ledger.created != 1 {
		t.Errorf("createdMusics = %d, want 1", f.ledger.created)
	}
	f.ledger.mu.Unlock()

	f.catalog.mu.Lock()
	if len(f.catalog.saved) != 1 {
		t.Fatalf("cataloged tracks = %d, want 1", len(f.catalog.saved))
	}
	if f.catalog.saved[0].ProviderJobID != "job-1" {
		t.Errorf("providerJobID = %q", f.catalog.saved[0].ProviderJobID)
	}
	f.catalog.mu.Unlock()
}

func TestValidationRejectsBlankPrompt(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1"})

	err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if f.client.submits != 0 {
		t.Error("provider called for invalid request")
	}
	if len(f.pending.saves) != 0 {
		t.Error("pending task written for invalid request")
	}
}

func TestInsufficientCreditsBlocksSubmit(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1"})
	f.ledger.credits = 5

	err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if f.client.submits != 0 {
		t.Error("provider called without credits")
	}
}

func TestSubmitFailureClearsPending(t *testing.T) {
	f := newFixture(&fakeClient{submitErr: provider.ErrProviderUnavailable})

	err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"})
	if !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if f.pending.task != nil {
		t.Error("pending task survived failed submit")
	}
	if got := f.orch.State(1); got.State != model.JobFailed {
		t.Errorf("state = %s, want Failed", got.State)
	}
}

func TestProviderFailureEndsJob(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: []*provider.PollResult{
		{Pending: true},
		{Failed: true, FailReason: "SENSITIVE_WORD_ERROR"},
	}})

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobFailed)
	if got.Reason != "SENSITIVE_WORD_ERROR" {
		t.Errorf("reason = %q", got.Reason)
	}
	f.pending.mu.Lock()
	if f.pending.task != nil {
		t.Error("pending task not cleared after failure")
	}
	f.pending.mu.Unlock()
	if f.ledger.credits != 20 {
		t.Errorf("credits = %d, failed job must not charge", f.ledger.credits)
	}
	if len(f.catalog.saved) != 0 {
		t.Error("failed job produced a track")
	}
}

func TestPollingTimeout(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1"}) // always pending

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobFailed)
	if got.Reason != ErrTimeout.Error() {
		t.Errorf("reason = %q, want timeout", got.Reason)
	}
	f.pending.mu.Lock()
	if f.pending.task != nil {
		t.Error("pending task not cleared after timeout")
	}
	f.pending.mu.Unlock()
}

func TestTransientPollErrorsAreTolerated(t *testing.T) {
	f := newFixture(&fakeClient{
		jobID:    "job-1",
		pollErrs: []error{provider.ErrProviderUnavailable, nil},
		pollPlan: []*provider.PollResult{
			{Pending: true}, // not consumed, error slot
			successPlan()[1],
		},
	})

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, f.orch, 1, model.JobSucceeded)
}

func TestResumePendingJob(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	f.pending.task = &model.PendingTask{
		JobID:       "job-1",
		Title:       "Recovered",
		Prompt:      "lofi beats",
		SubmittedAt: time.Now().Add(-time.Hour),
	}

	if err := f.orch.Resume(context.Background(), 1); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobSucceeded)
	if got.Track == nil || got.Track.Title != "Recovered" {
		t.Fatalf("resumed track = %+v", got.Track)
	}
	if f.client.submits != 0 {
		t.Error("resume must not re-submit")
	}
	if f.ledger.credits != 10 {
		t.Errorf("credits = %d, resumed success must charge once", f.ledger.credits)
	}
}

func TestResumeFailedJob(t *testing.T) {
	f := newFixture(&fakeClient{pollPlan: []*provider.PollResult{
		{Failed: true, FailReason: "FAILED"},
	}})
	f.pending.task = &model.PendingTask{JobID: "job-1", Prompt: "x", SubmittedAt: time.Now()}

	if err := f.orch.Resume(context.Background(), 1); err != nil {
		t.Fatalf("resume: %v", err)
	}

	waitForState(t, f.orch, 1, model.JobFailed)
	if len(f.catalog.saved) != 0 {
		t.Error("failed resume produced a track")
	}
	if f.ledger.credits != 20 {
		t.Errorf("credits = %d, failed resume must not charge", f.ledger.credits)
	}
}

func TestResumeWithoutPendingTask(t *testing.T) {
	f := newFixture(&fakeClient{})
	if err := f.orch.Resume(context.Background(), 1); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestResumeIncompleteSubmitClearsMarker(t *testing.T) {
	f := newFixture(&fakeClient{})
	f.pending.task = &model.PendingTask{Prompt: "x", SubmittedAt: time.Now()}

	if err := f.orch.Resume(context.Background(), 1); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
	if f.pending.task != nil {
		t.Error("id-less marker not cleared")
	}
}

func TestDedupSkipsChargeAndSave(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	f.catalog.existing["job-1"] = &model.GeneratedTrack{
		ID:            "track-existing",
		UserID:        1,
		Title:         "Already Here",
		ProviderJobID: "job-1",
	}

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobSucceeded)
	if got.Track == nil || got.Track.ID != "track-existing" {
		t.Fatalf("duplicate success must surface the existing track, got %+v", got.Track)
	}
	if len(f.catalog.saved) != 0 {
		t.Error("duplicate result cataloged again")
	}
	if f.ledger.credits != 20 {
		t.Errorf("credits = %d, duplicate must not charge", f.ledger.credits)
	}
	f.pending.mu.Lock()
	if f.pending.task != nil {
		t.Error("pending task not cleared for duplicate")
	}
	f.pending.mu.Unlock()
}

func TestDebitFailureEndsJobWithoutTrack(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	// Balance passes the submit-time check, then is gone by completion.
	f.ledger.debitErr = credit.ErrInsufficientCredits

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobFailed)
	if got.Reason != "insufficient credits" {
		t.Errorf("reason = %q, want credit-specific message", got.Reason)
	}
	if len(f.catalog.saved) != 0 {
		t.Errorf("cataloged %d tracks after failed debit, want 0", len(f.catalog.saved))
	}
	if f.ledger.created != 0 {
		t.Error("createdMusics bumped after failed debit")
	}
	f.pending.mu.Lock()
	if f.pending.task != nil {
		t.Error("pending task survived debit failure")
	}
	f.pending.mu.Unlock()
}

func TestDebitSystemErrorReasonDistinct(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	f.ledger.debitErr = errors.New("ledger backend down")

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := waitForState(t, f.orch, 1, model.JobFailed)
	if got.Reason == "insufficient credits" {
		t.Error("system debit error must not masquerade as insufficient credits")
	}
	if len(f.catalog.saved) != 0 {
		t.Error("track cataloged after failed debit")
	}
}

func TestCatalogCheckErrorClearsPending(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	f.catalog.existsErr = errors.New("catalog offline")

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForState(t, f.orch, 1, model.JobFailed)
	f.pending.mu.Lock()
	if f.pending.task != nil {
		t.Errorf("pending task survived Failed transition: %+v", f.pending.task)
	}
	f.pending.mu.Unlock()
}

func TestCatalogSaveErrorClearsPending(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	f.catalog.saveErr = errors.New("insert failed")

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitForState(t, f.orch, 1, model.JobFailed)
	f.pending.mu.Lock()
	if f.pending.task != nil {
		t.Errorf("pending task survived Failed transition: %+v", f.pending.task)
	}
	f.pending.mu.Unlock()

	// A later Resume must find nothing to replay.
	if err := f.orch.Resume(context.Background(), 1); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("resume err = %v, want ErrJobNotFound", err)
	}
}

func TestValidationRejectsBlankLyrics(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1"})

	err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{
		Prompt:      "upbeat pop song",
		VocalLyrics: "  \n\t ",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation for whitespace-only lyrics", err)
	}
	if f.client.submits != 0 {
		t.Error("provider called with blank lyrics")
	}
}

func TestConcurrentStartRejected(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1"}) // stays pending

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, f.orch, 1, model.JobPolling)

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "y"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}

	// A different user is unaffected.
	if err := f.orch.Start(context.Background(), 2, &model.GenerationRequest{Prompt: "z"}); err != nil {
		t.Fatalf("second user start: %v", err)
	}
}

func TestAutoResetAfterDisplayDelay(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})
	f.orch.cfg.ResultDisplayDelay = 10 * time.Millisecond

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, f.orch, 1, model.JobSucceeded)
	got := waitForState(t, f.orch, 1, model.JobIdle)
	if got.Track != nil {
		t.Error("reset state still carries a track")
	}
}

func TestSubscriberSeesTransitions(t *testing.T) {
	f := newFixture(&fakeClient{jobID: "job-1", pollPlan: successPlan()})

	ch, cancel := f.orch.Subscribe(1)
	defer cancel()

	if err := f.orch.Start(context.Background(), 1, &model.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	seen := make(map[model.JobState]bool)
	deadline := time.After(2 * time.Second)
	for !seen[model.JobSucceeded] {
		select {
		case update := <-ch:
			seen[update.State] = true
		case <-deadline:
			t.Fatalf("subscriber never saw Succeeded, seen %v", seen)
		}
	}
	for _, want := range []model.JobState{model.JobSubmitted, model.JobPolling, model.JobSucceeded} {
		if !seen[want] {
			t.Errorf("subscriber missed state %s", want)
		}
	}
}

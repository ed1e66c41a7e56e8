package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"OctaMuse/core/credit"
	"OctaMuse/core/media"
	"OctaMuse/core/provider"
	"OctaMuse/logger"
	"OctaMuse/model"
)

// Errors surfaced to the transport layer.
var (
	ErrValidation          = errors.New("invalid generation request")
	ErrBusy                = errors.New("a generation is already in progress")
	ErrJobNotFound         = errors.New("no resumable generation job")
	ErrTimeout             = errors.New("generation timed out")
	ErrInsufficientCredits = errors.New("insufficient credits for generation")
)

// PendingTaskStore persists the in-flight job marker that survives restarts.
type PendingTaskStore interface {
	SavePendingTask(ctx context.Context, userID int64, task *model.PendingTask) error
	GetPendingTask(ctx context.Context, userID int64) (*model.PendingTask, error)
	ClearPendingTask(ctx context.Context, userID int64) error
}

// Catalog is the slice of the track repository the orchestrator needs.
type Catalog interface {
	ExistsByProviderJob(ctx context.Context, providerJobID string, userID int64) (bool, error)
	GetByProviderJob(ctx context.Context, providerJobID string, userID int64) (*model.GeneratedTrack, error)
	Save(ctx context.Context, track *model.GeneratedTrack) (string, error)
}

// CreditLedger is the slice of the credit service the orchestrator needs.
type CreditLedger interface {
	CanAfford(userID int64) (bool, error)
	Debit(userID int64) error
	IncrementCreatedMusics(userID int64) error
}

// Config bounds the polling loop and the result display window.
type Config struct {
	PollInterval       time.Duration
	PollMaxAttempts    int
	ResultDisplayDelay time.Duration
}

// StateUpdate is one observable transition of a user's generation session.
type StateUpdate struct {
	State  model.JobState        `json:"state"`
	JobID  string                `json:"jobId,omitempty"`
	Track  *model.GeneratedTrack `json:"track,omitempty"`
	Reason string                `json:"reason,omitempty"`
}

// session is the per-user state machine. All fields are guarded by the
// orchestrator mutex.
type session struct {
	state       model.JobState
	jobID       string
	track       *model.GeneratedTrack
	reason      string
	subscribers map[int]chan StateUpdate
	nextSubID   int
}

// Orchestrator drives the generation lifecycle for every user: submit,
// bounded polling, result handling and crash recovery. One active job per
// user at a time.
type Orchestrator struct {
	client      provider.GenerationClient
	pending     PendingTaskStore
	catalog     Catalog
	ledger      CreditLedger
	republisher media.Republisher
	cfg         Config

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(client provider.GenerationClient, pending PendingTaskStore, catalog Catalog,
	ledger CreditLedger, republisher media.Republisher, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 60
	}
	return &Orchestrator{
		client:      client,
		pending:     pending,
		catalog:     catalog,
		ledger:      ledger,
		republisher: republisher,
		cfg:         cfg,
		sessions:    make(map[int64]*session),
	}
}

// Start validates and submits a new generation job for the user. The pending
// marker is written before the provider call so a crash in between leaves a
// record that Resume can reconcile.
func (o *Orchestrator) Start(ctx context.Context, userID int64, req *model.GenerationRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	o.mu.Lock()
	s := o.sessionLocked(userID)
	if s.state != model.JobIdle && !s.state.Terminal() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.resetLocked(s)
	o.mu.Unlock()

	ok, err := o.ledger.CanAfford(userID)
	if err != nil {
		return fmt.Errorf("failed to check credits: %w", err)
	}
	if !ok {
		return ErrInsufficientCredits
	}

	// Marker first, provider second. JobID stays empty until the provider
	// acknowledges; an id-less marker found later means the submit never
	// completed and the job is unrecoverable.
	task := &model.PendingTask{
		Title:       req.Title,
		Prompt:      req.Prompt,
		SubmittedAt: time.Now(),
	}
	if err := o.pending.SavePendingTask(ctx, userID, task); err != nil {
		return fmt.Errorf("failed to save pending task: %w", err)
	}

	jobID, err := o.client.Submit(ctx, userID, req)
	if err != nil {
		o.pending.ClearPendingTask(ctx, userID)
		o.fail(userID, "", fmt.Sprintf("submit failed: %v", err))
		return err
	}

	task.JobID = jobID
	if err := o.pending.SavePendingTask(ctx, userID, task); err != nil {
		logger.Warn("[Generation] 更新待办任务失败，重启后将无法恢复该任务",
			logger.Int64("userId", userID),
			logger.String("jobId", jobID),
			logger.ErrorField(err))
	}

	o.transition(userID, StateUpdate{State: model.JobSubmitted, JobID: jobID})
	go o.pollLoop(userID, jobID, req)
	return nil
}

// Resume picks up the pending job persisted before a crash or app restart.
// Returns ErrJobNotFound when there is nothing valid to resume.
func (o *Orchestrator) Resume(ctx context.Context, userID int64) error {
	o.mu.Lock()
	s := o.sessionLocked(userID)
	if s.state != model.JobIdle && !s.state.Terminal() {
		o.mu.Unlock()
		return ErrBusy
	}
	o.resetLocked(s)
	o.mu.Unlock()

	task, err := o.pending.GetPendingTask(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load pending task: %w", err)
	}
	if task == nil {
		return ErrJobNotFound
	}
	if task.JobID == "" {
		// Submit never completed before the crash; nothing to poll.
		o.pending.ClearPendingTask(ctx, userID)
		return ErrJobNotFound
	}

	logger.Info("[Generation] 恢复未完成的生成任务",
		logger.Int64("userId", userID),
		logger.String("jobId", task.JobID),
		logger.String("title", task.Title))

	req := &model.GenerationRequest{Title: task.Title, Prompt: task.Prompt}
	o.transition(userID, StateUpdate{State: model.JobSubmitted, JobID: task.JobID})
	go o.pollLoop(userID, task.JobID, req)
	return nil
}

// State returns the current session snapshot for the user.
func (o *Orchestrator) State(userID int64) StateUpdate {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sessionLocked(userID)
	return StateUpdate{State: s.state, JobID: s.jobID, Track: s.track, Reason: s.reason}
}

// Subscribe registers for state transitions of the user's session. The
// returned cancel function must be called to release the channel.
func (o *Orchestrator) Subscribe(userID int64) (<-chan StateUpdate, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.sessionLocked(userID)
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan StateUpdate, 8)
	s.subscribers[id] = ch

	cancel := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel
}

func validate(req *model.GenerationRequest) error {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if req.VocalLyrics != "" && strings.TrimSpace(req.VocalLyrics) == "" {
		return fmt.Errorf("%w: vocal lyrics must not be blank", ErrValidation)
	}
	return nil
}

// pollLoop runs detached from the request context: the submitting HTTP
// request finishes long before the job does.
func (o *Orchestrator) pollLoop(userID int64, jobID string, req *model.GenerationRequest) {
	ctx := context.Background()
	o.transition(userID, StateUpdate{State: model.JobPolling, JobID: jobID})

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= o.cfg.PollMaxAttempts; attempt++ {
		<-ticker.C

		res, err := o.client.Poll(ctx, jobID)
		if err != nil {
			// 瞬时故障按一次未决轮询处理，计入尝试配额
			logger.Warn("[Generation] 轮询出错，继续等待",
				logger.Int64("userId", userID),
				logger.String("jobId", jobID),
				logger.Int("attempt", attempt),
				logger.ErrorField(err))
			continue
		}

		switch {
		case res.Succeeded:
			o.handleSuccess(ctx, userID, jobID, req, res)
			return
		case res.Failed:
			o.pending.ClearPendingTask(ctx, userID)
			o.fail(userID, jobID, res.FailReason)
			return
		}
	}

	logger.Warn("[Generation] 轮询超时",
		logger.Int64("userId", userID),
		logger.String("jobId", jobID),
		logger.Int("maxAttempts", o.cfg.PollMaxAttempts))
	o.pending.ClearPendingTask(ctx, userID)
	o.fail(userID, jobID, ErrTimeout.Error())
}

// handleSuccess runs the completion pipeline: dedup, republish media, charge
// credits, catalog the track, bump counters, clear the marker. Every path out
// of here, Failed included, clears the pending task so Resume never replays a
// finished job.
func (o *Orchestrator) handleSuccess(ctx context.Context, userID int64, jobID string, req *model.GenerationRequest, res *provider.PollResult) {
	exists, err := o.catalog.ExistsByProviderJob(ctx, jobID, userID)
	if err != nil {
		o.pending.ClearPendingTask(ctx, userID)
		o.fail(userID, jobID, fmt.Sprintf("catalog check failed: %v", err))
		return
	}
	if exists {
		// Result already cataloged, likely by a resumed session racing the
		// original one. Surface the existing track without charging twice.
		logger.Info("[Generation] 结果已入库，跳过重复处理",
			logger.Int64("userId", userID),
			logger.String("jobId", jobID))
		existing, err := o.catalog.GetByProviderJob(ctx, jobID, userID)
		if err != nil {
			logger.Warn("[Generation] 查询已有曲目失败",
				logger.Int64("userId", userID),
				logger.String("jobId", jobID),
				logger.ErrorField(err))
		}
		o.pending.ClearPendingTask(ctx, userID)
		o.succeed(userID, jobID, existing)
		return
	}

	audioURL := o.republisher.RepublishAudio(ctx, userID, res.AudioURL)
	coverURL := o.republisher.RepublishCover(ctx, userID, res.CoverURL)

	if err := o.ledger.Debit(userID); err != nil {
		logger.Error("[Generation] 扣费失败",
			logger.Int64("userId", userID),
			logger.String("jobId", jobID),
			logger.ErrorField(err))
		o.pending.ClearPendingTask(ctx, userID)
		if errors.Is(err, credit.ErrInsufficientCredits) {
			o.fail(userID, jobID, "insufficient credits")
		} else {
			o.fail(userID, jobID, fmt.Sprintf("debit failed: %v", err))
		}
		return
	}

	track := &model.GeneratedTrack{
		UserID:        userID,
		Title:         req.Title,
		Prompt:        req.Prompt,
		Genre:         req.Genre,
		AudioURL:      audioURL,
		CoverURL:      coverURL,
		ProviderJobID: jobID,
		Duration:      res.DurationSeconds,
	}
	if track.Title == "" {
		runes := []rune(req.Prompt)
		if len(runes) > 50 {
			runes = runes[:50]
		}
		track.Title = string(runes)
	}

	if _, err := o.catalog.Save(ctx, track); err != nil {
		o.pending.ClearPendingTask(ctx, userID)
		o.fail(userID, jobID, fmt.Sprintf("failed to catalog track: %v", err))
		return
	}

	if err := o.ledger.IncrementCreatedMusics(userID); err != nil {
		logger.Warn("[Generation] 更新创作计数失败",
			logger.Int64("userId", userID),
			logger.ErrorField(err))
	}

	o.pending.ClearPendingTask(ctx, userID)
	o.succeed(userID, jobID, track)
}

func (o *Orchestrator) succeed(userID int64, jobID string, track *model.GeneratedTrack) {
	o.transition(userID, StateUpdate{State: model.JobSucceeded, JobID: jobID, Track: track})
	o.scheduleReset(userID)
}

func (o *Orchestrator) fail(userID int64, jobID, reason string) {
	o.transition(userID, StateUpdate{State: model.JobFailed, JobID: jobID, Reason: reason})
	o.scheduleReset(userID)
}

// scheduleReset returns the session to Idle after the client has had time to
// show the terminal state.
func (o *Orchestrator) scheduleReset(userID int64) {
	delay := o.cfg.ResultDisplayDelay
	if delay <= 0 {
		return
	}
	time.AfterFunc(delay, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		s := o.sessionLocked(userID)
		if !s.state.Terminal() {
			return
		}
		o.resetLocked(s)
		o.notifyLocked(s, StateUpdate{State: model.JobIdle})
	})
}

func (o *Orchestrator) transition(userID int64, update StateUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.sessionLocked(userID)
	s.state = update.State
	s.jobID = update.JobID
	s.track = update.Track
	s.reason = update.Reason
	o.notifyLocked(s, update)
}

func (o *Orchestrator) notifyLocked(s *session, update StateUpdate) {
	for _, ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			// 订阅者消费过慢时丢弃，当前状态仍可通过 State 查询
		}
	}
}

func (o *Orchestrator) sessionLocked(userID int64) *session {
	s, ok := o.sessions[userID]
	if !ok {
		s = &session{state: model.JobIdle, subscribers: make(map[int]chan StateUpdate)}
		o.sessions[userID] = s
	}
	return s
}

func (o *Orchestrator) resetLocked(s *session) {
	s.state = model.JobIdle
	s.jobID = ""
	s.track = nil
	s.reason = ""
}

package onboarding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/buildfund/onboard/pkg/api"
	"github.com/buildfund/onboard/pkg/transcript"
)

// ChatService is the remote side of the conversation. *api.Client satisfies
// it; tests substitute fakes.
type ChatService interface {
	StartChat(ctx context.Context) (*api.StartResponse, error)
	SubmitAnswer(ctx context.Context, answer api.AnswerRequest) (*api.AnswerResponse, error)
	UploadDocuments(ctx context.Context, step, sessionID string, files []api.File) (*api.UploadResponse, error)
}

var _ ChatService = (*api.Client)(nil)

// State is the controller's position in the session lifecycle.
type State int

const (
	StateInitializing State = iota
	StateAwaitingAnswer
	StateSubmitting
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateSubmitting:
		return "submitting"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrNotReady           = errors.New("session not initialized yet")
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrEmptyAnswer        = errors.New("answer must not be empty")
	ErrNoFiles            = errors.New("at least one file is required")
	ErrSessionComplete    = errors.New("onboarding is already complete")
)

const (
	defaultCompletionDelay = 2 * time.Second

	apologyFormat          = "Sorry, something went wrong: %s"
	progressSuffixFormat   = "\n\n📊 Progress: %d%% complete (Step %d of %d)"
	uploadedFilesFormat    = "📎 Uploaded %d file(s)"
	fileStepAnswerLabel    = "📎 Documents submitted"
	allDocumentsMessage    = "Perfect, that's every document I need! 🎉"
	missingDocumentsFormat = "Thanks! I still need %d more required document(s): %s"
)

// Controller drives the request/response cycle of one onboarding session and
// keeps the transcript consistent with it. All remote failures are rendered
// as apologetic bot turns; the only errors its methods return are local
// guard violations (empty input, re-entrant submission, finished session).
type Controller struct {
	svc        ChatService
	transcript *transcript.Transcript
	logger     zerolog.Logger
	delay      time.Duration
	onComplete func()

	mu              sync.Mutex
	state           State
	sessionID       string
	current         Question
	progress        api.Progress
	resuming        bool
	inFlight        bool
	uploading       bool
	completionFired bool
}

type Option func(*Controller)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithTranscript injects a transcript, e.g. one with a fixed clock.
func WithTranscript(t *transcript.Transcript) Option {
	return func(c *Controller) {
		c.transcript = t
	}
}

// WithCompletionDelay overrides the pause between the completion response
// and the completion callback.
func WithCompletionDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.delay = d
	}
}

// WithOnComplete registers the callback fired exactly once when the server
// reports the session complete.
func WithOnComplete(fn func()) Option {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

func NewController(svc ChatService, options ...Option) *Controller {
	c := &Controller{
		svc:        svc,
		transcript: transcript.New(),
		logger:     zerolog.Nop(),
		delay:      defaultCompletionDelay,
		state:      StateInitializing,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SetOnComplete replaces the completion callback. Useful when the callback
// target (a UI program, say) is only constructed after the controller.
func (c *Controller) SetOnComplete(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// Initialize fetches the first question and any resumable history. On a
// remote failure it appends a single error bot turn and stays in the
// initializing state; there is no automatic retry.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInitializing {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if c.inFlight {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	resp, err := c.svc.StartChat(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false

	if err != nil {
		c.logger.Error().Err(err).Msg("failed to start chat session")
		c.transcript.Append(transcript.SpeakerBot, fmt.Sprintf(apologyFormat, api.UserMessage(err)))
		return nil
	}

	c.sessionID = resp.SessionID
	c.progress = resp.Progress
	c.resuming = resp.IsResuming
	for _, entry := range resp.ConversationHistory {
		speaker := transcript.SpeakerBot
		if entry.Type == string(transcript.SpeakerUser) {
			speaker = transcript.SpeakerUser
		}
		c.transcript.Seed(speaker, entry.Message, entry.Timestamp)
	}

	c.current = questionFromWire(resp.Question)

	// When resuming, the server history may already end with the current
	// question. Append it only when it does not, so the visible question
	// always matches what has to be answered without being duplicated.
	if last, ok := c.transcript.LastBot(); !ok || last.Body != c.current.Prompt {
		c.transcript.Append(transcript.SpeakerBot, c.current.Prompt)
	}

	if resp.Progress.IsComplete {
		c.state = StateComplete
		c.scheduleCompletionLocked()
	} else {
		c.state = StateAwaitingAnswer
	}
	c.logger.Info().
		Str("session_id", c.sessionID).
		Bool("resuming", c.resuming).
		Str("step", c.current.StepKey).
		Msg("onboarding session ready")
	return nil
}

// SubmitAnswer sends one answer for the current question. The user turn is
// appended optimistically and confirmed or failed when the call resolves.
// File questions are answered through SubmitFiles; calling SubmitAnswer on
// one (the sentinel resubmissions do) shows a synthetic label instead of the
// sentinel text.
func (c *Controller) SubmitAnswer(ctx context.Context, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}

	c.mu.Lock()
	if err := c.canSubmitLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	display := answer
	if c.current.Kind == KindFile {
		display = fileStepAnswerLabel
	}
	c.inFlight = true
	c.state = StateSubmitting
	c.mu.Unlock()

	c.doSubmit(ctx, answer, display)

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
	return nil
}

// SubmitFiles uploads one batch of files for the current step. An empty
// batch is rejected before any network or transcript activity. After a
// successful upload the controller resubmits a sentinel answer so the chat
// endpoint serves either the next question or the still-current documents
// question with its remaining requirements.
func (c *Controller) SubmitFiles(ctx context.Context, files []api.File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}

	c.mu.Lock()
	if err := c.canSubmitLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.inFlight = true
	c.uploading = true
	c.state = StateSubmitting
	step := c.current.StepKey
	sessionID := c.sessionID
	c.mu.Unlock()

	resp, err := c.svc.UploadDocuments(ctx, step, sessionID, files)
	if err != nil {
		c.logger.Warn().Err(err).Int("files", len(files)).Msg("document upload failed")
		c.mu.Lock()
		c.transcript.Append(transcript.SpeakerBot, fmt.Sprintf(apologyFormat, api.UserMessage(err)))
		c.state = StateAwaitingAnswer
		c.uploading = false
		c.inFlight = false
		c.mu.Unlock()
		return nil
	}

	c.transcript.Append(transcript.SpeakerUser, fmt.Sprintf(uploadedFilesFormat, len(files)))

	status := resp.DocumentStatus
	var sentinel string
	if status.AllUploaded {
		c.transcript.Append(transcript.SpeakerBot, allDocumentsMessage)
		sentinel = api.AnswerDocumentsUploaded
	} else {
		missing := len(status.MissingDocuments)
		c.transcript.Append(transcript.SpeakerBot,
			fmt.Sprintf(missingDocumentsFormat, missing, strings.Join(status.MissingDocuments, ", ")))
		sentinel = api.AnswerRefreshQuestion
	}

	// The upload batch already produced its own user turn; the sentinel
	// round-trip only refreshes the question.
	c.doSubmit(ctx, sentinel, "")

	c.mu.Lock()
	c.uploading = false
	c.inFlight = false
	c.mu.Unlock()
	return nil
}

// doSubmit runs one answer round-trip. Callers hold the in-flight guard.
// displayBody is the optimistic user turn to show; empty means none.
func (c *Controller) doSubmit(ctx context.Context, message, displayBody string) {
	pendingID := -1
	if displayBody != "" {
		pendingID = c.transcript.AppendPending(transcript.SpeakerUser, displayBody)
	}

	c.mu.Lock()
	req := api.AnswerRequest{
		Message:   message,
		Step:      c.current.StepKey,
		SessionID: c.sessionID,
	}
	c.mu.Unlock()

	resp, err := c.svc.SubmitAnswer(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("step", req.Step).Msg("answer submission failed")
		if pendingID >= 0 {
			c.transcript.Fail(pendingID)
		}
		c.transcript.Append(transcript.SpeakerBot, fmt.Sprintf(apologyFormat, api.UserMessage(err)))
		c.state = StateAwaitingAnswer
		return
	}

	if pendingID >= 0 {
		c.transcript.Confirm(pendingID)
	}

	c.current = questionFromWire(resp.Question)
	c.progress = resp.Progress

	body := c.current.Prompt
	if c.current.Progress != nil {
		body += fmt.Sprintf(progressSuffixFormat, *c.current.Progress, c.current.StepNumber, c.current.TotalSteps)
	}
	c.transcript.Append(transcript.SpeakerBot, body)

	if resp.Progress.IsComplete {
		c.state = StateComplete
		c.scheduleCompletionLocked()
	} else {
		c.state = StateAwaitingAnswer
	}
}

func (c *Controller) canSubmitLocked() error {
	switch {
	case c.state == StateInitializing:
		return ErrNotReady
	case c.state == StateComplete:
		return ErrSessionComplete
	case c.inFlight:
		return ErrSubmissionInFlight
	}
	return nil
}

func (c *Controller) scheduleCompletionLocked() {
	if c.completionFired {
		return
	}
	c.completionFired = true
	c.logger.Info().Str("session_id", c.sessionID).Msg("onboarding complete")
	if c.onComplete == nil {
		return
	}
	time.AfterFunc(c.delay, c.onComplete)
}

// Transcript returns the conversation log. The transcript is safe for
// concurrent use.
func (c *Controller) Transcript() *transcript.Transcript {
	return c.transcript
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned session identifier.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// CurrentQuestion returns the question awaiting an answer.
func (c *Controller) CurrentQuestion() Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Progress returns the last server-reported progress.
func (c *Controller) Progress() api.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Resuming reports whether the session picked up where a prior run left off.
func (c *Controller) Resuming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resuming
}

// Uploading reports whether a file batch is currently in flight.
func (c *Controller) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

package onboarding

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildfund/onboard/pkg/api"
	"github.com/buildfund/onboard/pkg/transcript"
)

type fakeService struct {
	mu        sync.Mutex
	startResp *api.StartResponse
	startErr  error
	answerFn  func(api.AnswerRequest) (*api.AnswerResponse, error)
	uploadFn  func(step, sessionID string, files []api.File) (*api.UploadResponse, error)

	answers []api.AnswerRequest
	uploads int
}

func (f *fakeService) StartChat(ctx context.Context) (*api.StartResponse, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startResp, nil
}

func (f *fakeService) SubmitAnswer(ctx context.Context, answer api.AnswerRequest) (*api.AnswerResponse, error) {
	f.mu.Lock()
	f.answers = append(f.answers, answer)
	f.mu.Unlock()
	return f.answerFn(answer)
}

func (f *fakeService) UploadDocuments(ctx context.Context, step, sessionID string, files []api.File) (*api.UploadResponse, error) {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	return f.uploadFn(step, sessionID, files)
}

func (f *fakeService) recordedAnswers() []api.AnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.AnswerRequest, len(f.answers))
	copy(out, f.answers)
	return out
}

func intPtr(v int) *int { return &v }

func freshStart() *api.StartResponse {
	return &api.StartResponse{
		SessionID: "sess-1",
		Question: api.Question{
			Prompt: "What is your name?",
			Step:   "profile_name",
			Kind:   api.KindText,
		},
		Progress: api.Progress{CompletionPercentage: 0},
	}
}

func TestInitializeFreshSession(t *testing.T) {
	svc := &fakeService{startResp: freshStart()}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, transcript.SpeakerBot, turns[0].Speaker)
	assert.Equal(t, "What is your name?", turns[0].Body)
	assert.Equal(t, StateAwaitingAnswer, ctrl.State())
	assert.Equal(t, "sess-1", ctrl.SessionID())
}

func TestInitializeTwiceRejected(t *testing.T) {
	svc := &fakeService{startResp: freshStart()}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))
	assert.ErrorIs(t, ctrl.Initialize(context.Background()), ErrAlreadyInitialized)
}

func TestInitializeFailureRendersBotTurn(t *testing.T) {
	svc := &fakeService{startErr: &net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")}}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, transcript.SpeakerBot, turns[0].Speaker)
	assert.Contains(t, turns[0].Body, api.FallbackMessage)
	// not initialized; answering is still impossible
	assert.ErrorIs(t, ctrl.SubmitAnswer(context.Background(), "hello"), ErrNotReady)
}

func TestSubmitAnswerAppendsProgressSuffix(t *testing.T) {
	svc := &fakeService{
		startResp: freshStart(),
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			return &api.AnswerResponse{
				Question: api.Question{
					Prompt:     "What is your company?",
					Step:       "company_collection",
					Kind:       api.KindText,
					Progress:   intPtr(10),
					StepNumber: 2,
					TotalSteps: 10,
				},
				Progress: api.Progress{CompletionPercentage: 10},
			}, nil
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))
	require.NoError(t, ctrl.SubmitAnswer(context.Background(), "Jane"))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "Jane", turns[1].Body)
	assert.Equal(t, transcript.StatusConfirmed, turns[1].Status)
	assert.Equal(t, "What is your company?\n\n📊 Progress: 10% complete (Step 2 of 10)", turns[2].Body)

	answers := svc.recordedAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, "profile_name", answers[0].Step)
	assert.Equal(t, "sess-1", answers[0].SessionID)
}

func TestSubmitAnswerWithoutProgressOmitsSuffix(t *testing.T) {
	svc := &fakeService{
		startResp: freshStart(),
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			return &api.AnswerResponse{
				Question: api.Question{Prompt: "What is your nationality?", Step: "profile_nationality", Kind: api.KindText},
			}, nil
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))
	require.NoError(t, ctrl.SubmitAnswer(context.Background(), "Jane"))

	turns := ctrl.Transcript().Turns()
	assert.Equal(t, "What is your nationality?", turns[len(turns)-1].Body)
}

func TestResumeDoesNotDuplicateCurrentQuestion(t *testing.T) {
	at := time.Now().UTC()
	svc := &fakeService{
		startResp: &api.StartResponse{
			SessionID: "sess-2",
			Question:  api.Question{Prompt: "What is your company?", Step: "company_collection", Kind: api.KindText},
			Progress:  api.Progress{CompletionPercentage: 30},
			ConversationHistory: []api.HistoryEntry{
				{Type: "bot", Message: "Welcome back! 👋 You've completed 30% of your profile.", Timestamp: at},
				{Type: "user", Message: "Jane", Timestamp: at},
				{Type: "bot", Message: "What is your company?", Timestamp: at},
			},
			IsResuming: true,
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "What is your company?", turns[2].Body)
	assert.True(t, ctrl.Resuming())
}

func TestResumeAppendsQuestionWhenHistoryDiffers(t *testing.T) {
	at := time.Now().UTC()
	svc := &fakeService{
		startResp: &api.StartResponse{
			SessionID: "sess-3",
			Question:  api.Question{Prompt: "What's your phone number?", Step: "contact_phone", Kind: api.KindPhone},
			Progress:  api.Progress{CompletionPercentage: 30},
			ConversationHistory: []api.HistoryEntry{
				{Type: "bot", Message: "What is your company?", Timestamp: at},
				{Type: "user", Message: "Acme Ltd", Timestamp: at},
			},
			IsResuming: true,
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, transcript.SpeakerBot, turns[2].Speaker)
	assert.Equal(t, "What's your phone number?", turns[2].Body)
}

func TestTranscriptGrowsMonotonically(t *testing.T) {
	step := 0
	svc := &fakeService{
		startResp: freshStart(),
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			step++
			return &api.AnswerResponse{
				Question: api.Question{Prompt: fmt.Sprintf("Question %d?", step), Step: fmt.Sprintf("step_%d", step), Kind: api.KindText},
			}, nil
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	prevLen := ctrl.Transcript().Len()
	var prefix []transcript.Turn
	for i := 0; i < 5; i++ {
		require.NoError(t, ctrl.SubmitAnswer(context.Background(), fmt.Sprintf("answer %d", i)))
		turns := ctrl.Transcript().Turns()
		require.Greater(t, len(turns), prevLen)
		for j, p := range prefix {
			assert.Equal(t, p.Body, turns[j].Body)
			assert.Equal(t, p.Speaker, turns[j].Speaker)
		}
		prefix = turns
		prevLen = len(turns)
	}
}

func TestNetworkFailureKeepsQuestion(t *testing.T) {
	svc := &fakeService{
		startResp: freshStart(),
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			return nil, fmt.Errorf("connection reset")
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))
	before := ctrl.CurrentQuestion()

	require.NoError(t, ctrl.SubmitAnswer(context.Background(), "Jane"))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, transcript.StatusFailed, turns[1].Status)
	assert.Equal(t, transcript.SpeakerBot, turns[2].Speaker)
	assert.Contains(t, turns[2].Body, api.FallbackMessage)
	assert.Equal(t, before, ctrl.CurrentQuestion())
	assert.Equal(t, StateAwaitingAnswer, ctrl.State())

	// the user can retry the same answer
	svc.answerFn = func(req api.AnswerRequest) (*api.AnswerResponse, error) {
		return &api.AnswerResponse{
			Question: api.Question{Prompt: "Next?", Step: "next", Kind: api.KindText},
		}, nil
	}
	require.NoError(t, ctrl.SubmitAnswer(context.Background(), "Jane"))
	assert.Equal(t, "next", ctrl.CurrentQuestion().StepKey)
}

func TestEmptyAnswerRejected(t *testing.T) {
	svc := &fakeService{startResp: freshStart()}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	assert.ErrorIs(t, ctrl.SubmitAnswer(context.Background(), "   "), ErrEmptyAnswer)
	assert.Empty(t, svc.recordedAnswers())
	assert.Equal(t, 1, ctrl.Transcript().Len())
}

func TestEmptyFileBatchIsNoOp(t *testing.T) {
	svc := &fakeService{startResp: freshStart()}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	assert.ErrorIs(t, ctrl.SubmitFiles(context.Background(), nil), ErrNoFiles)
	assert.Equal(t, 0, svc.uploads)
	assert.Equal(t, 1, ctrl.Transcript().Len())
}

func TestUploadWithMissingDocuments(t *testing.T) {
	svc := &fakeService{
		startResp: &api.StartResponse{
			SessionID: "sess-4",
			Question:  api.Question{Prompt: "Please upload your documents.", Step: "documents_collection", Kind: api.KindFile},
		},
		uploadFn: func(step, sessionID string, files []api.File) (*api.UploadResponse, error) {
			return &api.UploadResponse{
				DocumentStatus: api.DocumentStatus{
					AllUploaded:      false,
					MissingDocuments: []string{"proof_of_identity", "proof_of_address"},
				},
			}, nil
		},
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			return &api.AnswerResponse{
				Question: api.Question{Prompt: "Please upload your documents.", Step: "documents_collection", Kind: api.KindFile},
			}, nil
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	files := []api.File{{Name: "passport.pdf", Content: nil}}
	require.NoError(t, ctrl.SubmitFiles(context.Background(), files))

	turns := ctrl.Transcript().Turns()
	// question, upload user turn, missing-docs bot turn, refreshed question
	require.Len(t, turns, 4)
	assert.Equal(t, "📎 Uploaded 1 file(s)", turns[1].Body)
	assert.Contains(t, turns[2].Body, "2 more required document(s)")
	assert.Contains(t, turns[2].Body, "proof_of_identity")

	answers := svc.recordedAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, api.AnswerRefreshQuestion, answers[0].Message)
	assert.False(t, ctrl.Uploading())
}

func TestUploadCompleteAdvances(t *testing.T) {
	svc := &fakeService{
		startResp: &api.StartResponse{
			SessionID: "sess-5",
			Question:  api.Question{Prompt: "Please upload your documents.", Step: "documents_collection", Kind: api.KindFile},
		},
		uploadFn: func(step, sessionID string, files []api.File) (*api.UploadResponse, error) {
			return &api.UploadResponse{
				DocumentStatus: api.DocumentStatus{AllUploaded: true},
			}, nil
		},
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			return &api.AnswerResponse{
				Question: api.Question{Prompt: "Does everything look correct?", Step: "review", Kind: api.KindSelect,
					Options: []string{"Yes, everything is correct", "No, I need to make changes"}},
			}, nil
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))
	require.NoError(t, ctrl.SubmitFiles(context.Background(), []api.File{
		{Name: "passport.pdf"}, {Name: "utility-bill.pdf"},
	}))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, "📎 Uploaded 2 file(s)", turns[1].Body)
	assert.Equal(t, allDocumentsMessage, turns[2].Body)
	assert.Equal(t, "Does everything look correct?", turns[3].Body)

	answers := svc.recordedAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, api.AnswerDocumentsUploaded, answers[0].Message)
	assert.Equal(t, KindSingleSelect, ctrl.CurrentQuestion().Kind)
}

func TestUploadFailureClearsUploadingFlag(t *testing.T) {
	svc := &fakeService{
		startResp: &api.StartResponse{
			SessionID: "sess-6",
			Question:  api.Question{Prompt: "Please upload your documents.", Step: "documents_collection", Kind: api.KindFile},
		},
		uploadFn: func(step, sessionID string, files []api.File) (*api.UploadResponse, error) {
			return nil, fmt.Errorf("upload refused")
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))
	require.NoError(t, ctrl.SubmitFiles(context.Background(), []api.File{{Name: "passport.pdf"}}))

	turns := ctrl.Transcript().Turns()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].Body, api.FallbackMessage)
	assert.False(t, ctrl.Uploading())
	assert.Equal(t, StateAwaitingAnswer, ctrl.State())
	assert.Empty(t, svc.recordedAnswers())
}

func TestCompletionCallbackFiredOnceAfterDelay(t *testing.T) {
	svc := &fakeService{
		startResp: freshStart(),
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			return &api.AnswerResponse{
				Question: api.Question{Prompt: "All done!", Step: "complete", Kind: api.KindText},
				Progress: api.Progress{IsComplete: true, CompletionPercentage: 100},
			}, nil
		},
	}

	var mu sync.Mutex
	fired := 0
	ctrl := NewController(svc,
		WithCompletionDelay(30*time.Millisecond),
		WithOnComplete(func() {
			mu.Lock()
			fired++
			mu.Unlock()
		}),
	)
	require.NoError(t, ctrl.Initialize(context.Background()))
	require.NoError(t, ctrl.SubmitAnswer(context.Background(), "done"))

	assert.Equal(t, StateComplete, ctrl.State())
	mu.Lock()
	assert.Equal(t, 0, fired, "callback must wait for the delay")
	mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, time.Second, 10*time.Millisecond)

	// further submissions are rejected and never re-fire the callback
	assert.ErrorIs(t, ctrl.SubmitAnswer(context.Background(), "more"), ErrSessionComplete)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, fired)
	mu.Unlock()
}

func TestConcurrentSubmissionRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	svc := &fakeService{
		startResp: freshStart(),
		answerFn: func(req api.AnswerRequest) (*api.AnswerResponse, error) {
			close(entered)
			<-release
			return &api.AnswerResponse{
				Question: api.Question{Prompt: "Next?", Step: "next", Kind: api.KindText},
			}, nil
		},
	}
	ctrl := NewController(svc)
	require.NoError(t, ctrl.Initialize(context.Background()))

	done := make(chan error, 1)
	go func() {
		done <- ctrl.SubmitAnswer(context.Background(), "first")
	}()

	<-entered
	assert.ErrorIs(t, ctrl.SubmitAnswer(context.Background(), "second"), ErrSubmissionInFlight)
	assert.ErrorIs(t, ctrl.SubmitFiles(context.Background(), []api.File{{Name: "x"}}), ErrSubmissionInFlight)

	close(release)
	require.NoError(t, <-done)

	answers := svc.recordedAnswers()
	require.Len(t, answers, 1)
	assert.Equal(t, "first", answers[0].Message)
}

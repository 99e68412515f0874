package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buildfund/onboard/pkg/api"
)

const maxUploadBytes = 32 << 20 // 32MB per batch

const welcomeBackFormat = "Welcome back! 👋 You've completed %d%% of your profile. Let's continue where we left off."

type ownerKey struct{}

// Handler serves the onboarding chat endpoints against a Store. Each bearer
// token is treated as its own user; there is no real account system, this
// is a development stand-in for the production backend.
type Handler struct {
	store       *Store
	defaultRole Role
	logger      zerolog.Logger
	now         func() time.Time
}

type HandlerOption func(*Handler)

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

func WithHandlerLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(store *Store, defaultRole Role, options ...HandlerOption) http.Handler {
	h := &Handler{
		store:       store,
		defaultRole: defaultRole,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range options {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.tokenAuth)
	r.Get("/api/onboarding/chat/", h.handleStartChat)
	r.Post("/api/onboarding/chat/", h.handleAnswer)
	r.Post("/api/onboarding/upload_documents/", h.handleUpload)
	return r
}

// tokenAuth requires an "Authorization: Token <value>" header and keys all
// state off the token value.
func (h *Handler) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Token ")
		if auth == "" || token == auth || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, strings.TrimSpace(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func (h *Handler) handleStartChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	sess, err := h.store.ActiveSession(ctx, owner)
	if err != nil {
		h.serverError(w, err, "load session")
		return
	}
	if sess == nil {
		now := h.now().UTC()
		sess = &Session{
			SessionID:    uuid.NewString(),
			Owner:        owner,
			Role:         h.defaultRole,
			CurrentStep:  StepWelcome,
			Collected:    map[string]string{},
			IsActive:     true,
			StartedAt:    now,
			LastActivity: now,
		}
		if err := h.store.SaveSession(ctx, sess); err != nil {
			h.serverError(w, err, "create session")
			return
		}
		h.logger.Info().Str("session_id", sess.SessionID).Str("role", string(sess.Role)).Msg("session created")
	}

	docsUploaded, err := h.allDocumentsUploaded(ctx, owner)
	if err != nil {
		h.serverError(w, err, "check documents")
		return
	}
	progress := progressFor(sess.Role, sess.CurrentStep, sess.Collected, docsUploaded)
	question := questionForStep(sess.Role, sess.CurrentStep, sess.Collected, progress.CompletionPercentage)

	resuming := progress.CompletionPercentage > 0 || len(sess.History) > 0
	history := sess.History
	if resuming && len(history) > 0 {
		if !hasWelcomeBack(history) {
			entry := api.HistoryEntry{
				Type:      "bot",
				Message:   fmt.Sprintf(welcomeBackFormat, progress.CompletionPercentage),
				Timestamp: h.now().UTC(),
			}
			history = append([]api.HistoryEntry{entry}, history...)
			sess.History = history
			if err := h.store.SaveSession(ctx, sess); err != nil {
				h.serverError(w, err, "save welcome back")
				return
			}
		}
	} else if len(history) == 0 {
		// Fresh conversation: the first question doubles as the history so
		// the client has something to render immediately.
		history = []api.HistoryEntry{{
			Type:      "bot",
			Message:   question.Prompt,
			Timestamp: h.now().UTC(),
		}}
	}

	writeJSON(w, http.StatusOK, api.StartResponse{
		SessionID:           sess.SessionID,
		Question:            question,
		Progress:            progress,
		ConversationHistory: history,
		IsResuming:          resuming,
	})
}

func hasWelcomeBack(history []api.HistoryEntry) bool {
	for _, entry := range history {
		if entry.Type == "bot" && strings.HasPrefix(entry.Message, "Welcome back") {
			return true
		}
	}
	return false
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	var req api.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		jsonError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, err := h.findOrCreateSession(ctx, owner, req)
	if err != nil {
		h.serverError(w, err, "load session")
		return
	}

	now := h.now().UTC()
	sess.History = append(sess.History, api.HistoryEntry{Type: "user", Message: req.Message, Timestamp: now})

	next, err := h.processAnswer(ctx, sess, req.Message)
	if err != nil {
		h.serverError(w, err, "process answer")
		return
	}
	sess.CurrentStep = next
	sess.LastActivity = now

	docsUploaded, err := h.allDocumentsUploaded(ctx, owner)
	if err != nil {
		h.serverError(w, err, "check documents")
		return
	}
	progress := progressFor(sess.Role, next, sess.Collected, docsUploaded)
	question := questionForStep(sess.Role, next, sess.Collected, progress.CompletionPercentage)

	sess.History = append(sess.History, api.HistoryEntry{Type: "bot", Message: question.Prompt, Timestamp: now})
	if err := h.store.SaveSession(ctx, sess); err != nil {
		h.serverError(w, err, "save session")
		return
	}

	h.logger.Debug().
		Str("session_id", sess.SessionID).
		Str("step", next).
		Int("completion", progress.CompletionPercentage).
		Msg("answer processed")

	writeJSON(w, http.StatusOK, api.AnswerResponse{
		SessionID: sess.SessionID,
		Question:  question,
		Progress:  progress,
	})
}

func (h *Handler) findOrCreateSession(ctx context.Context, owner string, req api.AnswerRequest) (*Session, error) {
	if req.SessionID != "" {
		sess, err := h.store.GetSession(ctx, owner, req.SessionID)
		if err != nil || sess != nil {
			return sess, err
		}
	} else {
		sess, err := h.store.ActiveSession(ctx, owner)
		if err != nil || sess != nil {
			return sess, err
		}
	}

	now := h.now().UTC()
	step := req.Step
	if step == "" {
		step = StepWelcome
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := &Session{
		SessionID:    sessionID,
		Owner:        owner,
		Role:         h.defaultRole,
		CurrentStep:  step,
		Collected:    map[string]string{},
		IsActive:     true,
		StartedAt:    now,
		LastActivity: now,
	}
	return sess, nil
}

// processAnswer advances the step machine and records collected data.
func (h *Handler) processAnswer(ctx context.Context, sess *Session, message string) (string, error) {
	steps := stepsForRole(sess.Role)
	step := sess.CurrentStep
	if step == "" {
		step = StepWelcome
	}
	lower := strings.ToLower(strings.TrimSpace(message))

	// Upload sub-flow sentinels: advance past the documents step only when
	// everything required is present, otherwise re-serve it.
	switch message {
	case api.AnswerDocumentsUploaded:
		docsUploaded, err := h.allDocumentsUploaded(ctx, sess.Owner)
		if err != nil {
			return "", err
		}
		if docsUploaded {
			return nextStep(steps, StepDocumentsCollection), nil
		}
		return StepDocumentsCollection, nil
	case api.AnswerRefreshQuestion:
		return step, nil
	}

	if step == StepPaused {
		return StepWelcome, nil
	}

	switch lower {
	case "maybe later", "later", "not now":
		if step == StepWelcome {
			return StepPaused, nil
		}
	case "skip", "none", "n/a", "not applicable":
		switch step {
		case StepCompanyCollection:
			sess.Collected["company_skipped"] = "true"
			return stepAfter(steps, step, StepCompanyVerification, StepDirectorVerification), nil
		default:
			return nextStep(steps, step), nil
		}
	}

	switch step {
	case StepAddressCollection:
		sess.Collected["postcode"] = message
		sess.Collected["formatted_address"] = fmt.Sprintf("%s, United Kingdom", strings.ToUpper(strings.TrimSpace(message)))
		return StepAddressVerification, nil
	case StepCompanyCollection:
		sess.Collected["company_registration_number"] = message
		sess.Collected["company_name"] = fmt.Sprintf("Company %s Limited", strings.ToUpper(strings.TrimSpace(message)))
		return StepCompanyVerification, nil
	default:
		if tpl, ok := questionTemplates[step]; ok && tpl.Field != "" && tpl.Kind != api.KindFile {
			sess.Collected[tpl.Field] = message
		}
		return nextStep(steps, step), nil
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		jsonError(w, http.StatusBadRequest, "No files provided")
		return
	}
	sessionID := r.FormValue("session_id")

	now := h.now().UTC()
	uploaded := make([]api.UploadedDocument, 0, len(files))
	for _, fh := range files {
		doc := &Document{
			Owner:      owner,
			SessionID:  sessionID,
			FileName:   fh.Filename,
			FileType:   fh.Header.Get("Content-Type"),
			FileSize:   fh.Size,
			DocKey:     classifyDocument(fh.Filename),
			UploadedAt: now,
		}
		if err := h.store.AddDocument(ctx, doc); err != nil {
			h.serverError(w, err, "store document")
			return
		}
		uploaded = append(uploaded, api.UploadedDocument{
			ID:       doc.ID,
			FileName: doc.FileName,
			FileType: doc.FileType,
			FileSize: doc.FileSize,
		})
	}

	docs, err := h.store.DocumentsFor(ctx, owner)
	if err != nil {
		h.serverError(w, err, "list documents")
		return
	}
	status := documentStatus(docs)

	h.logger.Info().
		Int("files", len(files)).
		Bool("all_uploaded", status.AllUploaded).
		Msg("documents stored")

	writeJSON(w, http.StatusCreated, api.UploadResponse{
		Documents:      uploaded,
		DocumentStatus: status,
	})
}

func (h *Handler) allDocumentsUploaded(ctx context.Context, owner string) (bool, error) {
	docs, err := h.store.DocumentsFor(ctx, owner)
	if err != nil {
		return false, err
	}
	return documentStatus(docs).AllUploaded, nil
}

func (h *Handler) serverError(w http.ResponseWriter, err error, msg string) {
	h.logger.Error().Err(err).Msg(msg)
	jsonError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

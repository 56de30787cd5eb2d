package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/dto"
	"ai-interview-be/internal/entity"
	"ai-interview-be/internal/metrics"
	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/internal/repository/contract"
	"ai-interview-be/pkg/events"
	"ai-interview-be/pkg/question"
	"ai-interview-be/pkg/synthesis"
	"ai-interview-be/pkg/transcriber"

	"github.com/google/uuid"
)

type ISessionService interface {
	CreateSession(ctx context.Context, callerId string, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	SubmitChunk(ctx context.Context, req *dto.StreamRequest) (*dto.SubmitChunkResponse, error)
	StreamQuestion(ctx context.Context, sessionId string, emit func(dto.StreamEvent) error) error
	EndSession(ctx context.Context, sessionId string) error
	Health(ctx context.Context) *dto.HealthResponse
}

// sessionService owns every session state transition. All reads and writes
// for a given session id go through here, serialized by a per-session mutex
// held across load, adapter call and persist (the update depends on the
// adapter result, so the critical section must span all three).
type sessionService struct {
	repo        contract.SessionRepository
	transcriber transcriber.Transcriber
	generator   question.Generator
	synthesizer synthesis.Synthesizer
	publisher   IPublisherService
	log         logger.ILogger
	cfg         *config.Config

	locks sync.Map // session id -> *sync.Mutex
}

func NewSessionService(
	repo contract.SessionRepository,
	transcriberClient transcriber.Transcriber,
	generatorClient question.Generator,
	synthesizerClient synthesis.Synthesizer,
	publisher IPublisherService,
	log logger.ILogger,
	cfg *config.Config,
) ISessionService {
	return &sessionService{
		repo:        repo,
		transcriber: transcriberClient,
		generator:   generatorClient,
		synthesizer: synthesizerClient,
		publisher:   publisher,
		log:         log,
		cfg:         cfg,
	}
}

func (s *sessionService) lockSession(sessionId string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(sessionId, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// releaseLock drops the per-session mutex once the session is terminal so the
// lock map does not grow for the lifetime of the process. A racer that
// already loaded the old mutex still serializes against the current holder;
// a later request gets a fresh mutex, which is harmless because every
// operation on a terminal session is a read-and-reject.
func (s *sessionService) releaseLock(sessionId string) {
	s.locks.Delete(sessionId)
}

func (s *sessionService) CreateSession(ctx context.Context, callerId string, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	language := req.Language
	if language == "" {
		language = s.cfg.Session.DefaultLanguage
	}
	if !s.languageAllowed(language) {
		return nil, errValidation("language '" + language + "' is not supported")
	}

	count, err := s.repo.CallerSessionCount(ctx, callerId)
	if err != nil {
		return nil, errStoreUnavailable()
	}
	if count >= int64(s.cfg.Session.MaxSessionsPerUser) {
		return nil, errTooManySessions()
	}

	session := entity.NewSession(uuid.NewString(), callerId, language)
	if err := s.repo.Create(ctx, session, s.activeTTL()); err != nil {
		s.log.Error("session", "failed to persist new session", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
		return nil, errStoreUnavailable()
	}
	if err := s.repo.AddCallerSession(ctx, callerId, session.Id, s.activeTTL()); err != nil {
		s.log.Warn("session", "failed to index session for caller", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
	}

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	s.publish(events.NewSessionEvent(events.TypeSessionCreated, session.Id, callerId))
	s.log.Info("session", "session created", map[string]interface{}{
		"session_id": session.Id,
		"language":   language,
	})

	return &dto.StartSessionResponse{SessionId: session.Id}, nil
}

func (s *sessionService) SubmitChunk(ctx context.Context, req *dto.StreamRequest) (*dto.SubmitChunkResponse, error) {
	mu := s.lockSession(req.SessionId)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.touchAndCheckExpiry(ctx, req.SessionId)
	if err != nil {
		return nil, err
	}
	if session.TurnState != entity.TurnStateAwaitingChunk {
		return nil, errConflict()
	}

	expected := session.LastChunk + 1
	if req.ChunkNumber != expected {
		return nil, errChunkSequence(expected, req.ChunkNumber)
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		return nil, errValidation("audio_data is not valid base64")
	}
	if len(audio) > s.cfg.Session.MaxChunkBytes {
		return nil, errPayloadTooLarge()
	}
	if len(audio) == 0 && !req.Final {
		return nil, errValidation("audio_data is required for a non-final chunk")
	}

	delta := ""
	if len(audio) > 0 {
		// Transient state; only becomes visible if the adapter call succeeds
		// and the record is persisted below.
		session.TurnState = entity.TurnStateTranscribing

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Ai.AdapterTimeout)
		start := time.Now()
		delta, err = s.transcriber.Transcribe(callCtx, audio, session.Language)
		cancel()
		metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())

		if err != nil {
			// Nothing was persisted, so the chunk is simply not accepted and
			// the same chunk number can be retried.
			session.TurnState = entity.TurnStateAwaitingChunk
			metrics.Errors.WithLabelValues("transcribe", "adapter").Inc()
			s.log.Error("session", "transcription failed", map[string]interface{}{
				"session_id":   session.Id,
				"chunk_number": req.ChunkNumber,
				"error":        err.Error(),
			})
			return nil, errTranscriptionFailed()
		}
		session.Buffer += delta
	}

	session.LastChunk = req.ChunkNumber
	session.TurnState = entity.TurnStateAwaitingChunk
	session.LastActiveAt = time.Now()
	metrics.ChunksProcessed.Inc()

	turnComplete := false
	if req.Final {
		if answer := strings.TrimSpace(session.Buffer); answer != "" {
			session.History = append(session.History, entity.HistoryEntry{
				Speaker: entity.SpeakerCandidate,
				Text:    answer,
			})
		}
		session.Buffer = ""
		session.LastChunk = 0 // chunk numbering restarts each turn
		turnComplete = true
	}

	ttl := s.activeTTL()
	if len(session.History) >= s.cfg.Session.MaxHistoryEntries {
		session.Status = entity.SessionStatusClosed
		ttl = s.cfg.Session.EvictionGrace
	}

	if err := s.persist(ctx, session, ttl); err != nil {
		return nil, err
	}
	if session.Status == entity.SessionStatusClosed {
		s.onClosed(ctx, session)
	}

	return &dto.SubmitChunkResponse{TranscriptDelta: delta, TurnComplete: turnComplete}, nil
}

func (s *sessionService) StreamQuestion(ctx context.Context, sessionId string, emit func(dto.StreamEvent) error) error {
	mu := s.lockSession(sessionId)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.touchAndCheckExpiry(ctx, sessionId)
	if err != nil {
		return err
	}
	if session.TurnState != entity.TurnStateAwaitingChunk {
		return errConflict()
	}

	previousState := session.TurnState
	session.TurnState = entity.TurnStateStreamingQuestion

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Ai.AdapterTimeout)
	defer cancel()

	start := time.Now()
	fullQuestion, err := s.generator.Generate(callCtx, session.History, session.Language, func(token string) error {
		return emit(dto.StreamEvent{Type: dto.StreamEventText, Content: token})
	})
	metrics.StageDuration.WithLabelValues("generate").Observe(time.Since(start).Seconds())

	if err != nil {
		// Nothing partial is committed; the caller may retry from the same
		// turn state.
		session.TurnState = previousState
		metrics.Errors.WithLabelValues("generate", "adapter").Inc()
		s.log.Error("session", "question generation failed", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
		return errGenerationFailed()
	}

	session.History = append(session.History, entity.HistoryEntry{
		Speaker: entity.SpeakerInterviewer,
		Text:    fullQuestion,
	})
	session.TurnState = entity.TurnStateAwaitingChunk
	session.LastActiveAt = time.Now()

	ttl := s.activeTTL()
	if len(session.History) >= s.cfg.Session.MaxHistoryEntries {
		session.Status = entity.SessionStatusClosed
		ttl = s.cfg.Session.EvictionGrace
	}

	if err := s.persist(ctx, session, ttl); err != nil {
		return err
	}
	metrics.QuestionsStreamed.Inc()
	if session.Status == entity.SessionStatusClosed {
		s.onClosed(ctx, session)
	}

	// Speech synthesis happens after the question is committed: a synthesis
	// failure must not undo a successfully generated question.
	if s.cfg.Ai.SynthesisEnabled && s.synthesizer != nil {
		synthCtx, synthCancel := context.WithTimeout(ctx, s.cfg.Ai.AdapterTimeout)
		defer synthCancel()

		start = time.Now()
		err = s.synthesizer.Synthesize(synthCtx, fullQuestion, session.Language, func(audioB64 string) error {
			return emit(dto.StreamEvent{Type: dto.StreamEventAudio, Content: audioB64})
		})
		metrics.StageDuration.WithLabelValues("synthesize").Observe(time.Since(start).Seconds())

		if err != nil {
			metrics.Errors.WithLabelValues("synthesize", "adapter").Inc()
			s.log.Error("session", "speech synthesis failed", map[string]interface{}{
				"session_id": session.Id,
				"error":      err.Error(),
			})
			// The stream is already committed and flowing, so the failure is
			// delivered in-band.
			_ = emit(dto.StreamEvent{Type: dto.StreamEventError, Content: KindSynthesisFailed})
		}
	}

	return emit(dto.StreamEvent{Type: dto.StreamEventEnd})
}

func (s *sessionService) EndSession(ctx context.Context, sessionId string) error {
	mu := s.lockSession(sessionId)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.repo.Get(ctx, sessionId)
	if errors.Is(err, contract.ErrSessionNotFound) {
		// Duplicate termination from an unreliable client; treat as success.
		return nil
	}
	if err != nil {
		return errStoreUnavailable()
	}

	if session.Status == entity.SessionStatusClosed {
		return nil
	}

	wasActive := session.Status == entity.SessionStatusActive
	session.Status = entity.SessionStatusClosed
	if err := s.persist(ctx, session, s.cfg.Session.EvictionGrace); err != nil {
		return err
	}
	if wasActive {
		metrics.SessionsActive.Dec()
	}

	if err := s.repo.RemoveCallerSession(ctx, session.CallerId, session.Id); err != nil {
		s.log.Warn("session", "failed to unindex session for caller", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
	}
	s.publish(events.NewSessionEvent(events.TypeSessionClosed, session.Id, session.CallerId))
	s.log.Info("session", "session closed", map[string]interface{}{"session_id": session.Id})
	s.releaseLock(session.Id)

	return nil
}

func (s *sessionService) Health(ctx context.Context) *dto.HealthResponse {
	res := &dto.HealthResponse{Status: "ok", Store: "ok"}
	if err := s.repo.Ping(ctx); err != nil {
		res.Status = "degraded"
		res.Store = "unreachable"
	}
	return res
}

// touchAndCheckExpiry loads the session and applies the lazy expiry check.
// This is the only place a session transitions to EXPIRED.
func (s *sessionService) touchAndCheckExpiry(ctx context.Context, sessionId string) (*entity.Session, error) {
	session, err := s.repo.Get(ctx, sessionId)
	if errors.Is(err, contract.ErrSessionNotFound) {
		return nil, errSessionNotFound()
	}
	if err != nil {
		return nil, errStoreUnavailable()
	}

	switch session.Status {
	case entity.SessionStatusClosed:
		return nil, errSessionClosed()
	case entity.SessionStatusExpired:
		return nil, errSessionExpired()
	}

	if time.Since(session.LastActiveAt) > s.cfg.Session.Timeout {
		session.Status = entity.SessionStatusExpired
		if err := s.repo.Update(ctx, session, s.cfg.Session.EvictionGrace); err != nil {
			s.log.Warn("session", "failed to persist expiry", map[string]interface{}{
				"session_id": session.Id,
				"error":      err.Error(),
			})
		}
		// An expired session must stop counting against the caller's cap.
		if err := s.repo.RemoveCallerSession(ctx, session.CallerId, session.Id); err != nil {
			s.log.Warn("session", "failed to unindex session for caller", map[string]interface{}{
				"session_id": session.Id,
				"error":      err.Error(),
			})
		}
		metrics.SessionsExpired.Inc()
		metrics.SessionsActive.Dec()
		s.publish(events.NewSessionEvent(events.TypeSessionExpired, session.Id, session.CallerId))
		s.releaseLock(session.Id)
		return nil, errSessionExpired()
	}

	return session, nil
}

func (s *sessionService) persist(ctx context.Context, session *entity.Session, ttl time.Duration) error {
	err := s.repo.Update(ctx, session, ttl)
	if errors.Is(err, contract.ErrVersionConflict) {
		return errConflict()
	}
	if errors.Is(err, contract.ErrSessionNotFound) {
		return errSessionNotFound()
	}
	if err != nil {
		s.log.Error("session", "failed to persist session", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
		return errStoreUnavailable()
	}
	return nil
}

func (s *sessionService) onClosed(ctx context.Context, session *entity.Session) {
	metrics.SessionsActive.Dec()
	if err := s.repo.RemoveCallerSession(ctx, session.CallerId, session.Id); err != nil {
		s.log.Warn("session", "failed to unindex session for caller", map[string]interface{}{
			"session_id": session.Id,
			"error":      err.Error(),
		})
	}
	s.publish(events.NewSessionEvent(events.TypeSessionClosed, session.Id, session.CallerId))
	s.log.Info("session", "session closed by history limit", map[string]interface{}{
		"session_id": session.Id,
		"entries":    len(session.History),
	})
	s.releaseLock(session.Id)
}

func (s *sessionService) publish(event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.log.Warn("session", "failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}

// activeTTL is the store TTL for a live session record. The record must
// outlive the idle window by the eviction grace so the lazy expiry check can
// still observe and mark the session EXPIRED instead of it silently
// disappearing into SESSION_NOT_FOUND.
func (s *sessionService) activeTTL() time.Duration {
	return s.cfg.Session.Timeout + s.cfg.Session.EvictionGrace
}

func (s *sessionService) languageAllowed(language string) bool {
	for _, allowed := range s.cfg.Session.AllowedLanguages {
		if language == allowed {
			return true
		}
	}
	return false
}

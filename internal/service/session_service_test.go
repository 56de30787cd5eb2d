package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"ai-interview-be/internal/config"
	"ai-interview-be/internal/dto"
	"ai-interview-be/internal/entity"
	"ai-interview-be/internal/pkg/serverutils"
	"ai-interview-be/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

type fakeTranscriber struct {
	deltas []string
	calls  int
	err    error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	delta := "transcript"
	if f.calls < len(f.deltas) {
		delta = f.deltas[f.calls]
	}
	f.calls++
	return delta, nil
}

type fakeGenerator struct {
	tokens    []string
	failAfter int // fail after emitting this many tokens; -1 = never
}

func (f *fakeGenerator) Generate(
	ctx context.Context,
	history []entity.HistoryEntry,
	language string,
	onToken func(string) error,
) (string, error) {
	full := ""
	for i, token := range f.tokens {
		if f.failAfter >= 0 && i == f.failAfter {
			return "", errors.New("upstream broke mid-stream")
		}
		if err := onToken(token); err != nil {
			return "", err
		}
		full += token
	}
	if f.failAfter >= 0 && f.failAfter >= len(f.tokens) {
		return "", errors.New("upstream broke at end")
	}
	return full, nil
}

type fakeSynthesizer struct {
	chunks []string
	err    error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, language string, onAudio func(string) error) error {
	if f.err != nil {
		return f.err
	}
	for _, chunk := range f.chunks {
		if err := onAudio(chunk); err != nil {
			return err
		}
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{
			Timeout:            time.Hour,
			EvictionGrace:      time.Minute,
			MaxChunkBytes:      1024,
			MaxSessionsPerUser: 2,
			MaxHistoryEntries:  10,
			AllowedLanguages:   []string{"id", "en"},
			DefaultLanguage:    "id",
		},
		Ai: config.AIConfig{
			AdapterTimeout:   time.Second,
			SynthesisEnabled: false,
		},
	}
}

type fixture struct {
	repo        *memory.SessionRepository
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	synthesizer *fakeSynthesizer
	cfg         *config.Config
	service     ISessionService
}

func newFixture(cfg *config.Config) *fixture {
	f := &fixture{
		repo:        memory.NewSessionRepository(cfg.Session.Timeout),
		transcriber: &fakeTranscriber{},
		generator:   &fakeGenerator{tokens: []string{"Bisa ", "ceritakan ", "tentang diri Anda?"}, failAfter: -1},
		synthesizer: &fakeSynthesizer{},
		cfg:         cfg,
	}
	f.service = NewSessionService(f.repo, f.transcriber, f.generator, f.synthesizer, nil, nopLogger{}, cfg)
	return f
}

func (f *fixture) start(t *testing.T, language string) string {
	t.Helper()
	res, err := f.service.CreateSession(context.Background(), "caller-1", &dto.StartSessionRequest{Language: language})
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionId)
	return res.SessionId
}

func chunkReq(sessionId string, number int, audio string, final bool) *dto.StreamRequest {
	return &dto.StreamRequest{
		SessionId:   sessionId,
		StreamType:  dto.StreamTypeChunk,
		AudioData:   base64.StdEncoding.EncodeToString([]byte(audio)),
		ChunkNumber: number,
		Final:       final,
	}
}

func assertKind(t *testing.T, err error, kind string) {
	t.Helper()
	var apiErr *serverutils.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, kind, apiErr.Kind)
}

func TestCreateSessionDefaultsLanguage(t *testing.T) {
	f := newFixture(testConfig())
	sid := f.start(t, "")

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "id", session.Language)
	assert.Equal(t, entity.SessionStatusActive, session.Status)
	assert.Equal(t, entity.TurnStateAwaitingChunk, session.TurnState)
	assert.Empty(t, session.History)
}

func TestCreateSessionRejectsUnknownLanguage(t *testing.T) {
	f := newFixture(testConfig())
	_, err := f.service.CreateSession(context.Background(), "caller-1", &dto.StartSessionRequest{Language: "fr"})
	assertKind(t, err, KindValidationError)
}

func TestCreateSessionCallerCap(t *testing.T) {
	f := newFixture(testConfig())
	f.start(t, "en")
	f.start(t, "en")

	_, err := f.service.CreateSession(context.Background(), "caller-1", &dto.StartSessionRequest{})
	assertKind(t, err, KindTooManySessions)

	// A different caller is unaffected.
	_, err = f.service.CreateSession(context.Background(), "caller-2", &dto.StartSessionRequest{})
	assert.NoError(t, err)
}

func TestSubmitChunkHappyPath(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"hello", " world"}
	sid := f.start(t, "en")

	res, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "audio-a", false))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.TranscriptDelta)
	assert.False(t, res.TurnComplete)

	res, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "audio-b", true))
	require.NoError(t, err)
	assert.Equal(t, " world", res.TranscriptDelta)
	assert.True(t, res.TurnComplete)

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	require.Len(t, session.History, 1)
	assert.Equal(t, entity.SpeakerCandidate, session.History[0].Speaker)
	assert.Equal(t, "hello world", session.History[0].Text)
	assert.Empty(t, session.Buffer)
	assert.Equal(t, 0, session.LastChunk) // numbering restarts next turn
}

func TestSubmitChunkRejectsStaleNumber(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"first", "second"}
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", false))
	require.NoError(t, err)
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "b", false))
	require.NoError(t, err)

	before, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)

	// Duplicate
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "b", false))
	assertKind(t, err, KindChunkSequenceError)

	// Gap
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 5, "c", false))
	assertKind(t, err, KindChunkSequenceError)

	after, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, before.Buffer, after.Buffer)
	assert.Equal(t, before.LastChunk, after.LastChunk)
	assert.Equal(t, before.History, after.History)
}

func TestSubmitChunkPayloadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxChunkBytes = 8
	f := newFixture(cfg)
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "way more than eight bytes", false))
	assertKind(t, err, KindPayloadTooLarge)
	assert.Equal(t, 0, f.transcriber.calls, "oversized payload must be rejected before any adapter call")
}

func TestSubmitChunkRejectsInvalidBase64(t *testing.T) {
	f := newFixture(testConfig())
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), &dto.StreamRequest{
		SessionId:   sid,
		StreamType:  dto.StreamTypeChunk,
		AudioData:   "%%% not base64 %%%",
		ChunkNumber: 1,
	})
	assertKind(t, err, KindValidationError)
}

func TestSubmitChunkTranscriptionRollback(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"kept"}
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", false))
	require.NoError(t, err)

	before, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)

	f.transcriber.err = errors.New("upstream 500")
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "b", false))
	assertKind(t, err, KindTranscriptionFailed)

	after, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, before.TurnState, after.TurnState)
	assert.Equal(t, before.Buffer, after.Buffer)
	assert.Equal(t, before.LastChunk, after.LastChunk)

	// The rejected chunk number is accepted on retry.
	f.transcriber.err = nil
	f.transcriber.deltas = []string{"", "retried"}
	res, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "b", false))
	require.NoError(t, err)
	assert.Equal(t, "retried", res.TranscriptDelta)
}

func TestEmptyFinalChunkIsTerminalMarker(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"only answer"}
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", false))
	require.NoError(t, err)

	calls := f.transcriber.calls
	res, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "", true))
	require.NoError(t, err)
	assert.True(t, res.TurnComplete)
	assert.Empty(t, res.TranscriptDelta)
	assert.Equal(t, calls, f.transcriber.calls, "terminal marker must not hit the transcriber")

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	require.Len(t, session.History, 1)
	assert.Equal(t, "only answer", session.History[0].Text)
}

func TestEmptyNonFinalChunkRejected(t *testing.T) {
	f := newFixture(testConfig())
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "", false))
	assertKind(t, err, KindValidationError)
}

func TestSessionExpiryIsLazyAndTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Timeout = 10 * time.Millisecond
	f := newFixture(cfg)
	sid := f.start(t, "en")

	time.Sleep(30 * time.Millisecond)

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", false))
	assertKind(t, err, KindSessionExpired)
	assert.Equal(t, 0, f.transcriber.calls)

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusExpired, session.Status)
	assert.Empty(t, session.Buffer, "no mutation from the rejected operation")

	// Terminal: still expired on the next call, never resurrected.
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", false))
	assertKind(t, err, KindSessionExpired)
}

func TestExpiredSessionsFreeTheCallerCap(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Timeout = 10 * time.Millisecond
	f := newFixture(cfg)

	first := f.start(t, "en")
	second := f.start(t, "en")

	time.Sleep(30 * time.Millisecond)

	// Lazy expiry fires on the next touch of each session.
	_, err := f.service.SubmitChunk(context.Background(), chunkReq(first, 1, "a", false))
	assertKind(t, err, KindSessionExpired)
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(second, 1, "a", false))
	assertKind(t, err, KindSessionExpired)

	count, err := f.repo.CallerSessionCount(context.Background(), "caller-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// The caller is back under the cap and may start over.
	_, err = f.service.CreateSession(context.Background(), "caller-1", &dto.StartSessionRequest{})
	assert.NoError(t, err)
}

func TestSessionLockReleasedWhenTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Timeout = 10 * time.Millisecond
	f := newFixture(cfg)
	svc := f.service.(*sessionService)

	closed := f.start(t, "en")
	require.NoError(t, f.service.EndSession(context.Background(), closed))
	_, held := svc.locks.Load(closed)
	assert.False(t, held, "closing a session must drop its mutex")

	expired := f.start(t, "en")
	time.Sleep(30 * time.Millisecond)
	_, err := f.service.SubmitChunk(context.Background(), chunkReq(expired, 1, "a", false))
	assertKind(t, err, KindSessionExpired)
	_, held = svc.locks.Load(expired)
	assert.False(t, held, "expiring a session must drop its mutex")
}

func TestLanguageRoundTrip(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"jawaban"}
	sid := f.start(t, "id")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", true))
	require.NoError(t, err)
	require.NoError(t, f.service.StreamQuestion(context.Background(), sid, func(dto.StreamEvent) error { return nil }))

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "id", session.Language)
}

func TestEndSessionIdempotent(t *testing.T) {
	f := newFixture(testConfig())
	sid := f.start(t, "en")

	require.NoError(t, f.service.EndSession(context.Background(), sid))

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusClosed, session.Status)

	// Second call and unknown id are both no-op successes.
	assert.NoError(t, f.service.EndSession(context.Background(), sid))
	assert.NoError(t, f.service.EndSession(context.Background(), "b4e0e3f0-0000-4000-8000-000000000000"))

	// Closed is terminal.
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", false))
	assertKind(t, err, KindSessionClosed)
}

func TestStreamQuestionCommitsAfterCompletion(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"my answer"}
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", true))
	require.NoError(t, err)

	var got []dto.StreamEvent
	err = f.service.StreamQuestion(context.Background(), sid, func(event dto.StreamEvent) error {
		got = append(got, event)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, dto.StreamEventText, got[0].Type)
	assert.Equal(t, "Bisa ", got[0].Content)
	assert.Equal(t, dto.StreamEventEnd, got[3].Type)

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	require.Len(t, session.History, 2)
	assert.Equal(t, entity.SpeakerInterviewer, session.History[1].Speaker)
	assert.Equal(t, "Bisa ceritakan tentang diri Anda?", session.History[1].Text)
	assert.Equal(t, entity.TurnStateAwaitingChunk, session.TurnState)
}

func TestStreamQuestionRollbackOnMidStreamFailure(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"my answer"}
	f.generator.failAfter = 2
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", true))
	require.NoError(t, err)

	before, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)

	tokens := 0
	err = f.service.StreamQuestion(context.Background(), sid, func(event dto.StreamEvent) error {
		tokens++
		return nil
	})
	assertKind(t, err, KindGenerationFailed)
	assert.Equal(t, 2, tokens, "partial tokens were forwarded before the failure")

	after, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, before.History, after.History, "nothing partial is committed")
	assert.Equal(t, before.TurnState, after.TurnState)
}

func TestStreamQuestionCancelledByConsumer(t *testing.T) {
	f := newFixture(testConfig())
	sid := f.start(t, "en")

	before, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)

	stop := errors.New("consumer disconnected")
	err = f.service.StreamQuestion(context.Background(), sid, func(dto.StreamEvent) error {
		return stop
	})
	assertKind(t, err, KindGenerationFailed)

	after, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, before.History, after.History)
}

func TestStreamQuestionSynthesizesAfterCommit(t *testing.T) {
	cfg := testConfig()
	cfg.Ai.SynthesisEnabled = true
	f := newFixture(cfg)
	f.synthesizer.chunks = []string{"QUERfYXVkaW8x", "QUFfYXVkaW8y"}
	sid := f.start(t, "en")

	var types []string
	err := f.service.StreamQuestion(context.Background(), sid, func(event dto.StreamEvent) error {
		types = append(types, event.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"text", "text", "text", "audio", "audio", "end"}, types)
}

func TestStreamQuestionSynthesisFailureKeepsQuestion(t *testing.T) {
	cfg := testConfig()
	cfg.Ai.SynthesisEnabled = true
	f := newFixture(cfg)
	f.synthesizer.err = errors.New("voice upstream down")
	sid := f.start(t, "en")

	var types []string
	err := f.service.StreamQuestion(context.Background(), sid, func(event dto.StreamEvent) error {
		types = append(types, event.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, types, dto.StreamEventError)
	assert.Equal(t, dto.StreamEventEnd, types[len(types)-1])

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	require.Len(t, session.History, 1, "the committed question survives a synthesis failure")
}

func TestHistoryLimitClosesSession(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxHistoryEntries = 1
	f := newFixture(cfg)
	f.transcriber.deltas = []string{"final answer"}
	sid := f.start(t, "en")

	res, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", true))
	require.NoError(t, err)
	assert.True(t, res.TurnComplete)

	session, err := f.repo.Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusClosed, session.Status)

	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "b", false))
	assertKind(t, err, KindSessionClosed)
}

func TestChunkNumberingRestartsEachTurn(t *testing.T) {
	f := newFixture(testConfig())
	f.transcriber.deltas = []string{"turn one", "turn two"}
	sid := f.start(t, "en")

	_, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "a", true))
	require.NoError(t, err)

	// Old numbering is gone; the next turn starts at 1 again.
	_, err = f.service.SubmitChunk(context.Background(), chunkReq(sid, 2, "b", false))
	assertKind(t, err, KindChunkSequenceError)

	res, err := f.service.SubmitChunk(context.Background(), chunkReq(sid, 1, "b", false))
	require.NoError(t, err)
	assert.Equal(t, "turn two", res.TranscriptDelta)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	f := newFixture(testConfig())
	_, err := f.service.SubmitChunk(context.Background(), chunkReq("b4e0e3f0-0000-4000-8000-000000000000", 1, "a", false))
	assertKind(t, err, KindSessionNotFound)
}

func TestHealthReflectsStore(t *testing.T) {
	f := newFixture(testConfig())
	res := f.service.Health(context.Background())
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "ok", res.Store)
}

package service

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"ai-interview-be/internal/pkg/serverutils"
)

// Machine-readable error kinds surfaced to clients. Exported so controller
// and integration tests can assert on them.
const (
	KindSessionNotFound     = "SESSION_NOT_FOUND"
	KindSessionExpired      = "SESSION_EXPIRED"
	KindSessionClosed       = "SESSION_CLOSED"
	KindChunkSequenceError  = "CHUNK_SEQUENCE_ERROR"
	KindPayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	KindTooManySessions     = "TOO_MANY_SESSIONS"
	KindTranscriptionFailed = "TRANSCRIPTION_FAILED"
	KindGenerationFailed    = "GENERATION_FAILED"
	KindSynthesisFailed     = "SYNTHESIS_FAILED"
	KindStoreUnavailable    = "STORE_UNAVAILABLE"
	KindValidationError     = "VALIDATION_ERROR"
	KindConflict            = "CONFLICT"
)

func errSessionNotFound() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusNotFound, KindSessionNotFound,
		"session does not exist or has been evicted")
}

func errSessionExpired() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusGone, KindSessionExpired,
		"session has expired, start a new session")
}

func errSessionClosed() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusGone, KindSessionClosed,
		"session is closed, start a new session")
}

func errChunkSequence(expected, got int) *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusConflict, KindChunkSequenceError,
		fmt.Sprintf("out-of-order or duplicate chunk number: expected %d, got %d", expected, got))
}

func errPayloadTooLarge() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusRequestEntityTooLarge, KindPayloadTooLarge,
		"audio chunk exceeds the configured size limit")
}

func errTooManySessions() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusTooManyRequests, KindTooManySessions,
		"maximum concurrent sessions reached for this caller")
}

func errTranscriptionFailed() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusBadGateway, KindTranscriptionFailed,
		"transcription failed, the chunk was not accepted and may be retried")
}

func errGenerationFailed() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusBadGateway, KindGenerationFailed,
		"question generation failed, nothing was committed and the request may be retried")
}

func errStoreUnavailable() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusServiceUnavailable, KindStoreUnavailable,
		"session store is unreachable")
}

func errValidation(message string) *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusBadRequest, KindValidationError, message)
}

func errConflict() *serverutils.ApiError {
	return serverutils.NewApiError(fiber.StatusConflict, KindConflict,
		"a concurrent request modified this session, retry")
}

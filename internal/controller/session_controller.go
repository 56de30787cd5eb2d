package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ai-interview-be/internal/dto"
	"ai-interview-be/internal/pkg/serverutils"
	"ai-interview-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	StartSession(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	EndSession(ctx *fiber.Ctx) error
}

type sessionController struct {
	service   service.ISessionService
	jwtSecret string
}

func NewSessionController(sessionService service.ISessionService, jwtSecret string) ISessionController {
	return &sessionController{
		service:   sessionService,
		jwtSecret: jwtSecret,
	}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/interview/v1")
	h.Use(serverutils.CallerMiddleware(c.jwtSecret))
	h.Post("start-session", c.StartSession)
	h.Post("stream", c.Stream)
	h.Post("end-session", c.EndSession)
}

func (c *sessionController) StartSession(ctx *fiber.Ctx) error {
	callerId := ctx.Locals("caller_id").(string)

	var req dto.StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreateSession(ctx.Context(), callerId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success start session", res))
}

func (c *sessionController) Stream(ctx *fiber.Ctx) error {
	var req dto.StreamRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if req.StreamType == dto.StreamTypeChunk {
		res, err := c.service.SubmitChunk(ctx.Context(), &req)
		if err != nil {
			return err
		}
		return ctx.JSON(serverutils.SuccessResponse("Success process chunk", res))
	}

	return c.streamQuestion(ctx, req.SessionId)
}

// streamQuestion bridges the session service onto an SSE response. The
// service runs in its own goroutine feeding an unbuffered channel, so a
// failure before the first event still maps to a plain JSON error while
// mid-stream failures become in-band error frames.
func (c *sessionController) streamQuestion(ctx *fiber.Ctx, sessionId string) error {
	streamCtx, cancel := context.WithCancel(context.Background())

	eventCh := make(chan dto.StreamEvent)
	errCh := make(chan error, 1)

	go func() {
		err := c.service.StreamQuestion(streamCtx, sessionId, func(event dto.StreamEvent) error {
			select {
			case eventCh <- event:
				return nil
			case <-streamCtx.Done():
				return streamCtx.Err()
			}
		})
		errCh <- err
		close(eventCh)
	}()

	select {
	case err := <-errCh:
		cancel()
		return err

	case first, ok := <-eventCh:
		if !ok {
			cancel()
			return <-errCh
		}

		ctx.Set("Content-Type", "text/event-stream")
		ctx.Set("Cache-Control", "no-cache")
		ctx.Set("Connection", "keep-alive")
		ctx.Set("X-Accel-Buffering", "no")

		ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			// Cancelling aborts the in-flight adapter call when the client
			// disconnects mid-stream.
			defer cancel()

			if !writeStreamEvent(w, first) {
				return
			}
			for event := range eventCh {
				if !writeStreamEvent(w, event) {
					return
				}
			}

			if err := <-errCh; err != nil {
				kind := service.KindGenerationFailed
				var apiErr *serverutils.ApiError
				if errors.As(err, &apiErr) {
					kind = apiErr.Kind
				}
				writeStreamEvent(w, dto.StreamEvent{Type: dto.StreamEventError, Content: kind})
			}
		}))
		return nil
	}
}

// writeStreamEvent writes one SSE frame; a failed flush means the client is
// gone.
func writeStreamEvent(w *bufio.Writer, event dto.StreamEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	return w.Flush() == nil
}

func (c *sessionController) EndSession(ctx *fiber.Ctx) error {
	var req dto.EndSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.EndSession(ctx.Context(), req.SessionId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success end session", nil))
}

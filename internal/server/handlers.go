package server

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"subflow/internal/history"
	"subflow/internal/logging"
	"subflow/internal/pipeline"
	"subflow/internal/services"
	"subflow/internal/subtitles"
)

type errorResponse struct {
	Error string        `json:"error"`
	Kind  services.Kind `json:"kind,omitempty"`
}

type runCreated struct {
	ID string `json:"id"`
}

// RunView is the JSON shape of a run.
type RunView struct {
	ID        string              `json:"id"`
	MediaPath string              `json:"mediaPath"`
	Stage     pipeline.Stage      `json:"stage"`
	Percent   float64             `json:"percent"`
	Segments  []subtitles.Segment `json:"segments,omitempty"`
	Result    *pipeline.Result    `json:"result,omitempty"`
}

type eventsResponse struct {
	Events []pipeline.Event `json:"events"`
	Next   int64            `json:"next"`
	Closed bool             `json:"closed"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"active": len(s.opts.Orchestrator.Active()),
	})
}

func (s *Server) handleCreateRun(c *fiber.Ctx) error {
	var req pipeline.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid request body", Kind: services.KindValidation})
	}
	if req.MediaPath == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "mediaPath is required", Kind: services.KindValidation})
	}

	bus := pipeline.NewBus(s.opts.EventBuffer)
	// Runs outlive the request; only DELETE or shutdown cancels them.
	run, err := s.opts.Orchestrator.Start(context.Background(), req, bus)
	if err != nil {
		kind := services.KindOf(err)
		return c.Status(statusFor(kind)).JSON(errorResponse{Error: err.Error(), Kind: kind})
	}
	s.register(run, bus)
	s.logger.Info("run submitted",
		logging.String(logging.FieldRunID, run.ID),
		logging.String(logging.FieldMedia, run.MediaPath))
	return c.Status(fiber.StatusAccepted).JSON(runCreated{ID: run.ID})
}

func (s *Server) handleListRuns(c *fiber.Ctx) error {
	sessions := s.list()
	views := make([]RunView, 0, len(sessions))
	for _, sess := range sessions {
		view := viewOf(sess.run)
		view.Segments = nil
		views = append(views, view)
	}
	return c.JSON(fiber.Map{"runs": views})
}

func (s *Server) handleGetRun(c *fiber.Ctx) error {
	sess, ok := s.session(c.Params("id"))
	if !ok {
		return notFound(c)
	}
	return c.JSON(viewOf(sess.run))
}

func (s *Server) handleCancelRun(c *fiber.Ctx) error {
	sess, ok := s.session(c.Params("id"))
	if !ok {
		return notFound(c)
	}
	sess.run.Cancel()
	stage, _ := sess.run.State()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": sess.run.ID, "stage": stage})
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	sess, ok := s.session(c.Params("id"))
	if !ok {
		return notFound(c)
	}
	since, err := strconv.ParseInt(c.Query("since", "0"), 10, 64)
	if err != nil || since < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid since", Kind: services.KindValidation})
	}
	events := sess.bus.Since(since)
	next := since
	if n := len(events); n > 0 {
		next = events[n-1].Seq
	}
	return c.JSON(eventsResponse{Events: events, Next: next, Closed: sess.bus.Closed()})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.opts.History == nil {
		return c.JSON(fiber.Map{"runs": []history.Entry{}})
	}
	entries, err := s.opts.History.List(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(fiber.Map{"runs": entries})
}

func viewOf(run *pipeline.Run) RunView {
	stage, percent := run.State()
	view := RunView{
		ID:        run.ID,
		MediaPath: run.MediaPath,
		Stage:     stage,
		Percent:   percent,
		Segments:  run.Segments(),
	}
	if stage.Terminal() {
		select {
		case <-run.Done():
			result, _ := run.Wait()
			result.Segments = nil
			view.Result = &result
		default:
		}
	}
	return view
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "run not found"})
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindBusy:
		return fiber.StatusConflict
	case services.KindInputNotFound:
		return fiber.StatusNotFound
	case services.KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

var errSessionGone = errors.New("run no longer tracked")

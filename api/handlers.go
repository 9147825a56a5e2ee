package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"hackboard/board"
	"hackboard/domain"
	"hackboard/stream"
)

const maxBodySize = 64 << 10

// TaskSource loads project tasks and members and writes task updates back.
type TaskSource interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchMembers(ctx context.Context, projectID string) ([]domain.Member, error)
	PatchTask(ctx context.Context, projectID, taskID string, patch domain.TaskPatch) error
}

// invalidator is implemented by caching sources.
type invalidator interface {
	Invalidate(ctx context.Context, projectID string)
}

// Generator triggers the backend's one-time backlog generation.
type Generator interface {
	TriggerGeneration(ctx context.Context, projectID string) error
}

// GenerationGuard remembers which projects were already generated.
type GenerationGuard interface {
	Claim(ctx context.Context, projectID string) (bool, error)
	Release(ctx context.Context, projectID string) error
}

// Deps are the collaborators of the board API. Source and Auth are required.
type Deps struct {
	Source    TaskSource
	Auth      Authenticator
	Generator Generator
	Guard     GenerationGuard
	Events    EventSink
	Relay     *stream.Relay
	Logger    *log.Logger
	Publish   PublishOptions
	Health    func(ctx context.Context) error
}

// Service hosts board sessions behind the HTTP API.
type Service struct {
	deps     Deps
	logger   *log.Logger
	relay    *stream.Relay
	sessions *registry
	events   *publisher
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) *Service {
	if deps.Source == nil {
		panic("api.Register: task source is nil")
	}
	if deps.Auth == nil {
		panic("api.Register: authenticator is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	relay := deps.Relay
	if relay == nil {
		relay = stream.NewRelay(stream.NewHub(0), nil, "", logger)
	}
	s := &Service{
		deps:     deps,
		logger:   logger,
		relay:    relay,
		sessions: newRegistry(),
	}
	if deps.Events != nil {
		s.events = newPublisher(deps.Events, logger, deps.Publish)
	}

	e.GET("/healthz", s.healthz)
	g := e.Group("/api/projects/:projectID")
	g.GET("/boards/:kind", s.getBoard)
	g.DELETE("/boards/:kind", s.deleteBoard)
	g.POST("/boards/:kind/refresh", s.refreshBoard)
	g.POST("/boards/:kind/drag", s.startDrag)
	g.POST("/boards/:kind/drop", s.drop)
	g.POST("/boards/:kind/dragend", s.endDrag)
	g.POST("/boards/:kind/tasks/:taskID/complete", s.complete)
	g.GET("/boards/:kind/stream", s.streamBoard)
	g.GET("/tasks/:taskID", s.getTask)
	g.POST("/generate", s.generate)
	return s
}

// Close stops the event publisher after draining queued events.
func (s *Service) Close() {
	if s.events != nil {
		s.events.Close()
	}
}

type target struct {
	userID    string
	projectID string
	kind      board.Kind
	key       string
}

// resolve authenticates the request and identifies the board it addresses.
func (s *Service) resolve(c echo.Context, allowQuery bool) (target, int, error) {
	userID, err := s.deps.Auth.UserIDFromAuthHeader(authHeader(c, allowQuery))
	if err != nil {
		return target{}, http.StatusUnauthorized, err
	}
	kind, err := parseKind(c.Param("kind"))
	if err != nil {
		return target{}, http.StatusBadRequest, err
	}
	projectID := c.Param("projectID")
	return target{
		userID:    userID,
		projectID: projectID,
		kind:      kind,
		key:       sessionKey(userID, projectID, kind),
	}, 0, nil
}

// mount returns the session of t, loading the board when it is not open yet.
func (s *Service) mount(ctx context.Context, t target) (*session, bool, error) {
	if existing := s.sessions.get(t.key); existing != nil {
		return existing, false, nil
	}
	b, err := loadBoard(ctx, s.deps.Source, t.projectID, t.kind)
	if err != nil {
		return nil, false, err
	}
	sess := &session{
		key:       t.key,
		userID:    t.userID,
		projectID: t.projectID,
		kind:      t.kind,
		created:   time.Now(),
	}
	sess.ctrl = board.NewController(b, s.updater(t.projectID), board.Options{
		Logger:     s.logger,
		Notifier:   &streamNotifier{relay: s.relay, topic: t.key, logger: s.logger},
		OnChange:   func(b *board.Board) { s.publishBoard(sess, b) },
		OnResolved: func(r board.CycleReport) { s.resolved(sess, r) },
	})
	return s.sessions.add(sess), true, nil
}

// lookup returns an open session; boards must be mounted before gestures.
func (s *Service) lookup(c echo.Context) (*session, int, error) {
	t, status, err := s.resolve(c, false)
	if err != nil {
		return nil, status, err
	}
	sess := s.sessions.get(t.key)
	if sess == nil {
		return nil, http.StatusNotFound, errors.New("board not mounted")
	}
	return sess, 0, nil
}

func (s *Service) updater(projectID string) board.Updater {
	return board.UpdaterFunc(func(ctx context.Context, taskID string, patch domain.TaskPatch) error {
		return s.deps.Source.PatchTask(ctx, projectID, taskID, patch)
	})
}

// reload refetches the session's board and hands it to the controller.
func (s *Service) reload(ctx context.Context, sess *session) (bool, error) {
	if inv, ok := s.deps.Source.(invalidator); ok {
		inv.Invalidate(ctx, sess.projectID)
	}
	b, err := loadBoard(ctx, s.deps.Source, sess.projectID, sess.kind)
	if err != nil {
		return false, err
	}
	return sess.ctrl.Replace(b), nil
}

func (s *Service) resolved(sess *session, r board.CycleReport) {
	logCycle(s.logger, sess, r)
	if s.events == nil {
		return
	}
	ev, err := cycleEvent(sess, r)
	if err != nil {
		s.logger.WithError(err).Error("build board event")
		return
	}
	s.events.Publish(ev)
}

func (s *Service) publishBoard(sess *session, b *board.Board) {
	data, err := sonic.Marshal(newBoardResponse(sess, b))
	if err != nil {
		s.logger.WithError(err).Error("marshal board")
		return
	}
	if err := s.relay.Publish(context.Background(), sess.key, stream.Event{Name: stream.EventBoard, Data: data}); err != nil {
		s.logger.WithError(err).WithField("topic", sess.key).Error("publish board")
	}
}

type boardResponse struct {
	board.View
	State    string `json:"state"`
	Dragging string `json:"dragging,omitempty"`
}

func newBoardResponse(sess *session, b *board.Board) boardResponse {
	if b == nil {
		b = sess.ctrl.Board()
	}
	dragging, _ := sess.ctrl.Drag().Current()
	return boardResponse{View: b.View(), State: sess.ctrl.State().String(), Dragging: dragging}
}

type cycleResponse struct {
	Outcome   string        `json:"outcome"`
	Board     boardResponse `json:"board"`
	Task      *domain.Task  `json:"task,omitempty"`
	Message   string        `json:"message,omitempty"`
	Refreshed bool          `json:"refreshed,omitempty"`
}

type refreshResponse struct {
	Applied bool          `json:"applied"`
	Board   boardResponse `json:"board"`
}

func loadStatus(err error) int {
	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// decodeBody reads a small JSON body. An empty body leaves v untouched.
func decodeBody(c echo.Context, v any) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Service) healthz(c echo.Context) error {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request().Context()); err != nil {
			s.logger.WithError(err).Warn("health check failed")
			return c.String(http.StatusServiceUnavailable, "unhealthy")
		}
	}
	return c.NoContent(http.StatusOK)
}

func (s *Service) getBoard(c echo.Context) (err error) {
	metrics := newBoardRequestMetrics(s.logger, "/api/projects/:projectID/boards/:kind")
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	t, status, resolveErr := s.resolve(c, false)
	metrics.ObserveAuth(time.Since(authStart))
	if resolveErr != nil {
		metrics.SetErrorStage("resolve")
		return c.String(status, resolveErr.Error())
	}
	fetchStart := time.Now()
	sess, loaded, mountErr := s.mount(c.Request().Context(), t)
	if loaded {
		metrics.ObserveFetch(time.Since(fetchStart))
	}
	if mountErr != nil {
		metrics.SetErrorStage("fetch")
		c.Logger().Error(mountErr)
		return c.String(loadStatus(mountErr), "failed to load board")
	}
	resp := newBoardResponse(sess, nil)
	metrics.SetTasks(sess.ctrl.Board().Len())
	return c.JSON(http.StatusOK, resp)
}

func (s *Service) deleteBoard(c echo.Context) error {
	t, status, err := s.resolve(c, false)
	if err != nil {
		return c.String(status, err.Error())
	}
	if !s.sessions.remove(t.key) {
		return c.String(http.StatusNotFound, "board not mounted")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Service) refreshBoard(c echo.Context) error {
	t, status, err := s.resolve(c, false)
	if err != nil {
		return c.String(status, err.Error())
	}
	ctx := c.Request().Context()
	sess, loaded, err := s.mount(ctx, t)
	if err != nil {
		c.Logger().Error(err)
		return c.String(loadStatus(err), "failed to load board")
	}
	applied := true
	if !loaded {
		applied, err = s.reload(ctx, sess)
		if err != nil {
			c.Logger().Error(err)
			return c.String(loadStatus(err), "failed to refresh board")
		}
	}
	return c.JSON(http.StatusOK, refreshResponse{Applied: applied, Board: newBoardResponse(sess, nil)})
}

func (s *Service) startDrag(c echo.Context) error {
	sess, status, err := s.lookup(c)
	if err != nil {
		return c.String(status, err.Error())
	}
	var body struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeBody(c, &body); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	if err := sess.ctrl.StartDrag(body.TaskID); err != nil {
		switch {
		case errors.Is(err, board.ErrNotDraggable):
			return c.String(http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrTaskNotFound):
			return c.String(http.StatusNotFound, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, newBoardResponse(sess, nil))
}

func (s *Service) endDrag(c echo.Context) error {
	sess, status, err := s.lookup(c)
	if err != nil {
		return c.String(status, err.Error())
	}
	sess.ctrl.EndDrag()
	return c.NoContent(http.StatusNoContent)
}

func (s *Service) drop(c echo.Context) error {
	sess, status, err := s.lookup(c)
	if err != nil {
		return c.String(status, err.Error())
	}
	var body struct {
		Bucket string `json:"bucket"`
	}
	if err := decodeBody(c, &body); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	// The update outlives the caller: a dropped connection must not roll
	// back a change the backend may already have stored.
	res := sess.ctrl.Drop(context.WithoutCancel(c.Request().Context()), body.Bucket)
	return s.respondCycle(c, sess, res, sess.ctrl.Board().Strategy().FailureMessage())
}

func (s *Service) complete(c echo.Context) error {
	sess, status, err := s.lookup(c)
	if err != nil {
		return c.String(status, err.Error())
	}
	var body struct {
		Completed *bool `json:"completed"`
	}
	if err := decodeBody(c, &body); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	ctx := context.WithoutCancel(c.Request().Context())
	taskID := c.Param("taskID")
	var res board.CycleResult
	if body.Completed == nil {
		res, err = sess.ctrl.ToggleCompleted(ctx, taskID)
	} else {
		res, err = sess.ctrl.SetCompleted(ctx, taskID, *body.Completed)
	}
	if errors.Is(err, domain.ErrTaskNotFound) {
		return c.String(http.StatusNotFound, "task not found")
	}
	return s.respondCycle(c, sess, res, "failed to update task completion")
}

// respondCycle writes the outcome of a cycle. A rolled back cycle answers
// 409; a version conflict also refetches the board before answering.
func (s *Service) respondCycle(c echo.Context, sess *session, res board.CycleResult, failureMsg string) error {
	resp := cycleResponse{Outcome: res.Outcome.String()}
	if res.Task.ID != "" {
		task := res.Task
		resp.Task = &task
	}
	if res.Outcome != board.RolledBack {
		resp.Board = newBoardResponse(sess, res.Board)
		return c.JSON(http.StatusOK, resp)
	}
	resp.Message = failureMsg
	if res.Stale {
		applied, err := s.reload(c.Request().Context(), sess)
		if err != nil {
			s.logger.WithError(err).WithField("board", sess.key).Warn("refetch after version conflict failed")
		}
		resp.Refreshed = applied
	}
	resp.Board = newBoardResponse(sess, nil)
	return c.JSON(http.StatusConflict, resp)
}

func (s *Service) getTask(c echo.Context) error {
	userID, err := s.deps.Auth.UserIDFromAuthHeader(authHeader(c, false))
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	sessions := s.sessions.forProject(userID, c.Param("projectID"))
	task, ok := findTask(sessions, c.Param("taskID"))
	if !ok {
		return c.String(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Service) streamBoard(c echo.Context) error {
	t, status, err := s.resolve(c, true)
	if err != nil {
		return c.String(status, err.Error())
	}
	ctx := c.Request().Context()
	sess, _, err := s.mount(ctx, t)
	if err != nil {
		c.Logger().Error(err)
		return c.String(loadStatus(err), "failed to load board")
	}
	events, unsubscribe := s.relay.Hub().Subscribe(t.key)
	defer unsubscribe()

	data, err := sonic.Marshal(newBoardResponse(sess, nil))
	if err != nil {
		c.Logger().Error(err)
		return err
	}
	return stream.Serve(c, events, stream.Event{Name: stream.EventBoard, Data: data})
}

type generateResponse struct {
	Status string `json:"status"`
}

func (s *Service) generate(c echo.Context) error {
	if _, err := s.deps.Auth.UserIDFromAuthHeader(authHeader(c, false)); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if s.deps.Generator == nil {
		return c.String(http.StatusNotImplemented, "generation not configured")
	}
	ctx := c.Request().Context()
	projectID := c.Param("projectID")
	if s.deps.Guard != nil {
		claimed, err := s.deps.Guard.Claim(ctx, projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to check generation state")
		}
		if !claimed {
			return c.JSON(http.StatusOK, generateResponse{Status: "already_generated"})
		}
	}
	if err := s.deps.Generator.TriggerGeneration(ctx, projectID); err != nil {
		s.logger.WithError(err).WithField("project", projectID).Error("trigger generation failed")
		if s.deps.Guard != nil {
			if rerr := s.deps.Guard.Release(context.WithoutCancel(ctx), projectID); rerr != nil {
				s.logger.WithError(rerr).WithField("project", projectID).Error("release generation flag failed")
			}
		}
		return c.String(http.StatusBadGateway, "failed to trigger generation")
	}
	return c.JSON(http.StatusAccepted, generateResponse{Status: "triggered"})
}

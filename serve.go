package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qianlnk/onenight/config"
	"github.com/qianlnk/onenight/logger"
	"github.com/qianlnk/onenight/models"
	"github.com/qianlnk/onenight/monitor"
	"github.com/qianlnk/onenight/services"
	"github.com/qianlnk/onenight/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve games over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

// backend is everything a server or simulation needs.
type backend struct {
	manager    *services.GameManager
	controller *services.GameController
	ws         *services.WebSocketManager
	metrics    *monitor.Metrics
	closers    []func() error
}

func (b *backend) Close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			logger.Log.Warnw("failed to close backend", "err", err)
		}
	}
}

// newBackend wires the store, locker, archive, metrics and observers from cfg.
func newBackend(cfg *config.Config) (*backend, error) {
	b := &backend{
		ws:      services.NewWebSocketManager(),
		metrics: monitor.NewMetrics("onenight"),
	}

	var snapshots store.SnapshotStore = store.NewMemoryStore()
	opts := []services.ManagerOption{
		services.WithTTL(cfg.Redis.TTL),
		services.WithDefaultMode(models.GameMode(cfg.Game.Mode)),
		services.WithPublisher(b.ws),
		services.WithManagerMetrics(b.metrics),
		services.WithSessionOptions(
			services.WithDayTurns(cfg.Game.DayMinTurns, cfg.Game.DayMaxTurns),
			services.WithBeliefConcurrency(cfg.Game.BeliefConcurrency),
		),
	}

	if cfg.Redis.Address != "" {
		rs := store.NewRedisStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, store.WithPrefix(cfg.Redis.Prefix))
		snapshots = rs
		b.closers = append(b.closers, rs.Close)
		if cfg.Redis.Lock {
			opts = append(opts, services.WithLocker(store.NewRedisLocker(rs.Client(), cfg.Redis.Prefix)))
		}
		logger.Log.Infow("using redis snapshot store", "address", cfg.Redis.Address, "lock", cfg.Redis.Lock)
	}

	if cfg.Archive.PostgresDSN != "" {
		archive, err := store.NewArchive(cfg.Archive.PostgresDSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, archive.Close)
		opts = append(opts, services.WithArchive(archive))
	}

	if cfg.Game.DefinitionFile != "" {
		def, err := services.LoadDefinitionFile(cfg.Game.DefinitionFile)
		if err != nil {
			b.Close()
			return nil, err
		}
		opts = append(opts, services.WithDefinition(def))
	}

	b.manager = services.NewGameManager(snapshots, opts...)
	b.controller = services.NewGameController(b.manager, cfg.Game.StepInterval, cfg.Game.MaxSteps)
	return b, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	b, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddress,
		Handler: newRouter(b),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infow("server started", "address", cfg.Server.HTTPAddress)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Log.Infow("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newRouter(b *backend) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	h := &handler{backend: b}
	r.GET("/ws", h.observe)
	r.GET("/metrics", gin.WrapH(b.metrics.Handler()))

	api := r.Group("/api")
	{
		api.POST("/games", h.createGame)
		api.GET("/games/:id", h.getGame)
		api.DELETE("/games/:id", h.deleteGame)
		api.GET("/games/:id/players/:player", h.getPlayer)
		api.POST("/games/:id/step", h.step)
		api.POST("/games/:id/advance", h.advance)
		api.POST("/games/:id/run", h.run)
		api.POST("/games/:id/speech", h.speech)
		api.GET("/archive/:id", h.archived)
	}
	return r
}

type handler struct {
	*backend
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, services.ErrUnknownPlayer):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoArchive):
		return http.StatusNotImplemented
	case errors.Is(err, services.ErrInvalidPlayers), errors.Is(err, services.ErrUnknownMode),
		errors.Is(err, services.ErrInvalidDefinition):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrGameFinished), errors.Is(err, services.ErrNotDiscussing),
		errors.Is(err, services.ErrStepLimit):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *handler) createGame(c *gin.Context) {
	var req services.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, world, err := h.manager.CreateGame(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "world": world})
}

func (h *handler) getGame(c *gin.Context) {
	world, err := h.manager.World(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, world)
}

func (h *handler) deleteGame(c *gin.Context) {
	if err := h.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) getPlayer(c *gin.Context) {
	view, err := h.manager.PlayerView(c.Request.Context(), c.Param("id"), c.Param("player"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) archived(c *gin.Context) {
	result, err := h.manager.Archived(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) step(c *gin.Context) {
	report, err := h.manager.Step(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) advance(c *gin.Context) {
	reports, err := h.controller.AdvancePhase(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"steps": reports})
}

func (h *handler) run(c *gin.Context) {
	result, steps, err := h.controller.RunToCompletion(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "steps": steps})
}

func (h *handler) speech(c *gin.Context) {
	var req struct {
		Player    string `json:"player" binding:"required"`
		Text      string `json:"text" binding:"required"`
		Addressee string `json:"addressee"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.InjectSpeech(c.Request.Context(), c.Param("id"), req.Player, req.Text, req.Addressee); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *handler) observe(c *gin.Context) {
	gameID := c.Query("game")
	if gameID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing game"})
		return
	}
	if _, err := h.manager.World(c.Request.Context(), gameID); err != nil {
		fail(c, err)
		return
	}
	if err := h.ws.Handle(c.Writer, c.Request, gameID); err != nil {
		logger.Log.Warnw("websocket upgrade failed", "game", gameID, "err", err)
	}
}

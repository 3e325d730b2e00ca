package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suchimauz/quiet-hours-engine/internal/config"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/in"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/suchimauz/quiet-hours-engine/internal/utils"
)

type Dispatcher interface {
	Do(ctx context.Context, fn func()) error
}

type RuleReader interface {
	Rules() []domain.Rule
}

// RuleController - слой представления. Правки уходят в хранилище
// намерениями через шину, будильник и состояние синхронизации
// берутся из событий.
type RuleController struct {
	bus    *eventbus.Bus
	loop   Dispatcher
	rules  RuleReader
	sync   in.SyncBridgeUseCase
	cfg    *config.Config
	logger out.LoggerPort

	mu    sync.RWMutex
	alarm domain.AlarmInfo
	subs  []*eventbus.Subscription
}

func NewRuleController(
	bus *eventbus.Bus,
	loop Dispatcher,
	rules RuleReader,
	syncBridge in.SyncBridgeUseCase,
	cfg *config.Config,
	logger out.LoggerPort,
) *RuleController {
	c := &RuleController{
		bus:    bus,
		loop:   loop,
		rules:  rules,
		sync:   syncBridge,
		cfg:    cfg,
		logger: logger.WithModule("RuleController"),
	}

	c.subs = append(c.subs,
		eventbus.On(bus, domain.TopicAlarmInfo, func(info domain.AlarmInfo) error {
			c.mu.Lock()
			c.alarm = info
			c.mu.Unlock()
			return nil
		}),
		eventbus.On(bus, domain.TopicSyncState, func(status domain.SyncStatus) error {
			if status.State == domain.SyncStateDisconnected {
				c.logger.Warn("http.sync.disconnected", out.LogFields{
					"error": status.LastError,
				})
			}
			return nil
		}),
	)
	return c
}

func (c *RuleController) Close() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
}

func (c *RuleController) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(c.basicAuth())
	{
		api.GET("/rules", c.listRules)
		api.POST("/rules", c.addDraft)
		api.PUT("/rules/:serial", c.saveRule)
		api.POST("/rules/:serial/edit", c.beginEdit)
		api.DELETE("/rules/:serial", c.removeRule)

		api.GET("/alarm", c.getAlarm)
		api.GET("/sync", c.getSync)
		api.POST("/sync/startup", c.resync)
	}
}

type RuleResponse struct {
	Serial   int              `json:"serial"`
	Days     []domain.Weekday `json:"days"`
	Interval int              `json:"interval"`
	From     int              `json:"from"`
	To       int              `json:"to"`
	Saved    bool             `json:"saved"`
}

type AlarmResponse struct {
	Next      string        `json:"next"`
	Prev      string        `json:"prev"`
	NextAlarm *domain.Alarm `json:"nextAlarm"`
	PrevAlarm *domain.Alarm `json:"prevAlarm"`
}

type ErrorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	ConflictSerial int    `json:"conflictSerial,omitempty"`
}

func newRuleResponse(rule domain.Rule) RuleResponse {
	days := rule.Days
	if days == nil {
		days = []domain.Weekday{}
	}
	return RuleResponse{
		Serial:   rule.Serial,
		Days:     days,
		Interval: rule.Interval,
		From:     rule.From,
		To:       rule.To,
		Saved:    rule.Saved,
	}
}

func (c *RuleController) listRules(ctx *gin.Context) {
	var rules []domain.Rule
	if err := c.loop.Do(ctx.Request.Context(), func() { rules = c.rules.Rules() }); err != nil {
		c.fail(ctx, err)
		return
	}

	resp := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, newRuleResponse(rule))
	}
	ctx.JSON(http.StatusOK, gin.H{"rules": resp})
}

func (c *RuleController) addDraft(ctx *gin.Context) {
	intent := &domain.DraftIntent{}
	if err := c.publish(ctx, domain.TopicDraftRequested, intent); err != nil {
		c.fail(ctx, err)
		return
	}
	if intent.Err != nil {
		c.fail(ctx, intent.Err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"rule": newRuleResponse(intent.Rule)})
}

func (c *RuleController) saveRule(ctx *gin.Context) {
	serial, ok := c.serialParam(ctx)
	if !ok {
		return
	}

	var fields domain.RuleFields
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	intent := &domain.SaveIntent{Serial: serial, Fields: fields}
	if err := c.publish(ctx, domain.TopicSaveRequested, intent); err != nil {
		c.fail(ctx, err)
		return
	}
	if intent.Err != nil {
		c.fail(ctx, intent.Err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"rule": newRuleResponse(intent.Rule)})
}

func (c *RuleController) beginEdit(ctx *gin.Context) {
	serial, ok := c.serialParam(ctx)
	if !ok {
		return
	}

	intent := &domain.EditIntent{Serial: serial}
	if err := c.publish(ctx, domain.TopicEditRequested, intent); err != nil {
		c.fail(ctx, err)
		return
	}
	if intent.Err != nil {
		c.fail(ctx, intent.Err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *RuleController) removeRule(ctx *gin.Context) {
	serial, ok := c.serialParam(ctx)
	if !ok {
		return
	}

	intent := &domain.RemoveIntent{Serial: serial}
	if err := c.publish(ctx, domain.TopicRemoveRequested, intent); err != nil {
		c.fail(ctx, err)
		return
	}
	if intent.Err != nil {
		c.fail(ctx, intent.Err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *RuleController) getAlarm(ctx *gin.Context) {
	c.mu.RLock()
	info := c.alarm
	c.mu.RUnlock()

	ctx.JSON(http.StatusOK, AlarmResponse{
		Next:      utils.FormatAlarm(info.Next),
		Prev:      utils.FormatAlarm(info.Prev),
		NextAlarm: info.Next,
		PrevAlarm: info.Prev,
	})
}

func (c *RuleController) getSync(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.sync.Status())
}

func (c *RuleController) resync(ctx *gin.Context) {
	if err := c.sync.Resync(ctx.Request.Context()); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, c.sync.Status())
}

// publish отправляет намерение в шину из цикла диспетчеризации;
// после возврата намерение уже содержит результат хранилища.
func (c *RuleController) publish(ctx *gin.Context, topic domain.Topic, intent any) error {
	var publishErr error
	if err := c.loop.Do(ctx.Request.Context(), func() {
		publishErr = c.bus.Publish(topic, intent)
	}); err != nil {
		return err
	}
	return publishErr
}

func (c *RuleController) serialParam(ctx *gin.Context) (int, bool) {
	serial, err := strconv.Atoi(ctx.Param("serial"))
	if err != nil || serial < 1 {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid rule serial"})
		return 0, false
	}
	return serial, true
}

func (c *RuleController) fail(ctx *gin.Context, err error) {
	var conflictErr *domain.ConflictError

	switch {
	case errors.As(err, &conflictErr):
		ctx.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:          err.Error(),
			Code:           "conflicting_rule",
			ConflictSerial: conflictErr.Rule.Serial,
		})
	case errors.Is(err, domain.ErrInvalidDays):
		ctx.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "invalid_days"})
	case errors.Is(err, domain.ErrInvalidRange):
		ctx.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "invalid_range"})
	case errors.Is(err, domain.ErrUnknownSerial):
		ctx.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "unknown_serial"})
	case errors.Is(err, eventbus.ErrLoopStopped):
		ctx.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		c.logger.Error("http.request.failed", out.LogFields{
			"path":  ctx.FullPath(),
			"error": err.Error(),
		})
		ctx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func (c *RuleController) basicAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		username, password, hasAuth := ctx.Request.BasicAuth()
		if !hasAuth || !c.validClient(username, password) {
			ctx.Header("WWW-Authenticate", "Basic realm=Authorization Required")
			ctx.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		ctx.Next()
	}
}

func (c *RuleController) validClient(username, password string) bool {
	valid := false
	for _, client := range c.cfg.Auth.BasicClients {
		// Сравниваем со всеми клиентами, чтобы время ответа не зависело от позиции
		if subtle.ConstantTimeCompare([]byte(username), []byte(client.Username)) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(client.Password)) == 1 {
			valid = true
		}
	}
	return valid
}

package service

import (
	"context"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/repository"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/logger"
	"course_eval_backend/pkg/mailer"
	"course_eval_backend/pkg/monitoring"
	"course_eval_backend/pkg/pusher"
	"course_eval_backend/pkg/tracing"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Message 一次扇出的通知内容
type Message struct {
	Title        string
	Body         string
	Type         model.NotificationType
	EvaluationID *uint
	// TriggerKey 非空时同一触发重跑会复用同一个事件
	TriggerKey string
	// Channels 为空表示全部渠道
	Channels []model.Channel
	Data     map[string]string
}

func (m Message) wants(ch model.Channel) bool {
	if len(m.Channels) == 0 {
		return true
	}
	for _, c := range m.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// ChannelCount push 的 sent/failed 按设备令牌计数，skipped 按接收人计数
type ChannelCount struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (c *ChannelCount) add(o ChannelCount) {
	c.Sent += o.Sent
	c.Failed += o.Failed
	c.Skipped += o.Skipped
}

type DispatchResult struct {
	EventID    uint         `json:"eventId"`
	Recipients int          `json:"recipients"`
	InApp      ChannelCount `json:"inApp"`
	Push       ChannelCount `json:"push"`
	Email      ChannelCount `json:"email"`
}

type dispatchSettings struct {
	timeout     time.Duration
	devPrefixes []string
	location    *time.Location
	concurrency int
}

// Dispatcher 通过站内信、推送、邮件三个渠道扇出通知。
// 单个接收人的失败只体现在计数中，不影响其他接收人。
type Dispatcher struct {
	Notifications *repository.NotificationRepository
	Devices       *repository.DeviceRepository
	Directory     *repository.DirectoryRepository
	Preferences   *PreferenceService
	Push          pusher.Gateway
	Email         mailer.Gateway
	Now           func() time.Time

	mu       sync.RWMutex
	settings dispatchSettings
}

func NewDispatcher(
	notifications *repository.NotificationRepository,
	devices *repository.DeviceRepository,
	directory *repository.DirectoryRepository,
	preferences *PreferenceService,
	push pusher.Gateway,
	email mailer.Gateway,
	cfg config.NotificationConfig,
) *Dispatcher {
	d := &Dispatcher{
		Notifications: notifications,
		Devices:       devices,
		Directory:     directory,
		Preferences:   preferences,
		Push:          push,
		Email:         email,
		Now:           utcNow,
	}
	d.UpdateSettings(cfg)
	return d
}

// UpdateSettings 配置热加载时调用
func (d *Dispatcher) UpdateSettings(cfg config.NotificationConfig) {
	timeout := cfg.ChannelTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d.mu.Lock()
	d.settings = dispatchSettings{
		timeout:     timeout,
		devPrefixes: append([]string(nil), cfg.DevTokenPrefixes...),
		location:    cfg.Location(),
		concurrency: cfg.FanoutConcurrency,
	}
	d.mu.Unlock()
}

func (d *Dispatcher) currentSettings() dispatchSettings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

type recipientOutcome struct {
	inApp ChannelCount
	push  ChannelCount
	email ChannelCount
}

// Dispatch 只有接收人列表为空或事件落库失败时返回 error
func (d *Dispatcher) Dispatch(ctx context.Context, recipientIDs []uint, msg Message) (*DispatchResult, error) {
	recipients := uniqueIDs(recipientIDs)
	if len(recipients) == 0 {
		return nil, util.ErrNoRecipients
	}

	ctx, span := tracing.StartSpan(ctx, "notification.dispatch",
		attribute.String("notification.type", string(msg.Type)),
		attribute.Int("notification.recipients", len(recipients)),
	)
	defer span.End()

	event := &model.NotificationEvent{
		Type:         msg.Type,
		Title:        msg.Title,
		Body:         msg.Body,
		EvaluationID: msg.EvaluationID,
	}
	if msg.TriggerKey != "" {
		key := msg.TriggerKey
		event.TriggerKey = &key
	}
	if err := d.Notifications.FindOrCreateEvent(ctx, event); err != nil {
		span.RecordError(err)
		return nil, err
	}

	settings := d.currentSettings()

	var contacts map[uint]model.User
	if msg.wants(model.ChannelEmail) && d.Email != nil {
		var err error
		contacts, err = d.Directory.Contacts(ctx, recipients)
		if err != nil {
			logger.Log.Error("Failed to load recipient contacts", zap.Uint("eventId", event.ID), zap.Error(err))
		}
	}

	outcomes := make([]recipientOutcome, len(recipients))
	var g errgroup.Group
	if settings.concurrency > 0 {
		g.SetLimit(settings.concurrency)
	}
	for i, userID := range recipients {
		i, userID := i, userID
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, event, userID, msg, contacts, settings)
			return nil
		})
	}
	_ = g.Wait()

	result := &DispatchResult{EventID: event.ID, Recipients: len(recipients)}
	for _, o := range outcomes {
		result.InApp.add(o.inApp)
		result.Push.add(o.push)
		result.Email.add(o.email)
	}
	recordDeliveries(model.ChannelInApp, result.InApp)
	recordDeliveries(model.ChannelPush, result.Push)
	recordDeliveries(model.ChannelEmail, result.Email)

	logger.Log.Info("Notification dispatched",
		zap.Uint("eventId", event.ID),
		zap.String("type", string(msg.Type)),
		zap.Int("recipients", result.Recipients),
		zap.Any("inApp", result.InApp),
		zap.Any("push", result.Push),
		zap.Any("email", result.Email),
	)
	return result, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event *model.NotificationEvent, userID uint, msg Message, contacts map[uint]model.User, settings dispatchSettings) recipientOutcome {
	var out recipientOutcome

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Recipient delivery panicked",
				zap.Uint("eventId", event.ID),
				zap.Uint("userId", userID),
				zap.Any("panic", r),
			)
		}
	}()

	pref, err := d.Preferences.Get(ctx, userID)
	if err != nil {
		logger.Log.Warn("Falling back to default notification preference",
			zap.Uint("userId", userID), zap.Error(err))
		def := d.Preferences.Defaults(userID)
		pref = &def
	}

	if msg.wants(model.ChannelInApp) {
		out.inApp = d.deliverInApp(ctx, event, userID, pref)
	}
	if msg.wants(model.ChannelPush) && d.Push != nil {
		out.push = d.deliverPush(ctx, event, userID, msg, pref, settings)
	}
	if msg.wants(model.ChannelEmail) && d.Email != nil {
		out.email = d.deliverEmail(ctx, event, userID, contacts, pref, settings)
	}
	return out
}

func (d *Dispatcher) deliverInApp(ctx context.Context, event *model.NotificationEvent, userID uint, pref *model.NotificationPreference) ChannelCount {
	if !pref.InAppEnabled {
		return ChannelCount{Skipped: 1}
	}
	inserted, err := d.Notifications.AddRecipient(ctx, event.ID, userID)
	if err != nil {
		logger.Log.Error("In-app notification failed",
			zap.Uint("eventId", event.ID), zap.Uint("userId", userID), zap.Error(err))
		return ChannelCount{Failed: 1}
	}
	if !inserted {
		return ChannelCount{Skipped: 1}
	}
	return ChannelCount{Sent: 1}
}

func (d *Dispatcher) deliverPush(ctx context.Context, event *model.NotificationEvent, userID uint, msg Message, pref *model.NotificationPreference, settings dispatchSettings) ChannelCount {
	if !pref.PushEnabled {
		return ChannelCount{Skipped: 1}
	}
	now := d.Now()
	if !WithinWindow(now.In(settings.location), pref.QuietHoursStart, pref.QuietHoursEnd) {
		return ChannelCount{Skipped: 1}
	}

	tokens, err := d.Devices.ActiveTokens(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to load device endpoints", zap.Uint("userId", userID), zap.Error(err))
		return ChannelCount{Failed: 1}
	}
	tokens = filterDevTokens(tokens, settings.devPrefixes)
	if len(tokens) == 0 {
		return ChannelCount{Skipped: 1}
	}

	sendCtx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()
	results, err := d.Push.Send(sendCtx, tokens, pusher.Notification{
		Title: msg.Title,
		Body:  msg.Body,
		Data:  pushData(event, msg),
	})
	if err != nil {
		logger.Log.Warn("Push delivery failed",
			zap.Uint("eventId", event.ID), zap.Uint("userId", userID),
			zap.String("channel", string(model.ChannelPush)), zap.Error(util.External("push", err)))
		return ChannelCount{Failed: len(tokens)}
	}

	var count ChannelCount
	var accepted, invalid []string
	for _, r := range results {
		switch {
		case r.OK():
			count.Sent++
			accepted = append(accepted, r.Token)
		case r.Invalid:
			count.Failed++
			invalid = append(invalid, r.Token)
		default:
			count.Failed++
			logger.Log.Debug("Push token rejected",
				zap.Uint("userId", userID), zap.Error(r.Err))
		}
	}
	if len(results) < len(tokens) {
		count.Failed += len(tokens) - len(results)
	}

	if err := d.Devices.Deactivate(ctx, invalid, now); err != nil {
		logger.Log.Error("Failed to deactivate invalid endpoints",
			zap.Uint("userId", userID), zap.Int("tokens", len(invalid)), zap.Error(err))
	} else if len(invalid) > 0 {
		logger.Log.Info("Deactivated invalid push endpoints",
			zap.Uint("userId", userID), zap.Int("tokens", len(invalid)))
	}
	if err := d.Devices.Touch(ctx, accepted, now); err != nil {
		logger.Log.Warn("Failed to refresh endpoint usage", zap.Uint("userId", userID), zap.Error(err))
	}
	return count
}

func (d *Dispatcher) deliverEmail(ctx context.Context, event *model.NotificationEvent, userID uint, contacts map[uint]model.User, pref *model.NotificationPreference, settings dispatchSettings) ChannelCount {
	if !pref.EmailEnabled {
		return ChannelCount{Skipped: 1}
	}
	if contacts == nil {
		return ChannelCount{Failed: 1}
	}
	user, ok := contacts[userID]
	if !ok || user.Email == "" {
		return ChannelCount{Skipped: 1}
	}

	sendCtx, cancel := context.WithTimeout(ctx, settings.timeout)
	defer cancel()
	err := d.Email.Send(sendCtx, mailer.Message{
		To:          mail.Address{Name: user.Name, Address: user.Email},
		Subject:     event.Title,
		TextContent: event.Body,
	})
	if err != nil {
		logger.Log.Warn("Email delivery failed",
			zap.Uint("eventId", event.ID), zap.Uint("userId", userID),
			zap.String("channel", string(model.ChannelEmail)), zap.Error(util.External("email", err)))
		return ChannelCount{Failed: 1}
	}
	return ChannelCount{Sent: 1}
}

// WithinWindow 推送只在 [start, end] 时段内发送；start > end 表示跨越午夜
func WithinWindow(now time.Time, start, end string) bool {
	s, errS := util.ParseTimeOfDay(start)
	e, errE := util.ParseTimeOfDay(end)
	if errS != nil || errE != nil || s == e {
		return true
	}
	cur := time.Duration(now.Hour())*time.Hour + time.Duration(now.Minute())*time.Minute + time.Duration(now.Second())*time.Second
	if s < e {
		return cur >= s && cur <= e
	}
	return cur >= s || cur <= e
}

func filterDevTokens(tokens, prefixes []string) []string {
	if len(prefixes) == 0 {
		return tokens
	}
	out := tokens[:0:0]
	for _, t := range tokens {
		dev := false
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(t, p) {
				dev = true
				break
			}
		}
		if !dev {
			out = append(out, t)
		}
	}
	return out
}

func pushData(event *model.NotificationEvent, msg Message) map[string]string {
	data := map[string]string{"type": string(event.Type)}
	if event.EvaluationID != nil {
		data["evaluationId"] = util.FormatUint(*event.EvaluationID)
	}
	for k, v := range msg.Data {
		data[k] = v
	}
	return data
}

func recordDeliveries(ch model.Channel, c ChannelCount) {
	if c.Sent > 0 {
		monitoring.NotificationDeliveries.WithLabelValues(string(ch), "sent").Add(float64(c.Sent))
	}
	if c.Failed > 0 {
		monitoring.NotificationDeliveries.WithLabelValues(string(ch), "failed").Add(float64(c.Failed))
	}
	if c.Skipped > 0 {
		monitoring.NotificationDeliveries.WithLabelValues(string(ch), "skipped").Add(float64(c.Skipped))
	}
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

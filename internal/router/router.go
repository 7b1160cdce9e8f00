package router

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"nudge/internal/flagfile"
	"nudge/internal/logging"
)

// Messenger is the slice of the communication manager the router drives.
type Messenger interface {
	HandleMessageSending(ctx context.Context, userID, category string) (string, error)
	RecipientForService(ctx context.Context, userID string) (channel, recipient string, err error)
	SendCheckinPrompt(ctx context.Context, userID, channel, recipient string) (string, error)
	HandleTaskReminder(ctx context.Context, userID, taskID string) error
}

// Rescheduler is the slice of the scheduler manager the router drives.
type Rescheduler interface {
	ResetAndRescheduleDailyMessages(ctx context.Context, category, userID string) error
}

// Router dispatches flag-file requests found in one directory.
type Router struct {
	dir       string
	messenger Messenger
	scheduler Rescheduler
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithDispatchTimeout bounds each collaborator call. Zero disables the bound.
func WithDispatchTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d >= 0 {
			r.timeout = d
		}
	}
}

// New constructs a router over dir.
func New(dir string, messenger Messenger, scheduler Rescheduler, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		dir:       dir,
		messenger: messenger,
		scheduler: scheduler,
		logger:    logging.NewComponentLogger(logger, "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the directory the router consumes.
func (r *Router) Dir() string { return r.dir }

// ProcessAll routes every request kind in turn. startup is the reference
// time for stale reschedule requests.
func (r *Router) ProcessAll(ctx context.Context, startup time.Time) []Result {
	var results []Result
	for _, kind := range flagfile.Kinds() {
		results = append(results, r.Process(ctx, kind, startup)...)
	}
	return results
}

// Process routes every current request file of kind.
func (r *Router) Process(ctx context.Context, kind flagfile.Kind, startup time.Time) []Result {
	paths, err := flagfile.List(r.dir, kind)
	if err != nil {
		logging.WarnWithContext(r.logger, "request listing failed", "request_list_failed",
			logging.String(logging.FieldRequestKind, string(kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check base_dir permissions"),
			logging.String(logging.FieldImpact, "requests of this kind wait for the next poll"),
		)
		return nil
	}
	results := make([]Result, 0, len(paths))
	for _, path := range paths {
		results = append(results, r.ProcessFile(ctx, kind, path, startup))
	}
	return results
}

// ProcessFile parses, validates, dispatches and deletes one request file.
// The file is deleted whatever happens.
func (r *Router) ProcessFile(ctx context.Context, kind flagfile.Kind, path string, startup time.Time) (res Result) {
	_, _, key := flagfile.Classify(filepath.Base(path))
	res = Result{Kind: kind, Key: key, Path: path}
	ctx = logging.WithRequest(ctx, string(kind), key)

	defer func() {
		if rec := recover(); rec != nil {
			res.Outcome = OutcomeDispatchError
			res.Err = fmt.Errorf("dispatch panic: %v", rec)
		}
		removed, err := flagfile.Remove(path)
		res.Removed = removed
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, r.logger), "request file removal failed", "request_remove_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check base_dir permissions"),
				logging.String(logging.FieldImpact, "file will be retried by the next cleanup sweep"),
			)
		}
		r.logResult(ctx, res)
	}()

	payload, err := flagfile.ReadPayload(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Outcome = OutcomeVanished
			return res
		}
		res.Outcome = OutcomeParseError
		res.Err = err
		return res
	}
	if userID := payload.String("user_id"); userID != "" {
		ctx = logging.WithUserID(ctx, userID)
	}

	if missing := payload.Missing(kind.RequiredFields()...); len(missing) > 0 {
		res.Outcome = OutcomeInvalid
		res.Err = fmt.Errorf("missing required fields: %v", missing)
		return res
	}

	if kind == flagfile.KindReschedule {
		ts, err := payload.Timestamp("timestamp")
		if err != nil {
			res.Outcome = OutcomeInvalid
			res.Err = err
			return res
		}
		if ts.Before(startup) {
			res.Outcome = OutcomeStale
			res.Err = fmt.Errorf("request timestamp %s predates startup %s", ts.UTC().Format(time.RFC3339), startup.UTC().Format(time.RFC3339))
			return res
		}
	}

	response, err := r.dispatch(ctx, kind, payload)
	if err != nil {
		res.Outcome = OutcomeDispatchError
		res.Err = err
		return res
	}
	res.Outcome = OutcomeDispatched
	res.Response = response

	if kind.HasResponse() {
		if _, err := flagfile.WriteResponse(r.dir, kind, key, flagfile.Response{
			UserID:   payload.String("user_id"),
			Kind:     kind,
			Response: response,
		}); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, r.logger), "response file write failed", "response_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check base_dir permissions and free space"),
				logging.String(logging.FieldImpact, "producer waiting on this request will time out"),
			)
		}
	}
	return res
}

func (r *Router) dispatch(ctx context.Context, kind flagfile.Kind, payload flagfile.Payload) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	userID := payload.String("user_id")

	switch kind {
	case flagfile.KindTestMessage:
		if r.messenger == nil {
			return "", errors.New("communication manager unavailable")
		}
		return r.messenger.HandleMessageSending(ctx, userID, payload.String("category"))
	case flagfile.KindCheckinPrompt:
		if r.messenger == nil {
			return "", errors.New("communication manager unavailable")
		}
		channel, recipient, err := r.messenger.RecipientForService(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("resolve recipient: %w", err)
		}
		return r.messenger.SendCheckinPrompt(ctx, userID, channel, recipient)
	case flagfile.KindTaskReminder:
		if r.messenger == nil {
			return "", errors.New("communication manager unavailable")
		}
		return "", r.messenger.HandleTaskReminder(ctx, userID, payload.String("task_id"))
	case flagfile.KindReschedule:
		if r.scheduler == nil {
			return "", errors.New("scheduler manager unavailable")
		}
		return "", r.scheduler.ResetAndRescheduleDailyMessages(ctx, payload.String("category"), userID)
	default:
		return "", fmt.Errorf("unsupported request kind %q", kind)
	}
}

func (r *Router) logResult(ctx context.Context, res Result) {
	logger := logging.WithContext(ctx, r.logger)
	switch res.Outcome {
	case OutcomeDispatched:
		logger.Info("request dispatched",
			logging.String(logging.FieldEventType, "request_dispatched"),
			logging.Bool("responded", res.Kind.HasResponse()),
		)
	case OutcomeVanished:
		logger.Debug("request file vanished before processing",
			logging.String(logging.FieldEventType, "request_vanished"),
		)
	case OutcomeParseError, OutcomeInvalid:
		logging.WarnWithContext(logger, "request rejected", "request_rejected",
			logging.String("outcome", string(res.Outcome)),
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "producer must write a JSON object with the required fields"),
			logging.String(logging.FieldImpact, "request discarded without dispatch"),
		)
	case OutcomeStale:
		logging.WarnWithContext(logger, "stale request discarded", "request_stale",
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "request was written before the daemon started"),
			logging.String(logging.FieldImpact, "request discarded without dispatch"),
		)
	case OutcomeDispatchError:
		logging.ErrorWithContext(logger, "request dispatch failed", "request_dispatch_failed",
			logging.Error(res.Err),
			logging.String(logging.FieldErrorHint, "check channel configuration and user data"),
			logging.String(logging.FieldImpact, "request discarded; producer must resend"),
		)
	}
}

// Cleanup removes every leftover request file of kind without dispatching
// and returns how many it deleted.
func (r *Router) Cleanup(kind flagfile.Kind) (int, error) {
	paths, err := flagfile.List(r.dir, kind)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, path := range paths {
		ok, err := flagfile.Remove(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("leftover requests removed",
			logging.String(logging.FieldEventType, "request_cleanup"),
			logging.String(logging.FieldRequestKind, string(kind)),
			logging.Int("count", removed),
		)
	}
	return removed, errors.Join(errs...)
}

package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"pingbot/internal/paging"
	kit "pingbot/internal/transport"
	"pingbot/internal/users"
	logx "pingbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWTimeout bounds the handler. d <= 0 leaves it unbounded.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// MWAccess resolves the sender's role and rejects roles the route does not
// admit. The role lands in req.Role for the handler and the request log.
func MWAccess(resolver RoleResolver, access Access) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			role, err := resolver.ResolveRole(ctx, req.ChatID)
			if err != nil {
				req.Logger.Error("role resolution failed", logx.Err(err))
				return fmt.Errorf("resolve role: %w", err)
			}
			req.Role = role
			if !access.allows(role) {
				req.Logger.Info("access denied", logx.String("role", string(role)))
				return users.ErrAccessDenied
			}
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error so the worker survives.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestLogger(log, req).Error("handler panicked",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs one line per handled event. Outcomes caused by the
// caller (denied, bad page, unchanged edit) are not warnings.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			logger := requestLogger(log, req)
			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("role", string(req.Role)),
				logx.Duration("took", took),
			}
			switch {
			case err == nil && took >= 750*time.Millisecond:
				logger.Info("request slow", fields...)
			case err == nil:
				logger.Debug("request ok", fields...)
			case callerError(err):
				logger.Info("request rejected", append(fields, logx.Err(err))...)
			default:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			}
			return err
		}
	}
}

func callerError(err error) bool {
	return errors.Is(err, users.ErrAccessDenied) ||
		errors.Is(err, paging.ErrInvalidPage) ||
		errors.Is(err, paging.ErrInvalidPageSize) ||
		errors.Is(err, kit.ErrMessageNotModified)
}

func requestLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

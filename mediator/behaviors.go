package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpirok/cleanarchitecture/identity"
)

const (
	tracerName = "github.com/jpirok/cleanarchitecture/mediator"

	// DefaultSlowRequest is the duration after which Performance warns.
	DefaultSlowRequest = 500 * time.Millisecond
)

var (
	ErrPanic        = errors.New("mediator: handler panicked")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// RoleRequirer is implemented by requests restricted to callers holding one
// of the returned roles.
type RoleRequirer interface {
	RequiredRoles() []string
}

// ValidationError lists the failed fields of a request.
type ValidationError struct {
	Request string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("invalid %s: %s", e.Request, strings.Join(parts, ", "))
}

// Tracing starts a span per request.
func Tracing() Behavior {
	return func(ctx context.Context, req any, next Next) (any, error) {
		name := requestName(req)
		ctx, span := otel.Tracer(tracerName).Start(ctx, "mediator.send",
			trace.WithAttributes(attribute.String("mediator.request", name)))
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return out, err
		}
		span.SetStatus(codes.Ok, "")
		return out, nil
	}
}

// Unhandled turns handler panics into ErrPanic and logs every failure.
func Unhandled(logger *log.Logger) Behavior {
	return func(ctx context.Context, req any, next Next) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
			}
			if err != nil && logger != nil {
				logger.WithField("request", requestName(req)).WithError(err).Error("request failed")
			}
		}()
		return next(ctx)
	}
}

// Authorization rejects RoleRequirer requests from anonymous or
// insufficiently privileged callers.
func Authorization() Behavior {
	return func(ctx context.Context, req any, next Next) (any, error) {
		rr, ok := req.(RoleRequirer)
		if !ok {
			return next(ctx)
		}
		user, ok := identity.FromContext(ctx)
		if !ok {
			return nil, ErrUnauthorized
		}
		if !user.HasAnyRole(rr.RequiredRoles()...) {
			return nil, fmt.Errorf("%w: %s requires one of %v", ErrForbidden, requestName(req), rr.RequiredRoles())
		}
		return next(ctx)
	}
}

// Validation checks struct tags of requests with v.
func Validation(v *validator.Validate) Behavior {
	return func(ctx context.Context, req any, next Next) (any, error) {
		if !isStruct(req) {
			return next(ctx)
		}
		if err := v.StructCtx(ctx, req); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return nil, err
			}
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return nil, &ValidationError{Request: requestName(req), Fields: fields}
		}
		return next(ctx)
	}
}

// Performance warns about requests slower than threshold.
func Performance(logger *log.Logger, threshold time.Duration) Behavior {
	if threshold <= 0 {
		threshold = DefaultSlowRequest
	}
	return func(ctx context.Context, req any, next Next) (any, error) {
		start := time.Now()
		out, err := next(ctx)
		if elapsed := time.Since(start); elapsed > threshold && logger != nil {
			logger.WithFields(log.Fields{
				"request":    requestName(req),
				"elapsed_ms": elapsed.Milliseconds(),
			}).Warn("long running request")
		}
		return out, err
	}
}

// DefaultBehaviors returns the standard pipeline, outermost first.
func DefaultBehaviors(logger *log.Logger, v *validator.Validate) []Behavior {
	return []Behavior{
		Tracing(),
		Unhandled(logger),
		Authorization(),
		Validation(v),
		Performance(logger, DefaultSlowRequest),
	}
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(v).IsNil() {
			return false
		}
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

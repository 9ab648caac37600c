package api

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/identity"
)

// HeaderIdempotencyKey carries the client chosen key of a command request.
const HeaderIdempotencyKey = "Idempotency-Key"

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	if header == "" {
		return false
	}
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	var err error
	if g.Reader != nil {
		err = g.Reader.Close()
	}
	if g.body != nil {
		if cerr := g.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Authenticate resolves the caller from the Authorization header and stores
// it on the request context. Unauthenticated requests get a 401.
func Authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			metrics := metricsFrom(c)
			start := time.Now()
			user, err := auth.UserFromHeader(c.Request().Header)
			metrics.ObserveAuth(time.Since(start))
			if err != nil {
				metrics.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.SetRequest(c.Request().WithContext(identity.WithUser(c.Request().Context(), user)))
			return next(c)
		}
	}
}

// Idempotent rejects a repeated Idempotency-Key from the same caller with a
// 409. The key is released again when the request fails so it can be retried.
func Idempotent(deduper Deduper, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
			if key == "" || deduper == nil {
				return next(c)
			}
			ctx := c.Request().Context()
			user, _ := identity.FromContext(ctx)
			added, err := deduper.Add(ctx, user.ID, key)
			if err != nil {
				logger.WithError(err).Warn("idempotency check failed")
				return next(c)
			}
			if !added {
				metricsFrom(c).SetErrorStage("duplicate")
				return c.String(http.StatusConflict, "duplicate request")
			}
			err = next(c)
			if err != nil || c.Response().Status >= http.StatusBadRequest {
				if rerr := deduper.Remove(context.WithoutCancel(ctx), user.ID, key); rerr != nil {
					logger.WithError(rerr).Warn("unable to release idempotency key")
				}
			}
			return err
		}
	}
}

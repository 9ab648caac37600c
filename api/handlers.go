package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/mediator"
	"github.com/jpirok/cleanarchitecture/tasks"
)

const maxBodySize = 64 << 10

// Register wires the task routes on the provided Echo instance. Every route
// is traced, authenticated and accepts gzip bodies. Mutating POSTs honour
// Idempotency-Key.
func Register(e *echo.Echo, m *mediator.Mediator, auth Authenticator, deduper Deduper, logger *log.Logger) {
	g := e.Group("/api", RequestMetrics(logger), Authenticate(auth), GzipRequestMiddleware())
	idem := Idempotent(deduper, logger)

	g.GET("/tasks", listTasks(m, logger))
	g.GET("/tasks/:id", getTask(m, logger))
	g.POST("/tasks", createTask(m, logger), idem)
	g.PATCH("/tasks/:id", updateTask(m, logger))
	g.POST("/tasks/:id/complete", completeTask(m, logger), idem)
	g.POST("/tasks/:id/reopen", reopenTask(m, logger), idem)
}

type tasksResponse struct {
	Tasks []tasks.TaskView `json:"tasks"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func listTasks(m *mediator.Mediator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := mediator.Send[tasks.ListTasks, []tasks.TaskView](c.Request().Context(), m, tasks.ListTasks{})
		if err != nil {
			return writeError(c, logger, err)
		}
		metricsFrom(c).SetItems(len(list))
		return c.JSON(http.StatusOK, tasksResponse{Tasks: list})
	}
}

func getTask(m *mediator.Mediator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := mediator.Send[tasks.GetTask, tasks.TaskView](c.Request().Context(), m, tasks.GetTask{ID: c.Param("id")})
		if err != nil {
			return writeError(c, logger, err)
		}
		metricsFrom(c).SetItems(1)
		return c.JSON(http.StatusOK, view)
	}
}

func createTask(m *mediator.Mediator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req tasks.CreateTask
		if err := decodeBody(c, &req); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		view, err := mediator.Send[tasks.CreateTask, tasks.TaskView](c.Request().Context(), m, req)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, view)
	}
}

func updateTask(m *mediator.Mediator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req tasks.UpdateTask
		if err := decodeBody(c, &req); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		req.ID = c.Param("id")
		view, err := mediator.Send[tasks.UpdateTask, tasks.TaskView](c.Request().Context(), m, req)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func completeTask(m *mediator.Mediator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := mediator.Send[tasks.CompleteTask, tasks.TaskView](c.Request().Context(), m, tasks.CompleteTask{ID: c.Param("id")})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func reopenTask(m *mediator.Mediator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		view, err := mediator.Send[tasks.ReopenTask, tasks.TaskView](c.Request().Context(), m, tasks.ReopenTask{ID: c.Param("id")})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, view)
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeError maps application errors to responses. Unknown errors are logged
// and reported as 500 without detail.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	metricsFrom(c).SetErrorStage("handler")
	var verr *mediator.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.Is(err, mediator.ErrUnauthorized):
		return c.String(http.StatusUnauthorized, err.Error())
	case errors.Is(err, mediator.ErrForbidden), errors.Is(err, domain.ErrNotOwner):
		return c.String(http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrTaskAlreadyDone), errors.Is(err, domain.ErrTaskNotDone):
		return c.String(http.StatusConflict, err.Error())
	}
	logger.WithError(err).WithField("route", c.Path()).Error("request failed")
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

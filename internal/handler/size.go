package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"useapi-go/internal/model"
	"useapi-go/internal/redact"
	"useapi-go/internal/service"
)

// Measurer measures a URL. Implemented by *service.SizeService.
type Measurer interface {
	Measure(ctx context.Context, rawURL string) (*model.SizeResult, error)
}

// SizeHandler serves POST /getsize.
type SizeHandler struct {
	sizer  Measurer
	logger *slog.Logger
}

// NewSizeHandler creates a SizeHandler.
func NewSizeHandler(svc *service.SizeService, logger *slog.Logger) *SizeHandler {
	return &SizeHandler{
		sizer:  svc,
		logger: logger.With("component", "size_handler"),
	}
}

// Handle measures the requested URL. Errors are answered as {"detail": ...}.
func (h *SizeHandler) Handle(c echo.Context) error {
	var in model.SizeRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
	}

	res, err := h.sizer.Measure(c.Request().Context(), in.URL)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *SizeHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrInvalidURL) {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}

	var se *service.StatusError
	if errors.As(err, &se) {
		h.logger.Warn("size probe upstream error", "status", se.Code, "url", redact.String(se.URL))
		return detail(c, se.Code, se.Error())
	}

	h.logger.Error("size probe failed", "err", redact.Error(err))
	return detail(c, http.StatusInternalServerError, err.Error())
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}

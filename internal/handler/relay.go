package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"useapi-go/internal/model"
	"useapi-go/internal/service"
)

// Relayer performs a relay call. Implemented by *service.RelayService.
type Relayer interface {
	Relay(ctx context.Context, d *model.RequestDescriptor) model.ResponseEnvelope
}

// RelayHandler serves POST /useapi.
type RelayHandler struct {
	relay  Relayer
	logger *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		relay:  svc,
		logger: logger.With("component", "relay_handler"),
	}
}

// Handle decodes a request descriptor and answers with the relay envelope.
// The inbound status is always 200; failures travel inside the envelope.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	d, err := decodeDescriptor(req.Body)
	if err != nil {
		h.logger.Error("invalid descriptor", "err", err)
		return c.JSON(http.StatusOK, model.NewEnvelope(http.StatusBadRequest, "Invalid input: "+err.Error()))
	}

	return c.JSON(http.StatusOK, h.relay.Relay(req.Context(), d))
}

func decodeDescriptor(r io.Reader) (*model.RequestDescriptor, error) {
	var d model.RequestDescriptor
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is empty")
		}
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &d, nil
}

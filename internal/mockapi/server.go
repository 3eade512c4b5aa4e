// Package mockapi implements a small item API with randomized values and
// injected failures, used as a relay and load test target.
package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Item ids outside this range are reported as not found.
const (
	MinItemID = 0
	MaxItemID = 100
)

// ErrorDetail is returned by the simulated failure endpoint.
const ErrorDetail = "Code triggered 'Internal Server Error' in the mock server. NOT a real error"

// Random is the randomness source used by the handlers.
// *rand.Rand satisfies it but is not safe for concurrent use; see Locked.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

// Item is the item representation returned by the API.
type Item struct {
	ItemID int     `json:"item_id"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
}

type itemInput struct {
	Name  *string  `json:"name"`
	Value *float64 `json:"value"`
}

// Server holds the mock API handlers.
type Server struct {
	rnd    Random
	logger *slog.Logger
}

// NewServer creates a Server using the process-wide random source.
func NewServer(logger *slog.Logger) *Server {
	return NewServerWithRandom(globalRand{}, logger)
}

// NewServerWithRandom creates a Server drawing from rnd.
func NewServerWithRandom(rnd Random, logger *slog.Logger) *Server {
	return &Server{
		rnd:    rnd,
		logger: logger.With("component", "mockapi"),
	}
}

// Register wires the mock API routes onto e.
func Register(e *echo.Echo, s *Server) {
	e.GET("/api/item/:id", s.ReadItem)
	e.POST("/api/item", s.CreateItem)
	e.GET("/api/error", s.SimulateError)
}

// ReadItem returns the item with the given id and a random value in [1, 100).
func (s *Server) ReadItem(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, "item_id must be an integer")
	}
	if id < MinItemID || id > MaxItemID {
		return detail(c, http.StatusNotFound, "Item not found")
	}

	return c.JSON(http.StatusOK, Item{
		ItemID: id,
		Name:   fmt.Sprintf("Item %d", id),
		Value:  1 + s.rnd.Float64()*99,
	})
}

// CreateItem echoes the posted item with a random id in [1, 1000].
func (s *Server) CreateItem(c echo.Context) error {
	var in itemInput
	if err := json.NewDecoder(c.Request().Body).Decode(&in); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "invalid item: "+err.Error())
	}
	if in.Name == nil {
		return detail(c, http.StatusUnprocessableEntity, "name is required")
	}
	if in.Value == nil {
		return detail(c, http.StatusUnprocessableEntity, "value is required")
	}

	item := Item{
		ItemID: 1 + s.rnd.IntN(1000),
		Name:   *in.Name,
		Value:  *in.Value,
	}
	s.logger.Debug("item created", "item_id", item.ItemID)
	return c.JSON(http.StatusOK, item)
}

// SimulateError fails with a 500 half of the time.
func (s *Server) SimulateError(c echo.Context) error {
	if s.rnd.IntN(2) == 0 {
		s.logger.Info("simulated failure")
		return detail(c, http.StatusInternalServerError, ErrorDetail)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "No error occurred"})
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}

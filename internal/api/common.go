package api

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"emsxbridge.com/internal/domain"
)

// Pagination metadata of a list response.
type Pagination struct {
	Page      int   `json:"Page"`
	PageSize  int   `json:"PageSize"`
	Total     int64 `json:"Total"`
	TotalPage int   `json:"TotalPage"`
}

type ListResponse struct {
	Data       interface{} `json:"Data"`
	Pagination Pagination  `json:"Pagination"`
}

// SendPaginatedResponse writes data with its pagination metadata.
func SendPaginatedResponse(c *fiber.Ctx, data interface{}, page, pageSize int, total int64) error {
	totalPage := 0
	if pageSize > 0 {
		totalPage = int(math.Ceil(float64(total) / float64(pageSize)))
	}

	return c.JSON(ListResponse{
		Data: data,
		Pagination: Pagination{
			Page:      page,
			PageSize:  pageSize,
			Total:     total,
			TotalPage: totalPage,
		},
	})
}

// handleError maps service errors to HTTP responses.
func handleError(c *fiber.Ctx, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Code).JSON(fiber.Map{"Error": appErr.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"Error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"Error": msg})
}

// sequenceParam reads the :sequence path parameter.
func sequenceParam(c *fiber.Ctx) (int64, bool) {
	seq, err := strconv.ParseInt(c.Params("sequence"), 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

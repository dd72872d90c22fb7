package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/order-engine/internal/core/domain"
)

type failure struct {
	httpStatus int
	grpcCode   codes.Code
	code       string
	message    string
}

// classify maps a service error to what both transports report. Unknown
// errors never leak their text to the caller.
func classify(err error) failure {
	switch {
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidIdempotencyKey):
		return failure{http.StatusBadRequest, codes.InvalidArgument, "invalid_request", err.Error()}
	case errors.Is(err, domain.ErrProductNotFound):
		return failure{http.StatusNotFound, codes.NotFound, "product_not_found", err.Error()}
	case errors.Is(err, domain.ErrOrderNotFound):
		return failure{http.StatusNotFound, codes.NotFound, "order_not_found", err.Error()}
	case errors.Is(err, domain.ErrInsufficientStock):
		return failure{http.StatusConflict, codes.FailedPrecondition, "insufficient_stock", err.Error()}
	case errors.Is(err, domain.ErrDuplicateRequest):
		return failure{http.StatusConflict, codes.AlreadyExists, "duplicate_request", "request with this idempotency key is already in progress"}
	case errors.Is(err, domain.ErrIdempotencyKeyExpired):
		return failure{http.StatusUnprocessableEntity, codes.FailedPrecondition, "idempotency_key_expired", err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return failure{http.StatusServiceUnavailable, codes.Aborted, "conflict", "too much contention, retry later"}
	case errors.Is(err, context.DeadlineExceeded):
		return failure{http.StatusGatewayTimeout, codes.DeadlineExceeded, "timeout", "request timed out"}
	case errors.Is(err, context.Canceled):
		return failure{http.StatusServiceUnavailable, codes.Canceled, "canceled", "request canceled"}
	default:
		return failure{http.StatusInternalServerError, codes.Internal, "internal", "internal error"}
	}
}

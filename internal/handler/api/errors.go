package api

import (
	"context"
	"errors"

	"PortfolioHistory/internal/domain/models"
	xhttp "PortfolioHistory/pkg/http"
	"PortfolioHistory/pkg/queue"
)

// toAppError maps domain failures onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var oversell *models.OversellError
	switch {
	case errors.Is(err, models.ErrUnknownDimension):
		return xhttp.NotFoundError("unknown dimension").WithError(err)
	case errors.Is(err, models.ErrUpdateInProgress):
		return xhttp.ConflictError("history update in progress").WithError(err)
	case errors.Is(err, models.ErrRateLimited):
		return xhttp.TooManyRequestsError("price provider rate limit reached").WithError(err)
	case errors.Is(err, models.ErrSourceUnavailable):
		return xhttp.ServiceUnavailableError("upstream source unavailable").WithError(err)
	case errors.As(err, &oversell), errors.Is(err, models.ErrInvalidEvent), errors.Is(err, models.ErrAcquisitionCycle):
		return xhttp.UnprocessableError("ledger is inconsistent").WithError(err)
	case errors.Is(err, queue.ErrQueueFull):
		return xhttp.ServiceUnavailableError("job queue is full").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.ServiceUnavailableError("request timed out").WithError(err)
	case errors.Is(err, models.ErrWrite):
		return xhttp.NewAppError("ERR_WRITE", "", "history write failed", 500).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

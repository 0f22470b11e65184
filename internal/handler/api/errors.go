package api

import (
	"context"
	"errors"

	"BinPull/internal/domain/errs"
	"BinPull/internal/usecase"
	xhttp "BinPull/pkg/http"
)

// domainError maps session and venue failures onto HTTP errors.
func domainError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, usecase.ErrSessionNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, usecase.ErrSessionExists),
		errors.Is(err, usecase.ErrSessionNotRunning):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, usecase.ErrInvalidCommand):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, errs.ErrAuth):
		return xhttp.UnauthorizedError(err.Error())
	case errors.Is(err, errs.ErrRiskLimitExceeded),
		errors.Is(err, errs.ErrInsufficientBalance):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, usecase.ErrArchiveDisabled),
		errors.Is(err, errs.ErrConnection),
		errors.Is(err, errs.ErrRequestTimeout),
		errors.Is(err, errs.ErrCancelled),
		errors.Is(err, context.DeadlineExceeded):
		return xhttp.UnavailableError(err.Error())
	}
	return nil
}

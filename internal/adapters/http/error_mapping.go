package httpadapter

import (
	"net/http"

	"github.com/vkuzmich/fintech-rag/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrIndexNotBuilt):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrUpstreamTimeout),
		domain.IsKind(err, domain.ErrUpstreamService):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

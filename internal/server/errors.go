package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	attributiondomain "github.com/mutualabs/mutua/internal/attribution/domain"
	extractdomain "github.com/mutualabs/mutua/internal/extract/domain"
	ledgerdomain "github.com/mutualabs/mutua/internal/ledger/domain"
	pricingruledomain "github.com/mutualabs/mutua/internal/pricingrule/domain"
	publicationdomain "github.com/mutualabs/mutua/internal/publication/domain"
	relationshipdomain "github.com/mutualabs/mutua/internal/relationship/domain"
	rosterdomain "github.com/mutualabs/mutua/internal/roster/domain"
)

type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func invalidRequestError() error {
	return &apiError{status: http.StatusBadRequest, code: "invalid_request", message: "malformed request body"}
}

// statusOf maps domain sentinel errors onto HTTP statuses. Unknown
// errors are internal.
func statusOf(err error) int {
	switch {
	case errors.Is(err, relationshipdomain.ErrNotFound),
		errors.Is(err, pricingruledomain.ErrNotFound),
		errors.Is(err, rosterdomain.ErrNotFound),
		errors.Is(err, attributiondomain.ErrNotFound),
		errors.Is(err, publicationdomain.ErrNotFound),
		errors.Is(err, ledgerdomain.ErrAccountNotFound),
		errors.Is(err, ledgerdomain.ErrMovementNotFound):
		return http.StatusNotFound

	case errors.Is(err, attributiondomain.ErrReassignmentRequired),
		errors.Is(err, relationshipdomain.ErrDuplicateCode),
		errors.Is(err, pricingruledomain.ErrOverlappingTiers),
		errors.Is(err, publicationdomain.ErrNotDraft):
		return http.StatusConflict

	case errors.Is(err, attributiondomain.ErrNoCountableDependent),
		errors.Is(err, attributiondomain.ErrNotActive),
		errors.Is(err, ledgerdomain.ErrAccountInactive):
		return http.StatusUnprocessableEntity

	case errors.Is(err, relationshipdomain.ErrInvalidOrganization),
		errors.Is(err, pricingruledomain.ErrInvalidOrganization),
		errors.Is(err, rosterdomain.ErrInvalidOrganization),
		errors.Is(err, attributiondomain.ErrInvalidOrganization),
		errors.Is(err, publicationdomain.ErrInvalidOrganization),
		errors.Is(err, ledgerdomain.ErrInvalidOrganization):
		return http.StatusUnauthorized

	case errors.Is(err, relationshipdomain.ErrInvalidCode),
		errors.Is(err, relationshipdomain.ErrInvalidDescription),
		errors.Is(err, relationshipdomain.ErrInvalidID),
		errors.Is(err, pricingruledomain.ErrInvalidID),
		errors.Is(err, pricingruledomain.ErrInvalidPrice),
		errors.Is(err, pricingruledomain.ErrInvalidCountBounds),
		errors.Is(err, pricingruledomain.ErrInvalidValidity),
		errors.Is(err, pricingruledomain.ErrInvalidRelationship),
		errors.Is(err, rosterdomain.ErrInvalidID),
		errors.Is(err, rosterdomain.ErrInvalidAffiliate),
		errors.Is(err, rosterdomain.ErrInvalidName),
		errors.Is(err, rosterdomain.ErrInvalidRelationship),
		errors.Is(err, attributiondomain.ErrInvalidAffiliate),
		errors.Is(err, attributiondomain.ErrInvalidAccount),
		errors.Is(err, publicationdomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrInvalidID),
		errors.Is(err, ledgerdomain.ErrInvalidAccount),
		errors.Is(err, ledgerdomain.ErrInvalidAffiliate),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidDirection),
		errors.Is(err, extractdomain.ErrInvalidPeriod):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func AbortWithError(c *gin.Context, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		c.AbortWithStatusJSON(ae.status, gin.H{"error": gin.H{"code": ae.code, "message": ae.message}})
		return
	}

	status := statusOf(err)
	code := err.Error()
	message := code
	if status == http.StatusInternalServerError {
		code = "internal"
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

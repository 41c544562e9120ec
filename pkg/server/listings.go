package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dbrouter/pkg/listing"
	"dbrouter/pkg/log"
	"dbrouter/pkg/models"

	"github.com/labstack/echo/v4"
)

const ownerHeader = "X-Owner-ID"

func (srv *Server) createListing(ctx echo.Context) error {
	ownerID := ctx.Request().Header.Get(ownerHeader)
	if ownerID == "" {
		return errorResponse(ctx, http.StatusBadRequest, ownerHeader+" header is required")
	}

	var input models.ListingInput
	if err := ctx.Bind(&input); err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "Invalid request body")
	}

	created, err := srv.listings.Create(ctx.Request().Context(), ownerID, input)
	if err != nil {
		return listingErrorResponse(ctx, err)
	}

	log.Debug().Str("listing_id", created.ID).Str("owner_id", ownerID).Msg("Listing created")
	return ctx.JSON(http.StatusCreated, created)
}

func (srv *Server) getListing(ctx echo.Context) error {
	id := ctx.Param("id")
	found, err := srv.listings.Get(ctx.Request().Context(), id)
	if err != nil {
		return listingErrorResponse(ctx, err)
	}

	srv.runBackground(viewTimeout, func(bgCtx context.Context) {
		if err := srv.listings.RecordView(bgCtx, id, time.Now()); err != nil {
			log.Warn().Err(err).Str("listing_id", id).Msg("Failed to record listing view")
		}
	})

	return ctx.JSON(http.StatusOK, found)
}

func (srv *Server) listListings(ctx echo.Context) error {
	opts := &listing.ListOptions{
		Category: ctx.QueryParam("category"),
		OwnerID:  ctx.QueryParam("owner"),
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return errorResponse(ctx, http.StatusBadRequest, "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	listings, err := srv.listings.List(ctx.Request().Context(), opts)
	if err != nil {
		return listingErrorResponse(ctx, err)
	}
	return ctx.JSON(http.StatusOK, models.ListingListResponse{Listings: listings})
}

func (srv *Server) deleteListing(ctx echo.Context) error {
	ownerID := ctx.Request().Header.Get(ownerHeader)
	if ownerID == "" {
		return errorResponse(ctx, http.StatusBadRequest, ownerHeader+" header is required")
	}

	if err := srv.listings.Delete(ctx.Request().Context(), ctx.Param("id"), ownerID); err != nil {
		return listingErrorResponse(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func listingErrorResponse(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, listing.ErrInvalidListing):
		return errorResponse(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, listing.ErrListingNotFound):
		return errorResponse(ctx, http.StatusNotFound, "Listing not found")
	case errors.Is(err, listing.ErrAccessDenied):
		return errorResponse(ctx, http.StatusForbidden, "Only the owner can modify this listing")
	default:
		log.Error().Err(err).Msg("Listing operation failed")
		return errorResponse(ctx, http.StatusInternalServerError, "Internal server error")
	}
}

package models

import "time"

// Listing is a marketplace item posted by a community member.
type Listing struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category"`
	PriceCents   int64      `json:"price_cents"`
	ViewCount    int64      `json:"view_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastViewedAt *time.Time `json:"last_viewed_at,omitempty"`
}

// ListingInput is the client supplied part of a listing.
type ListingInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
}

// ListingListResponse is a page of listings.
type ListingListResponse struct {
	Listings []Listing `json:"listings"`
}

package models

import (
	"strings"

	"github.com/google/uuid"
)

// MaxSearchPassengers bounds the passenger count of a search
const MaxSearchPassengers = 10

// SearchRequest represents a passenger's schedule search
type SearchRequest struct {
	Origin      string `form:"origin" json:"origin"`
	Destination string `form:"destination" json:"destination"`
	Date        string `form:"date" json:"date"`
	Passengers  int    `form:"passengers" json:"passengers"`
}

// Normalize trims inputs and applies the default passenger count
func (r *SearchRequest) Normalize() {
	r.Origin = strings.ToUpper(strings.TrimSpace(r.Origin))
	r.Destination = strings.ToUpper(strings.TrimSpace(r.Destination))
	r.Date = strings.TrimSpace(r.Date)
	if r.Passengers == 0 {
		r.Passengers = 1
	}
}

// Validate validates the search request
func (r *SearchRequest) Validate() error {
	if r.Origin == "" {
		return NewValidationError("Parameter 'origin' is required")
	}
	if r.Destination == "" {
		return NewValidationError("Parameter 'destination' is required")
	}
	if r.Date == "" {
		return NewValidationError("Parameter 'date' is required")
	}
	if _, err := ParseTravelDate(r.Date); err != nil {
		return NewValidationError("Invalid travel date, expected YYYY-MM-DD")
	}
	if r.Passengers < 1 || r.Passengers > MaxSearchPassengers {
		return NewValidationError("Passenger count must be between 1 and %d", MaxSearchPassengers)
	}
	return nil
}

// ScheduleOffer is one search result
type ScheduleOffer struct {
	ScheduleID    uuid.UUID    `json:"schedule_id"`
	ScheduleCode  string       `json:"schedule_code"`
	CompanyName   string       `json:"company_name"`
	CompanyRating float64      `json:"company_rating"`
	BusNumber     string       `json:"bus_number"`
	BusType       string       `json:"bus_type"`
	Amenities     []string     `json:"amenities"`
	Route         RouteSummary `json:"route"`
	TravelDate    string       `json:"travel_date"`
	DepartureTime string       `json:"departure_time"`
	ArrivalTime   string       `json:"arrival_time"`
	Pricing       struct {
		BasePrice  float64 `json:"base_price"`
		TotalPrice float64 `json:"total_price"`
		Currency   string  `json:"currency"`
	} `json:"pricing"`
	Availability struct {
		AvailableSeats int  `json:"available_seats"`
		SeatsNeeded    int  `json:"seats_needed"`
		IsAvailable    bool `json:"is_available"`
	} `json:"availability"`
}

// SearchResponse is returned from the search endpoint
type SearchResponse struct {
	Offers       []ScheduleOffer `json:"schedules"`
	SearchParams SearchRequest   `json:"search_params"`
	TotalResults int             `json:"total_results"`
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage layout for travel dates
const DateLayout = "2006-01-02"

// Schedule is a recurring trip template joined with its bus and route.
// It is read-only reference data for the booking core.
type Schedule struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	ScheduleCode   string      `json:"schedule_code" db:"schedule_code"`
	BusID          uuid.UUID   `json:"bus_id" db:"bus_id"`
	RouteID        uuid.UUID   `json:"route_id" db:"route_id"`
	DepartureTime  string      `json:"departure_time" db:"departure_time"`
	ArrivalTime    string      `json:"arrival_time" db:"arrival_time"`
	DaysOfWeek     StringArray `json:"days_of_week" db:"days_of_week"`
	Price          float64     `json:"price" db:"price"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	EffectiveFrom  time.Time   `json:"effective_from" db:"effective_from"`
	EffectiveUntil *time.Time  `json:"effective_until,omitempty" db:"effective_until"`

	// Bus
	TotalSeats int         `json:"total_seats" db:"total_seats"`
	BusNumber  string      `json:"bus_number" db:"bus_number"`
	BusType    string      `json:"bus_type" db:"bus_type"`
	Amenities  StringArray `json:"amenities" db:"amenities"`

	// Company
	CompanyName   string  `json:"company_name" db:"company_name"`
	CompanyRating float64 `json:"company_rating" db:"company_rating"`

	// Route
	RouteCode       string  `json:"route_code" db:"route_code"`
	OriginCode      string  `json:"origin_code" db:"origin_code"`
	OriginName      string  `json:"origin_name" db:"origin_name"`
	DestinationCode string  `json:"destination_code" db:"destination_code"`
	DestinationName string  `json:"destination_name" db:"destination_name"`
	DistanceKm      int     `json:"distance_km" db:"distance_km"`
	DurationHours   float64 `json:"duration_hours" db:"duration_hours"`
}

// WeekdayName returns the lowercase weekday name used in days_of_week
func WeekdayName(d time.Time) string {
	return strings.ToLower(d.Weekday().String())
}

// EligibleOn checks the schedule against a travel date.
// It returns an empty reason when the schedule operates on that date.
func (s *Schedule) EligibleOn(travelDate time.Time) (bool, string) {
	if !s.IsActive {
		return false, "Schedule is not active"
	}

	d := truncateDate(travelDate)
	if d.Before(truncateDate(s.EffectiveFrom)) {
		return false, "Schedule is not yet in effect on " + d.Format(DateLayout)
	}
	if s.EffectiveUntil != nil && d.After(truncateDate(*s.EffectiveUntil)) {
		return false, "Schedule is no longer in effect on " + d.Format(DateLayout)
	}

	day := WeekdayName(d)
	for _, served := range s.DaysOfWeek {
		if strings.EqualFold(strings.TrimSpace(served), day) {
			return true, ""
		}
	}
	return false, "Schedule does not operate on " + day
}

// SeatInRange reports whether seat is a valid seat number for the bus
func (s *Schedule) SeatInRange(seat int) bool {
	return seat >= 1 && seat <= s.TotalSeats
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseTravelDate parses a YYYY-MM-DD date into a UTC midnight time
func ParseTravelDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(value))
}

// IsPastDate reports whether travelDate is before the calendar day of now
func IsPastDate(travelDate, now time.Time) bool {
	return truncateDate(travelDate).Before(truncateDate(now))
}

// ScheduleDetails is the public view of a schedule
type ScheduleDetails struct {
	ID      uuid.UUID `json:"id"`
	Code    string    `json:"code"`
	Company struct {
		Name   string  `json:"name"`
		Rating float64 `json:"rating"`
	} `json:"company"`
	Bus struct {
		Number     string   `json:"number"`
		Type       string   `json:"type"`
		TotalSeats int      `json:"total_seats"`
		Amenities  []string `json:"amenities"`
	} `json:"bus"`
	Route    RouteSummary `json:"route"`
	Schedule struct {
		DepartureTime  string   `json:"departure_time"`
		ArrivalTime    string   `json:"arrival_time"`
		DaysOfWeek     []string `json:"days_of_week"`
		Price          float64  `json:"price"`
		EffectiveFrom  string   `json:"effective_from"`
		EffectiveUntil *string  `json:"effective_until,omitempty"`
	} `json:"schedule"`
}

// RouteSummary describes route endpoints
type RouteSummary struct {
	Code        string   `json:"code"`
	Origin      CityInfo `json:"origin"`
	Destination CityInfo `json:"destination"`
	DistanceKm  int      `json:"distance_km"`
	Duration    float64  `json:"duration_hours"`
}

// CityInfo is a city code and display name
type CityInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Details builds the public view of the schedule
func (s *Schedule) Details() ScheduleDetails {
	var d ScheduleDetails
	d.ID = s.ID
	d.Code = s.ScheduleCode
	d.Company.Name = s.CompanyName
	d.Company.Rating = s.CompanyRating
	d.Bus.Number = s.BusNumber
	d.Bus.Type = s.BusType
	d.Bus.TotalSeats = s.TotalSeats
	d.Bus.Amenities = nonNilStrings(s.Amenities)
	d.Route = s.RouteSummary()
	d.Schedule.DepartureTime = s.DepartureTime
	d.Schedule.ArrivalTime = s.ArrivalTime
	d.Schedule.DaysOfWeek = nonNilStrings(s.DaysOfWeek)
	d.Schedule.Price = s.Price
	d.Schedule.EffectiveFrom = s.EffectiveFrom.Format(DateLayout)
	if s.EffectiveUntil != nil {
		until := s.EffectiveUntil.Format(DateLayout)
		d.Schedule.EffectiveUntil = &until
	}
	return d
}

// RouteSummary returns the route endpoints of the schedule
func (s *Schedule) RouteSummary() RouteSummary {
	return RouteSummary{
		Code:        s.RouteCode,
		Origin:      CityInfo{Code: s.OriginCode, Name: s.OriginName},
		Destination: CityInfo{Code: s.DestinationCode, Name: s.DestinationName},
		DistanceKm:  s.DistanceKm,
		Duration:    s.DurationHours,
	}
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// PopularRoute is a route ranked by completed bookings
type PopularRoute struct {
	RouteCode       string  `json:"route_code" db:"route_code"`
	OriginCode      string  `json:"origin_code" db:"origin_code"`
	OriginName      string  `json:"origin_name" db:"origin_name"`
	DestinationCode string  `json:"destination_code" db:"destination_code"`
	DestinationName string  `json:"destination_name" db:"destination_name"`
	BasePrice       float64 `json:"base_price" db:"base_price"`
	DurationHours   float64 `json:"duration_hours" db:"duration_hours"`
	BookingCount    int     `json:"booking_count" db:"booking_count"`
}

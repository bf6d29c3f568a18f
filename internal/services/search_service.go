package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swiftbus/booking-backend/internal/metrics"
	"github.com/swiftbus/booking-backend/internal/models"
	"golang.org/x/sync/errgroup"
)

// availabilityConcurrency bounds parallel seat lookups per search
const availabilityConcurrency = 8

// popularRoutesLimit is the number of routes on the home page
const popularRoutesLimit = 10

// SearchService handles schedule search and catalog lookups
type SearchService struct {
	schedules ScheduleStore
	inventory *SeatInventoryService
	currency  string
	now       Clock
	logger    *logrus.Logger
}

// NewSearchService creates a new search service
func NewSearchService(schedules ScheduleStore, inventory *SeatInventoryService, currency string, now Clock, logger *logrus.Logger) *SearchService {
	if now == nil {
		now = time.Now
	}
	return &SearchService{
		schedules: schedules,
		inventory: inventory,
		currency:  currency,
		now:       now,
		logger:    logger,
	}
}

// SearchSchedules returns schedules between two cities that operate on the
// date and have enough free seats, ordered by departure time then id
func (s *SearchService) SearchSchedules(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	travelDate, _ := models.ParseTravelDate(req.Date)
	now := s.now()
	if models.IsPastDate(travelDate, now) {
		return nil, models.NewValidationError("Travel date cannot be in the past")
	}

	s.logger.WithFields(logrus.Fields{
		"origin":      req.Origin,
		"destination": req.Destination,
		"date":        req.Date,
		"passengers":  req.Passengers,
	}).Debug("Processing search request")

	candidates, err := s.schedules.FindCandidates(ctx, req.Origin, req.Destination, travelDate)
	if err != nil {
		return nil, models.NewInternalError("Failed to search schedules", err)
	}

	eligible := make([]models.Schedule, 0, len(candidates))
	for _, schedule := range candidates {
		if ok, _ := schedule.EligibleOn(travelDate); ok {
			eligible = append(eligible, schedule)
		}
	}

	// Seat counts are looked up in parallel; each goroutine owns one slot.
	available := make([]int, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(availabilityConcurrency)
	for i := range eligible {
		i := i
		g.Go(func() error {
			free, err := s.inventory.availableSeats(gctx, &eligible[i], travelDate, now)
			if err != nil {
				return err
			}
			available[i] = len(free)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	offers := make([]models.ScheduleOffer, 0, len(eligible))
	for i := range eligible {
		if available[i] < req.Passengers {
			continue
		}
		offers = append(offers, buildOffer(&eligible[i], req, available[i], s.currency))
	}

	sort.SliceStable(offers, func(a, b int) bool {
		if offers[a].DepartureTime != offers[b].DepartureTime {
			return offers[a].DepartureTime < offers[b].DepartureTime
		}
		return offers[a].ScheduleID.String() < offers[b].ScheduleID.String()
	})

	metrics.SearchDuration.Observe(time.Since(startTime).Seconds())
	s.logger.WithFields(logrus.Fields{
		"origin":        req.Origin,
		"destination":   req.Destination,
		"results":       len(offers),
		"response_time": time.Since(startTime).Milliseconds(),
	}).Info("Search completed")

	return &models.SearchResponse{
		Offers:       offers,
		SearchParams: *req,
		TotalResults: len(offers),
	}, nil
}

func buildOffer(schedule *models.Schedule, req *models.SearchRequest, available int, currency string) models.ScheduleOffer {
	offer := models.ScheduleOffer{
		ScheduleID:    schedule.ID,
		ScheduleCode:  schedule.ScheduleCode,
		CompanyName:   schedule.CompanyName,
		CompanyRating: schedule.CompanyRating,
		BusNumber:     schedule.BusNumber,
		BusType:       schedule.BusType,
		Amenities:     []string(schedule.Amenities),
		Route:         schedule.RouteSummary(),
		TravelDate:    req.Date,
		DepartureTime: schedule.DepartureTime,
		ArrivalTime:   schedule.ArrivalTime,
	}
	if offer.Amenities == nil {
		offer.Amenities = []string{}
	}
	offer.Pricing.BasePrice = schedule.Price
	offer.Pricing.TotalPrice = schedule.Price * float64(req.Passengers)
	offer.Pricing.Currency = currency
	offer.Availability.AvailableSeats = available
	offer.Availability.SeatsNeeded = req.Passengers
	offer.Availability.IsAvailable = available >= req.Passengers
	return offer
}

// ScheduleDetails returns the public view of one schedule
func (s *SearchService) ScheduleDetails(ctx context.Context, id uuid.UUID) (*models.ScheduleDetails, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, models.NewInternalError("Failed to load schedule", err)
	}
	if schedule == nil {
		return nil, models.NewNotFoundError("Schedule")
	}
	details := schedule.Details()
	return &details, nil
}

// PopularRoutes returns the most booked active routes
func (s *SearchService) PopularRoutes(ctx context.Context) ([]models.PopularRoute, error) {
	routes, err := s.schedules.PopularRoutes(ctx, popularRoutesLimit)
	if err != nil {
		return nil, models.NewInternalError("Failed to load popular routes", err)
	}
	return routes, nil
}

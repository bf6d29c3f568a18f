package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/swiftbus/booking-backend/internal/models"
)

// ScheduleRepository reads the schedule catalog joined with bus, company and route data
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleSelect = `
	SELECT
		s.id, s.schedule_code, s.bus_id, s.route_id,
		to_char(s.departure_time, 'HH24:MI') AS departure_time,
		to_char(s.arrival_time, 'HH24:MI') AS arrival_time,
		s.days_of_week, s.price, s.is_active, s.effective_from, s.effective_until,
		b.total_seats, b.bus_number, b.bus_type, b.amenities,
		c.name AS company_name, c.rating AS company_rating,
		r.route_code,
		oc.city_code AS origin_code, oc.name AS origin_name,
		dc.city_code AS destination_code, dc.name AS destination_name,
		r.distance_km, r.estimated_duration_hours AS duration_hours
	FROM schedules s
	JOIN buses b ON b.id = s.bus_id
	JOIN bus_companies c ON c.id = b.company_id
	JOIN routes r ON r.id = s.route_id
	JOIN cities oc ON oc.id = r.origin_city_id
	JOIN cities dc ON dc.id = r.destination_city_id
`

// GetByID retrieves a schedule with its bus and route. Returns nil, nil when missing.
func (r *ScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	query := scheduleSelect + ` WHERE s.id = $1`

	var schedule models.Schedule
	err := conn(ctx, r.db).GetContext(ctx, &schedule, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// FindCandidates returns active schedules on active routes between two city
// codes that operate on the travel date
func (r *ScheduleRepository) FindCandidates(ctx context.Context, origin, destination string, travelDate time.Time) ([]models.Schedule, error) {
	query := scheduleSelect + `
		WHERE oc.city_code = $1
		  AND dc.city_code = $2
		  AND s.is_active = true
		  AND r.is_active = true
		  AND b.status = 'active'
		  AND s.effective_from <= $3
		  AND (s.effective_until IS NULL OR s.effective_until >= $3)
		  AND $4 = ANY(s.days_of_week)
		ORDER BY s.departure_time, s.id
	`

	schedules := []models.Schedule{}
	err := conn(ctx, r.db).SelectContext(ctx, &schedules, query,
		origin, destination, travelDate, models.WeekdayName(travelDate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedules: %w", err)
	}
	return schedules, nil
}

// PopularRoutes ranks active routes by confirmed and completed bookings
func (r *ScheduleRepository) PopularRoutes(ctx context.Context, limit int) ([]models.PopularRoute, error) {
	query := `
		SELECT
			r.route_code,
			oc.city_code AS origin_code, oc.name AS origin_name,
			dc.city_code AS destination_code, dc.name AS destination_name,
			r.base_price,
			r.estimated_duration_hours AS duration_hours,
			COUNT(bk.id) AS booking_count
		FROM routes r
		JOIN cities oc ON oc.id = r.origin_city_id
		JOIN cities dc ON dc.id = r.destination_city_id
		LEFT JOIN schedules s ON s.route_id = r.id
		LEFT JOIN bookings bk ON bk.schedule_id = s.id
			AND bk.booking_status IN ('confirmed', 'completed')
		WHERE r.is_active = true
		GROUP BY r.id, r.route_code, oc.city_code, oc.name, dc.city_code, dc.name,
			r.base_price, r.estimated_duration_hours
		ORDER BY booking_count DESC, r.base_price ASC
		LIMIT $1
	`

	routes := []models.PopularRoute{}
	if err := conn(ctx, r.db).SelectContext(ctx, &routes, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get popular routes: %w", err)
	}
	return routes, nil
}

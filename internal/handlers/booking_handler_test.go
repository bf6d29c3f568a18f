package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBookingBody() map[string]interface{} {
	return map[string]interface{}{
		"schedule_id":  uuid.NewString(),
		"travel_date":  futureDate(5),
		"seat_numbers": []int{5, 6},
		"passenger_details": []map[string]interface{}{
			{"name": "Abebe Kebede", "age": 34},
			{"name": "Sara Tesfaye", "age": 29},
		},
	}
}

func TestCreateBookingHandler(t *testing.T) {
	t.Run("Requires Authentication", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/v1/bookings", "", validBookingBody())
		assertError(t, w, http.StatusUnauthorized, "MISSING_AUTH")
	})

	t.Run("Rejects Forged Token", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/v1/bookings", "not.a.jwt", validBookingBody())
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/v1/bookings", s.token(t), `{"schedule_id":`)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("Seat And Passenger Counts Differ", func(t *testing.T) {
		s := newTestServer(t)
		body := validBookingBody()
		body["seat_numbers"] = []int{5, 6, 7}

		w := s.do(http.MethodPost, "/api/v1/bookings", s.token(t), body)
		resp := assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
		assert.Contains(t, resp["message"], "must match passenger count")
	})

	t.Run("Duplicate Seat", func(t *testing.T) {
		s := newTestServer(t)
		body := validBookingBody()
		body["seat_numbers"] = []int{5, 5}

		w := s.do(http.MethodPost, "/api/v1/bookings", s.token(t), body)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("Unknown Schedule", func(t *testing.T) {
		s := newTestServer(t)
		s.mock.ExpectQuery(`FROM schedules`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := s.do(http.MethodPost, "/api/v1/bookings", s.token(t), validBookingBody())
		assertError(t, w, http.StatusNotFound, "NOT_FOUND")
		assert.NoError(t, s.mock.ExpectationsWereMet())
	})
}

func TestListBookingsHandler(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery(`FROM bookings`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := s.do(http.MethodGet, "/api/v1/bookings?limit=500", s.token(t), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])
	assert.Equal(t, float64(0), data["offset"])
	assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestBookingLookupsHandler(t *testing.T) {
	paths := map[string]string{
		"Get":            "/api/v1/bookings/%s",
		"Payment Status": "/api/v1/bookings/%s/payment",
		"Ticket":         "/api/v1/bookings/%s/ticket",
	}

	for name, pattern := range paths {
		t.Run(name+" Unknown", func(t *testing.T) {
			s := newTestServer(t)
			s.mock.ExpectQuery(`FROM bookings`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

			w := s.do(http.MethodGet, fmt.Sprintf(pattern, uuid.NewString()), s.token(t), nil)
			assertError(t, w, http.StatusNotFound, "NOT_FOUND")
		})

		t.Run(name+" Malformed ID", func(t *testing.T) {
			s := newTestServer(t)
			w := s.do(http.MethodGet, fmt.Sprintf(pattern, "BK2026000001"), s.token(t), nil)
			assertError(t, w, http.StatusNotFound, "NOT_FOUND")
			assert.NoError(t, s.mock.ExpectationsWereMet())
		})
	}
}

func TestCancelBookingHandler(t *testing.T) {
	t.Run("Unknown Booking", func(t *testing.T) {
		s := newTestServer(t)
		s.mock.ExpectQuery(`FROM bookings`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := s.do(http.MethodPost, "/api/v1/bookings/"+uuid.NewString()+"/cancel", s.token(t), map[string]string{"reason": "plans changed"})
		assertError(t, w, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("Bad Body", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/v1/bookings/"+uuid.NewString()+"/cancel", s.token(t), `{"reason":`)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

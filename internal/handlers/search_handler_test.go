package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}

func TestSearchSchedulesHandler(t *testing.T) {
	t.Run("Missing Origin", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/search/schedules?destination=BDR&date="+futureDate(3), "", nil)
		body := assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
		assert.Contains(t, body["message"], "origin")
	})

	t.Run("Too Many Passengers", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/search/schedules?origin=ADD&destination=BDR&passengers=11&date="+futureDate(3), "", nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("Non Numeric Passengers", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/search/schedules?origin=ADD&destination=BDR&passengers=two&date="+futureDate(3), "", nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("Past Date", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/search/schedules?origin=ADD&destination=BDR&date="+futureDate(-2), "", nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("No Results", func(t *testing.T) {
		s := newTestServer(t)
		s.mock.ExpectQuery(`FROM schedules`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := s.do(http.MethodGet, "/api/v1/search/schedules?origin=add&destination=bdr&date="+futureDate(3), "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]interface{})
		assert.Equal(t, float64(0), data["total_results"])
		params := data["search_params"].(map[string]interface{})
		assert.Equal(t, "ADD", params["origin"])
		assert.Equal(t, float64(1), params["passengers"])
		assert.NoError(t, s.mock.ExpectationsWereMet())
	})
}

func TestGetAvailableSeatsHandler(t *testing.T) {
	t.Run("Malformed Schedule ID", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/schedules/not-a-uuid/seats?date="+futureDate(1), "", nil)
		assertError(t, w, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("Missing Date", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/schedules/"+uuid.NewString()+"/seats", "", nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("Bad Date Format", func(t *testing.T) {
		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/v1/schedules/"+uuid.NewString()+"/seats?date=01-10-2026", "", nil)
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("Unknown Schedule", func(t *testing.T) {
		s := newTestServer(t)
		s.mock.ExpectQuery(`FROM schedules`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		w := s.do(http.MethodGet, "/api/v1/schedules/"+uuid.NewString()+"/seats?date="+futureDate(1), "", nil)
		assertError(t, w, http.StatusNotFound, "NOT_FOUND")
		assert.NoError(t, s.mock.ExpectationsWereMet())
	})
}

func TestGetScheduleHandler(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery(`FROM schedules`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := s.do(http.MethodGet, "/api/v1/schedules/"+uuid.NewString(), "", nil)
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")
}

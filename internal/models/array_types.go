package models

import (
	"database/sql/driver"
	"sort"

	"github.com/lib/pq"
)

// SeatNumbers is an ordered list of seat numbers stored as INT[] in PostgreSQL
type SeatNumbers []int

// Value implements the driver.Valuer interface
func (s SeatNumbers) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	arr := make(pq.Int64Array, len(s))
	for i, n := range s {
		arr[i] = int64(n)
	}
	return arr.Value()
}

// Scan implements the sql.Scanner interface
func (s *SeatNumbers) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return err
	}
	out := make(SeatNumbers, len(arr))
	for i, n := range arr {
		out[i] = int(n)
	}
	*s = out
	return nil
}

// Int64s converts the list for use with ANY($n) parameters
func (s SeatNumbers) Int64s() pq.Int64Array {
	arr := make(pq.Int64Array, len(s))
	for i, n := range s {
		arr[i] = int64(n)
	}
	return arr
}

// Sorted returns an ascending copy
func (s SeatNumbers) Sorted() SeatNumbers {
	out := make(SeatNumbers, len(s))
	copy(out, s)
	sort.Ints(out)
	return out
}

// StringArray is a custom type for handling TEXT[] arrays in PostgreSQL
type StringArray []string

// Value implements the driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.StringArray(a).Value()
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	return (*pq.StringArray)(a).Scan(src)
}

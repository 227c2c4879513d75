package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"qr-parking-backend/internal/model"
)

// SearchLimit caps each list returned by Search.
const SearchLimit = 200

// PeriodCount is the number of entries and exits within one day or month.
type PeriodCount struct {
	Period  string `json:"period"`
	Entries int    `json:"entries"`
	Exits   int    `json:"exits"`
}

// LotSummary describes one area on the dashboard.
type LotSummary struct {
	AreaCode     string   `json:"area_code"`
	AreaName     string   `json:"area_name"`
	Capacity     int      `json:"capacity"`
	CurrentCount int      `json:"current_count"`
	Occupancy    int      `json:"occupancy"` // recounted from open sessions
	Plates       []string `json:"plates"`
}

// Dashboard is the administrator summary.
type Dashboard struct {
	RegisteredToday int64        `json:"registered_today"`
	TotalRegistered int64        `json:"total_registered"`
	ActiveParked    int64        `json:"active_parked"`
	EntriesToday    int64        `json:"entries_today"`
	ExitsToday      int64        `json:"exits_today"`
	OverstayCount   int64        `json:"overstay_count"`
	Lots            []LotSummary `json:"lots"`
}

// SearchResult holds matching sessions and registrations.
type SearchResult struct {
	Sessions []model.ParkingSession `json:"sessions"`
	Vehicles []model.Vehicle        `json:"vehicles"`
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// StartOfMonth returns the first instant of t's month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// Search matches sessions by plate substring or exact id, and vehicles by
// plate or owner name substring. Matching is case-insensitive.
func (s *gormStore) Search(ctx context.Context, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	result := &SearchResult{Sessions: []model.ParkingSession{}, Vehicles: []model.Vehicle{}}
	if query == "" {
		return result, nil
	}
	like := "%" + strings.ToLower(query) + "%"

	sq := s.db.WithContext(ctx).Where("LOWER(plate_number) LIKE ?", like)
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		sq = sq.Or("id = ?", id)
	}
	if err := sq.Order("id DESC").Limit(SearchLimit).Find(&result.Sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to search sessions: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Where("LOWER(plate_number) LIKE ? OR LOWER(full_name) LIKE ?", like, like).
		Order("plate_number").
		Limit(SearchLimit).
		Find(&result.Vehicles).Error; err != nil {
		return nil, fmt.Errorf("failed to search vehicles: %w", err)
	}
	return result, nil
}

func (s *gormStore) Dashboard(ctx context.Context, now time.Time, loc *time.Location) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	today := StartOfDay(now, loc)
	tomorrow := today.AddDate(0, 0, 1)
	d := &Dashboard{Lots: []LotSummary{}}

	counts := []struct {
		dst   *int64
		model any
		where string
		args  []any
	}{
		{&d.RegisteredToday, &model.Vehicle{}, "created_at >= ? AND created_at < ?", []any{today, tomorrow}},
		{&d.TotalRegistered, &model.Vehicle{}, "1 = 1", nil},
		{&d.ActiveParked, &model.ParkingSession{}, "time_out IS NULL", nil},
		{&d.EntriesToday, &model.ParkingSession{}, "time_in >= ? AND time_in < ?", []any{today, tomorrow}},
		{&d.ExitsToday, &model.ParkingSession{}, "time_out >= ? AND time_out < ?", []any{today, tomorrow}},
		{&d.OverstayCount, &model.ParkingSession{}, "time_out IS NULL AND time_in < ?", []any{today}},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to build dashboard: %w", err)
		}
	}

	areas, err := s.ListAreas(ctx)
	if err != nil {
		return nil, err
	}
	var open []model.ParkingSession
	if err := db.Select("plate_number", "parking_area").
		Where("time_out IS NULL AND parking_area IS NOT NULL").
		Order("plate_number").
		Find(&open).Error; err != nil {
		return nil, fmt.Errorf("failed to list parked vehicles: %w", err)
	}
	plates := make(map[string][]string)
	for _, sess := range open {
		plates[sess.ParkingArea.String] = append(plates[sess.ParkingArea.String], sess.PlateNumber)
	}

	for _, a := range areas {
		p := plates[a.AreaCode]
		if p == nil {
			p = []string{}
		}
		d.Lots = append(d.Lots, LotSummary{
			AreaCode:     a.AreaCode,
			AreaName:     a.AreaName,
			Capacity:     a.Capacity,
			CurrentCount: a.CurrentCount,
			Occupancy:    len(p),
			Plates:       p,
		})
	}
	return d, nil
}

// DailyReport counts entries and exits per day over the last `days` days,
// newest first. Days with no movement are omitted.
func (s *gormStore) DailyReport(ctx context.Context, now time.Time, loc *time.Location, days int) ([]PeriodCount, error) {
	since := StartOfDay(now, loc).AddDate(0, 0, -(days - 1))
	return s.bucket(ctx, since, loc, "2006-01-02")
}

// MonthlyReport counts entries and exits per YYYY-MM over the last `months` months.
func (s *gormStore) MonthlyReport(ctx context.Context, now time.Time, loc *time.Location, months int) ([]PeriodCount, error) {
	since := StartOfMonth(now, loc).AddDate(0, -(months - 1), 0)
	return s.bucket(ctx, since, loc, "2006-01")
}

func (s *gormStore) bucket(ctx context.Context, since time.Time, loc *time.Location, layout string) ([]PeriodCount, error) {
	var sessions []model.ParkingSession
	if err := s.db.WithContext(ctx).
		Select("time_in", "time_out").
		Where("time_in >= ? OR time_out >= ?", since, since).
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to load sessions for report: %w", err)
	}

	byPeriod := make(map[string]*PeriodCount)
	get := func(t time.Time) *PeriodCount {
		key := t.In(loc).Format(layout)
		pc, ok := byPeriod[key]
		if !ok {
			pc = &PeriodCount{Period: key}
			byPeriod[key] = pc
		}
		return pc
	}
	for _, sess := range sessions {
		if !sess.TimeIn.Before(since) {
			get(sess.TimeIn).Entries++
		}
		if sess.TimeOut.Valid && !sess.TimeOut.Time.Before(since) {
			get(sess.TimeOut.Time).Exits++
		}
	}

	out := make([]PeriodCount, 0, len(byPeriod))
	for _, pc := range byPeriod {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out, nil
}

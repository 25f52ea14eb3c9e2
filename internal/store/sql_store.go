package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/travelgallery/internal/common"
	"github.com/jo-hoe/travelgallery/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on database/sql. It speaks both the embedded
// SQLite driver and PostgreSQL through pgx.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database for driver ("sqlite" or "pgx") and migrates the schema.
func Open(driver, dsn string) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case common.DriverSQLite:
		// Busy timeout to avoid SQLITE_BUSY in concurrent access.
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", dsn, common.SQLiteBusyTimeoutMS))
	case common.DriverPgx:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == common.DriverSQLite {
		// A single writer keeps SQLite from returning SQLITE_BUSY under concurrent batches.
		db.SetMaxOpenConns(1)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore opens an SQLite database at path.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return Open(common.DriverSQLite, path)
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trips (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			trip_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			thumbnail_filename TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			title TEXT,
			description TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			altitude DOUBLE PRECISION,
			taken_at TEXT,
			camera_make TEXT,
			camera_model TEXT,
			lens_model TEXT,
			focal_length DOUBLE PRECISION,
			aperture DOUBLE PRECISION,
			exposure_time TEXT,
			iso BIGINT,
			location_name TEXT,
			city TEXT,
			state TEXT,
			country TEXT,
			country_code TEXT,
			landmark TEXT,
			width BIGINT NOT NULL,
			height BIGINT NOT NULL,
			file_size BIGINT NOT NULL,
			mime_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_photos_trip ON photos (trip_id)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			trip_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			transport_profile TEXT NOT NULL,
			geometry TEXT,
			total_distance DOUBLE PRECISION,
			total_duration DOUBLE PRECISION,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS route_stops (
			id TEXT PRIMARY KEY,
			route_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			order_index BIGINT NOT NULL,
			location_name TEXT,
			city TEXT,
			state TEXT,
			country TEXT,
			country_code TEXT,
			landmark TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_route_stops_route ON route_stops (route_id, order_index)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != common.DriverPgx {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// --- trips ------------------------------------------------------------------

func (s *SQLStore) CreateTrip(ctx context.Context, trip *model.Trip) error {
	if trip == nil || trip.ID == "" {
		return errors.New("trip.ID is required")
	}
	now := time.Now().UTC()
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = now
	}
	trip.UpdatedAt = trip.CreatedAt
	_, err := s.exec(ctx, `INSERT INTO trips (id, title, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		trip.ID, trip.Title, trip.Description, formatTime(trip.CreatedAt), formatTime(trip.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

func (s *SQLStore) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	var (
		t                model.Trip
		desc             sql.NullString
		created, updated string
	)
	err := s.queryRow(ctx, `SELECT id, title, description, created_at, updated_at FROM trips WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &desc, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trip %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan trip: %w", err)
	}
	t.Description = nullString(desc)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

// --- photos -----------------------------------------------------------------

const photoColumns = `id, trip_id, filename, thumbnail_filename, original_filename, title, description,
	latitude, longitude, altitude, taken_at, camera_make, camera_model, lens_model, focal_length, aperture,
	exposure_time, iso, location_name, city, state, country, country_code, landmark,
	width, height, file_size, mime_type, created_at, updated_at`

func (s *SQLStore) CreatePhoto(ctx context.Context, p *model.Photo) error {
	if p == nil || p.ID == "" {
		return errors.New("photo.ID is required")
	}
	if p.TripID == "" {
		return errors.New("photo.TripID is required")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	var takenAt *string
	if p.TakenAt != nil {
		v := formatTime(*p.TakenAt)
		takenAt = &v
	}
	_, err := s.exec(ctx, `INSERT INTO photos (`+photoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TripID, p.Filename, p.ThumbnailName, p.OriginalFilename, p.Title, p.Description,
		p.Latitude, p.Longitude, p.Altitude, takenAt, p.Make, p.Model, p.Lens, p.FocalLength, p.Aperture,
		p.ExposureTime, p.ISO, p.LocationName, p.City, p.State, p.Country, p.CountryCode, p.Landmark,
		p.Width, p.Height, p.FileSize, p.MimeType, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPhoto(ctx context.Context, id string) (*model.Photo, error) {
	row := s.queryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	p, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	return p, nil
}

func (s *SQLStore) ListPhotosByTrip(ctx context.Context, tripID string) ([]model.Photo, error) {
	rows, err := s.query(ctx, `SELECT `+photoColumns+` FROM photos WHERE trip_id = ? ORDER BY created_at, id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UpdatePhotoLocation(ctx context.Context, id string, loc model.Enrichment) (*model.Photo, error) {
	res, err := s.exec(ctx, `UPDATE photos
		SET location_name = ?, city = ?, state = ?, country = ?, country_code = ?, landmark = ?, updated_at = ?
		WHERE id = ?`,
		loc.LocationName, loc.City, loc.State, loc.Country, loc.CountryCode, loc.Landmark, formatTime(time.Now().UTC()), id)
	if err != nil {
		return nil, fmt.Errorf("update photo location: %w", err)
	}
	if err := requireAffected(res, "photo", id); err != nil {
		return nil, err
	}
	return s.GetPhoto(ctx, id)
}

func (s *SQLStore) DeletePhoto(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM photos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return requireAffected(res, "photo", id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPhoto(sc scanner) (*model.Photo, error) {
	var (
		p                                             model.Photo
		title, desc, takenAt                          sql.NullString
		lat, lon, alt, focal, aperture                sql.NullFloat64
		camMake, camModel, lens, exposure             sql.NullString
		iso                                           sql.NullInt64
		locName, city, state, country, code, landmark sql.NullString
		created, updated                              string
	)
	if err := sc.Scan(
		&p.ID, &p.TripID, &p.Filename, &p.ThumbnailName, &p.OriginalFilename, &title, &desc,
		&lat, &lon, &alt, &takenAt, &camMake, &camModel, &lens, &focal, &aperture,
		&exposure, &iso, &locName, &city, &state, &country, &code, &landmark,
		&p.Width, &p.Height, &p.FileSize, &p.MimeType, &created, &updated,
	); err != nil {
		return nil, err
	}
	p.Title = nullString(title)
	p.Description = nullString(desc)
	p.Latitude = nullFloat(lat)
	p.Longitude = nullFloat(lon)
	p.Altitude = nullFloat(alt)
	if takenAt.Valid {
		t := parseTime(takenAt.String)
		p.TakenAt = &t
	}
	p.Make = nullString(camMake)
	p.Model = nullString(camModel)
	p.Lens = nullString(lens)
	p.FocalLength = nullFloat(focal)
	p.Aperture = nullFloat(aperture)
	p.ExposureTime = nullString(exposure)
	if iso.Valid {
		v := int(iso.Int64)
		p.ISO = &v
	}
	p.Enrichment = model.Enrichment{
		LocationName: nullString(locName),
		City:         nullString(city),
		State:        nullString(state),
		Country:      nullString(country),
		CountryCode:  nullString(code),
		Landmark:     nullString(landmark),
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// --- routes -----------------------------------------------------------------

const routeColumns = `id, trip_id, title, description, transport_profile, geometry, total_distance, total_duration, created_at, updated_at`

func (s *SQLStore) CreateRoute(ctx context.Context, r *model.Route) error {
	if r == nil || r.ID == "" {
		return errors.New("route.ID is required")
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	_, err := s.exec(ctx, `INSERT INTO routes (`+routeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TripID, r.Title, r.Description, r.Profile, r.Geometry, r.TotalDistance, r.TotalDuration,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	return nil
}

// GetRoute returns the route without its stops; use ListStops for those.
func (s *SQLStore) GetRoute(ctx context.Context, id string) (*model.Route, error) {
	var (
		r                  model.Route
		desc, geometry     sql.NullString
		distance, duration sql.NullFloat64
		created, updated   string
	)
	err := s.queryRow(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = ?`, id).Scan(
		&r.ID, &r.TripID, &r.Title, &desc, &r.Profile, &geometry, &distance, &duration, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("route %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan route: %w", err)
	}
	r.Description = nullString(desc)
	r.Geometry = nullString(geometry)
	r.TotalDistance = nullFloat(distance)
	r.TotalDuration = nullFloat(duration)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func (s *SQLStore) UpdateRouteDerived(ctx context.Context, id string, d model.RouteDerived) (*model.Route, error) {
	res, err := s.exec(ctx, `UPDATE routes SET geometry = ?, total_distance = ?, total_duration = ?, updated_at = ? WHERE id = ?`,
		d.Geometry, d.TotalDistance, d.TotalDuration, formatTime(time.Now().UTC()), id)
	if err != nil {
		return nil, fmt.Errorf("update route derived: %w", err)
	}
	if err := requireAffected(res, "route", id); err != nil {
		return nil, err
	}
	return s.GetRoute(ctx, id)
}

func (s *SQLStore) DeleteRoute(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete route: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM route_stops WHERE route_id = ?`), id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete route stops: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM routes WHERE id = ?`), id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete route: %w", err)
	}
	if err := requireAffected(res, "route", id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete route: %w", err)
	}
	return nil
}

// --- stops ------------------------------------------------------------------

const stopColumns = `id, route_id, title, description, latitude, longitude, order_index,
	location_name, city, state, country, country_code, landmark, created_at, updated_at`

func (s *SQLStore) CreateStop(ctx context.Context, st *model.RouteStop) error {
	if st == nil || st.ID == "" {
		return errors.New("stop.ID is required")
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = st.CreatedAt
	_, err := s.exec(ctx, `INSERT INTO route_stops (`+stopColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.RouteID, st.Title, st.Description, st.Latitude, st.Longitude, st.OrderIndex,
		st.LocationName, st.City, st.State, st.Country, st.CountryCode, st.Landmark,
		formatTime(st.CreatedAt), formatTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert stop: %w", err)
	}
	return nil
}

func (s *SQLStore) GetStop(ctx context.Context, id string) (*model.RouteStop, error) {
	st, err := scanStop(s.queryRow(ctx, `SELECT `+stopColumns+` FROM route_stops WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("stop %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan stop: %w", err)
	}
	return st, nil
}

func (s *SQLStore) UpdateStop(ctx context.Context, st *model.RouteStop) (*model.RouteStop, error) {
	if st == nil || st.ID == "" {
		return nil, errors.New("stop.ID is required")
	}
	res, err := s.exec(ctx, `UPDATE route_stops
		SET title = ?, description = ?, latitude = ?, longitude = ?, order_index = ?,
			location_name = ?, city = ?, state = ?, country = ?, country_code = ?, landmark = ?, updated_at = ?
		WHERE id = ?`,
		st.Title, st.Description, st.Latitude, st.Longitude, st.OrderIndex,
		st.LocationName, st.City, st.State, st.Country, st.CountryCode, st.Landmark,
		formatTime(time.Now().UTC()), st.ID)
	if err != nil {
		return nil, fmt.Errorf("update stop: %w", err)
	}
	if err := requireAffected(res, "stop", st.ID); err != nil {
		return nil, err
	}
	return s.GetStop(ctx, st.ID)
}

func (s *SQLStore) DeleteStop(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM route_stops WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete stop: %w", err)
	}
	return requireAffected(res, "stop", id)
}

func (s *SQLStore) ListStops(ctx context.Context, routeID string) ([]model.RouteStop, error) {
	rows, err := s.query(ctx, `SELECT `+stopColumns+` FROM route_stops WHERE route_id = ? ORDER BY order_index, created_at, id`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list stops: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.RouteStop
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stops: %w", err)
	}
	return out, nil
}

func (s *SQLStore) CountStops(ctx context.Context, routeID string) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM route_stops WHERE route_id = ?`, routeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stops: %w", err)
	}
	return n, nil
}

func (s *SQLStore) SetStopOrder(ctx context.Context, routeID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	now := formatTime(time.Now().UTC())
	for idx, id := range ids {
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE route_stops SET order_index = ?, updated_at = ? WHERE id = ? AND route_id = ?`),
			idx, now, id, routeID)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reorder stop %s: %w", id, err)
		}
		if err := requireAffected(res, "stop", id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

func scanStop(sc scanner) (*model.RouteStop, error) {
	var (
		st                                            model.RouteStop
		desc                                          sql.NullString
		locName, city, state, country, code, landmark sql.NullString
		created, updated                              string
	)
	if err := sc.Scan(&st.ID, &st.RouteID, &st.Title, &desc, &st.Latitude, &st.Longitude, &st.OrderIndex,
		&locName, &city, &state, &country, &code, &landmark, &created, &updated); err != nil {
		return nil, err
	}
	st.Description = nullString(desc)
	st.Enrichment = model.Enrichment{
		LocationName: nullString(locName),
		City:         nullString(city),
		State:        nullString(state),
		Country:      nullString(country),
		CountryCode:  nullString(code),
		Landmark:     nullString(landmark),
	}
	st.CreatedAt = parseTime(created)
	st.UpdatedAt = parseTime(updated)
	return &st, nil
}

// --- helpers ----------------------------------------------------------------

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

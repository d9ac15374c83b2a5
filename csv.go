package accounts

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Export filenames offered by the admin dashboard download links.
const (
	UsersExportFilename = "share_a_ride_users.csv"
	RidesExportFilename = "share_a_ride_rides.csv"
)

// CSVExporter writes the admin data exports. The format is fixed: a header
// row, every field double-quoted with internal quotes doubled, records
// separated by a bare \n. encoding/csv only quotes when it must, so the
// writer is built here instead.
type CSVExporter struct {
	profiles ProfileStore
	rides    RideStore
	activity ActivitySink
	now      func() time.Time
}

type CSVExporterOption func(*CSVExporter)

func WithExporterActivitySink(sink ActivitySink) CSVExporterOption {
	return func(e *CSVExporter) {
		e.activity = normalizeActivitySink(sink)
	}
}

func WithExporterClock(clock func() time.Time) CSVExporterOption {
	return func(e *CSVExporter) {
		if clock != nil {
			e.now = clock
		}
	}
}

func NewCSVExporter(profiles ProfileStore, rides RideStore, opts ...CSVExporterOption) *CSVExporter {
	e := &CSVExporter{
		profiles: profiles,
		rides:    rides,
		activity: noopActivitySink{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	return e
}

var usersExportHeader = []string{
	"id", "email", "first_name", "last_name", "gender", "mobile", "city",
	"facebook_link", "role", "status", "created_at",
}

// WriteUsers streams the full profile list, optionally narrowed by status.
func (e *CSVExporter) WriteUsers(ctx context.Context, w io.Writer, actor ActorRef, filter ProfileFilter) error {
	profiles, err := e.profiles.ListProfiles(ctx, filter)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list profiles for export")
	}

	if err := writeCSVRecord(w, usersExportHeader); err != nil {
		return err
	}

	for _, p := range profiles {
		record := []string{
			p.ID.String(),
			p.Email,
			p.FirstName,
			p.LastName,
			p.Gender,
			p.Mobile,
			p.City,
			p.FacebookLink,
			string(p.Role),
			string(p.Status),
			formatExportTime(p.CreatedAt),
		}
		if err := writeCSVRecord(w, record); err != nil {
			return err
		}
	}

	e.recordExport(ctx, actor, UsersExportFilename, len(profiles))

	return nil
}

var ridesExportHeader = []string{
	"id", "driver_id", "origin", "destination", "departure_at", "seats",
	"seats_left", "status", "created_at",
}

// WriteRides streams the full ride list, optionally narrowed by status.
func (e *CSVExporter) WriteRides(ctx context.Context, w io.Writer, actor ActorRef, filter RideFilter) error {
	rides, err := e.rides.ListRides(ctx, filter)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list rides for export")
	}

	if err := writeCSVRecord(w, ridesExportHeader); err != nil {
		return err
	}

	for _, r := range rides {
		driverID := ""
		if r.DriverID != nil {
			driverID = r.DriverID.String()
		}

		record := []string{
			r.ID.String(),
			driverID,
			r.Origin,
			r.Destination,
			formatExportTime(r.DepartureAt),
			strconv.Itoa(r.Seats),
			strconv.Itoa(r.SeatsLeft()),
			string(r.Status),
			formatExportTime(r.CreatedAt),
		}
		if err := writeCSVRecord(w, record); err != nil {
			return err
		}
	}

	e.recordExport(ctx, actor, RidesExportFilename, len(rides))

	return nil
}

func (e *CSVExporter) recordExport(ctx context.Context, actor ActorRef, filename string, rows int) {
	event := ActivityEvent{
		EventType: ActivityEventExportGenerated,
		Actor:     actor,
		Metadata: map[string]any{
			"filename": filename,
			"rows":     rows,
		},
		OccurredAt: e.now(),
	}

	// Export still succeeded if the sink is down.
	_ = normalizeActivitySink(e.activity).Record(ctx, event)
}

// writeCSVRecord emits one row with every field quoted.
func writeCSVRecord(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package accounts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSVRecordForcedQuoting(t *testing.T) {
	var b strings.Builder
	err := writeCSVRecord(&b, []string{"plain", `has "quotes"`, "has,comma", ""})
	require.NoError(t, err)

	assert.Equal(t, `"plain","has ""quotes""","has,comma",""`+"\n", b.String())
}

func TestExportUsersCSV(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	profile := &Profile{
		ID:        uuid.New(),
		Email:     "rider@example.com",
		FirstName: `Maria "Ria"`,
		LastName:  "Santos, Jr.",
		Mobile:    "+639171234567",
		City:      "Makati",
		Role:      RolePassenger,
		Status:    StatusAccessGranted,
		CreatedAt: &created,
	}

	sink := &recordingSink{}
	exporter := NewCSVExporter(newMemProfiles(profile), newMemRides(),
		WithExporterActivitySink(sink),
	)

	var b strings.Builder
	err := exporter.WriteUsers(context.Background(), &b, ActorRef{ID: "admin-1", Type: "admin"}, ProfileFilter{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	assert.Equal(t, `"id","email","first_name","last_name","gender","mobile","city","facebook_link","role","status","created_at"`, lines[0])
	assert.Contains(t, lines[1], `"Maria ""Ria"""`)
	assert.Contains(t, lines[1], `"Santos, Jr."`)
	assert.Contains(t, lines[1], `"Access Granted"`)
	assert.Contains(t, lines[1], `"2026-01-02T03:04:05Z"`)

	events := sink.ofType(ActivityEventExportGenerated)
	require.Len(t, events, 1)
	assert.Equal(t, UsersExportFilename, events[0].Metadata["filename"])
	assert.Equal(t, 1, events[0].Metadata["rows"])
}

func TestExportUsersCSVStatusFilter(t *testing.T) {
	granted := testProfile(StatusAccessGranted, RolePassenger)
	pending := testProfile(StatusAwaitingAdminApproval, RoleDriver)
	pending.Email = "pending@example.com"

	exporter := NewCSVExporter(newMemProfiles(granted, pending), newMemRides())

	var b strings.Builder
	err := exporter.WriteUsers(context.Background(), &b, ActorRef{}, ProfileFilter{Status: StatusAccessGranted})
	require.NoError(t, err)

	assert.Contains(t, b.String(), granted.Email)
	assert.NotContains(t, b.String(), pending.Email)
}

func TestExportRidesCSV(t *testing.T) {
	ride := testRide(RideStatusOffered)
	ride.Origin = "Makati, CBD"
	ride.PassengerIDs = []uuid.UUID{uuid.New()}

	exporter := NewCSVExporter(newMemProfiles(), newMemRides(ride))

	var b strings.Builder
	err := exporter.WriteRides(context.Background(), &b, ActorRef{ID: "admin-1"}, RideFilter{})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"id","driver_id","origin","destination","departure_at","seats","seats_left","status","created_at"`, lines[0])
	assert.Contains(t, lines[1], `"Makati, CBD"`)
	assert.Contains(t, lines[1], `"3"`)
	assert.Contains(t, lines[1], `"2"`)
	assert.Contains(t, lines[1], `"Offered"`)
}

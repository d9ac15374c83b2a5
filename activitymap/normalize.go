// Package activitymap converts account activity events into a
// transport-agnostic shape for downstream feeds and audit pipelines.
package activitymap

import (
	"strings"
	"time"

	accounts "github.com/sharearide/go-accounts"
)

const (
	// MetadataKeyActorType stores the actor type derived from ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source status for lifecycle transitions.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target status for lifecycle transitions.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyRideID stores the ride id on ride moderation events.
	MetadataKeyRideID = "ride_id"
)

const (
	defaultChannel    = "accounts"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(accounts.ActivityEvent) string
}

// Normalize converts an accounts.ActivityEvent into a generic normalized
// shape. Ride moderation events report the ride as the object; everything
// else reports the account.
func Normalize(event accounts.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(options.actorFallback),
	)

	objectType := options.objectType
	if event.EventType == accounts.ActivityEventRideStatusChanged {
		objectType = "ride"
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
func WithObjectIDResolver(resolver func(accounts.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when the actor id is empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event accounts.ActivityEvent, resolver func(accounts.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if event.EventType == accounts.ActivityEventRideStatusChanged {
		return strings.TrimSpace(event.RideID)
	}
	return strings.TrimSpace(event.AccountID)
}

func normalizeMetadata(event accounts.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value string) {
		if value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type))
	set(MetadataKeyFromStatus, event.FromStatus)
	set(MetadataKeyToStatus, event.ToStatus)

	if event.EventType == accounts.ActivityEventRideStatusChanged {
		set(MetadataKeyRideID, event.RideID)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

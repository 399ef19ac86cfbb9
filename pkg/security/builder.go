package security

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hearthcrm/hearth/pkg/metadata"
	"github.com/hearthcrm/hearth/pkg/observability"
)

// MetadataSource supplies field definitions for an object
type MetadataSource interface {
	ListFields(ctx context.Context, objectAPIName string) ([]metadata.FieldDefinition, error)
}

// RoleSource supplies a user's field-permission rows and admin status
type RoleSource interface {
	UserFieldPermissions(ctx context.Context, userID int64, objectAPIName string) ([]FieldPermission, error)
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AccessEvaluator answers record-level read/write access beyond ownership.
// Implemented by the sharing-rule evaluator.
type AccessEvaluator interface {
	CanRead(ctx context.Context, userID int64, objectAPIName, recordID string, ownerID int64) (bool, error)
	CanWrite(ctx context.Context, userID int64, objectAPIName, recordID string, ownerID int64) (bool, error)
}

// Builder assembles record security contexts. It is stateless; every call
// recomputes from the underlying sources.
type Builder struct {
	metadata MetadataSource
	roles    RoleSource
	access   AccessEvaluator
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// NewBuilder creates a security context builder. metrics may be nil.
func NewBuilder(meta MetadataSource, roles RoleSource, access AccessEvaluator, logger *logrus.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{
		metadata: meta,
		roles:    roles,
		access:   access,
		logger:   logger,
		metrics:  metrics,
	}
}

// BuildContext computes the security context for one user viewing one record.
//
// The field-permission, admin, read-access, and write-access lookups are
// independent and issued concurrently. Any failure collapses to the
// fail-closed context; errors are logged, never propagated, so a transient
// failure can never grant access it shouldn't.
func (b *Builder) BuildContext(ctx context.Context, objectAPIName, recordID string, ownerID, userID int64) *RecordSecurityContext {
	start := time.Now()

	if userID <= 0 {
		b.observe(objectAPIName, "fail_closed", start)
		return NewFailClosedContext(0)
	}

	isOwner := userID == ownerID

	var (
		fields      []metadata.FieldDefinition
		perms       []FieldPermission
		isAdmin     bool
		readAccess  bool
		writeAccess bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fields, err = b.metadata.ListFields(gctx, objectAPIName)
		return err
	})
	g.Go(func() error {
		var err error
		perms, err = b.roles.UserFieldPermissions(gctx, userID, objectAPIName)
		return err
	})
	g.Go(func() error {
		var err error
		isAdmin, err = b.roles.IsAdmin(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		readAccess, err = b.access.CanRead(gctx, userID, objectAPIName, recordID, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		writeAccess, err = b.access.CanWrite(gctx, userID, objectAPIName, recordID, ownerID)
		return err
	})

	if err := g.Wait(); err != nil {
		b.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"object":    objectAPIName,
			"record_id": recordID,
		}).WithError(err).Warn("security context assembly failed, falling back to fail-closed")
		b.observe(objectAPIName, "fail_closed", start)
		return NewFailClosedContext(userID)
	}

	// Admin role or ownership overrides any narrower permission rows
	if isAdmin || isOwner {
		fieldIDs := make([]int64, 0, len(fields))
		for _, f := range fields {
			fieldIDs = append(fieldIDs, f.ID)
		}
		b.observe(objectAPIName, "full_access", start)
		return NewFullAccessContext(userID, isOwner, isAdmin, fieldIDs)
	}

	access := ResolveFieldPermissions(fields, perms)
	b.observe(objectAPIName, "ok", start)
	return &RecordSecurityContext{
		UserID:           userID,
		IsLoaded:         true,
		IsOwner:          false,
		IsAdmin:          false,
		CanRead:          readAccess,
		CanEdit:          writeAccess,
		CanDelete:        false,
		CanManageSharing: false,
		VisibleFieldIDs:  access.VisibleFieldIDs(),
		EditableFieldIDs: access.EditableFieldIDs(),
	}
}

func (b *Builder) observe(object, outcome string, start time.Time) {
	if b.metrics == nil {
		return
	}
	b.metrics.ContextBuildsTotal.WithLabelValues(object, outcome).Inc()
	b.metrics.ContextBuildDuration.Observe(time.Since(start).Seconds())
	if outcome == "fail_closed" {
		b.metrics.ContextFailClosedTotal.Inc()
	}
}

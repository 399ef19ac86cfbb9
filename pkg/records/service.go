package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/audit"
	"github.com/hearthcrm/hearth/pkg/metadata"
	"github.com/hearthcrm/hearth/pkg/security"
	"github.com/hearthcrm/hearth/pkg/sharing"
	"github.com/hearthcrm/hearth/pkg/webhooks"
)

// ErrAccessDenied is returned when the caller's security context does not
// allow the operation. Read denials and missing permissions are reported
// identically; callers learn nothing beyond "no access".
var ErrAccessDenied = errors.New("access denied")

// MetadataCatalog supplies object and field definitions
type MetadataCatalog interface {
	GetObject(ctx context.Context, apiName string) (*metadata.ObjectDefinition, error)
	ListFields(ctx context.Context, objectAPIName string) ([]metadata.FieldDefinition, error)
}

// ContextBuilder assembles record security contexts
type ContextBuilder interface {
	BuildContext(ctx context.Context, objectAPIName, recordID string, ownerID, userID int64) *security.RecordSecurityContext
}

// ShareStore persists manual shares
type ShareStore interface {
	CreateShare(ctx context.Context, share *sharing.ManualShare) error
	DeleteShare(ctx context.Context, shareID int64) error
	ListSharesForRecord(ctx context.Context, objectAPIName, recordID string) ([]sharing.ManualShare, error)
}

// AccessCache invalidates cached sharing verdicts
type AccessCache interface {
	InvalidateRecord(ctx context.Context, objectAPIName, recordID string)
}

// EventDispatcher delivers change events to webhooks
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *webhooks.Event)
}

// Service applies the security engine to record operations. Every read
// passes through the field and sensitive filters; every write passes
// through the update filter; record-level capabilities gate the operation
// itself.
type Service struct {
	store    *Store
	catalog  MetadataCatalog
	builder  ContextBuilder
	shares   ShareStore
	cache    AccessCache
	events   EventDispatcher
	auditLog audit.Logger
	logger   *logrus.Logger
}

// NewService creates a record service. shares, cache, events, and auditLog
// may be nil.
func NewService(store *Store, catalog MetadataCatalog, builder ContextBuilder, shares ShareStore, cache AccessCache, events EventDispatcher, auditLog audit.Logger, logger *logrus.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Service{
		store:    store,
		catalog:  catalog,
		builder:  builder,
		shares:   shares,
		cache:    cache,
		events:   events,
		auditLog: auditLog,
		logger:   logger,
	}
}

// Get retrieves a record as the user is allowed to see it. The record-level
// read verdict and field-level visibility are enforced independently: read
// access gates the whole record, visibility prunes its fields, and the
// sensitive filter prunes further for non-admin callers.
func (s *Service) Get(ctx context.Context, objectAPIName, recordID string, userID int64) (*RecordView, error) {
	rec, err := s.store.Get(ctx, objectAPIName, recordID)
	if err != nil {
		return nil, err
	}

	secCtx := s.builder.BuildContext(ctx, objectAPIName, recordID, rec.OwnerID, userID)
	if !secCtx.IsLoaded || !secCtx.CanRead {
		return nil, ErrAccessDenied
	}

	view, err := s.render(ctx, rec, secCtx)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// List retrieves records of one object, each filtered to what the user may
// see. Records the user cannot read are dropped from the result rather than
// reported as errors.
func (s *Service) List(ctx context.Context, objectAPIName string, userID int64, limit, offset int) ([]RecordView, error) {
	recs, err := s.store.List(ctx, objectAPIName, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]RecordView, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		secCtx := s.builder.BuildContext(ctx, objectAPIName, rec.ID, rec.OwnerID, userID)
		if !secCtx.IsLoaded || !secCtx.CanRead {
			continue
		}
		view, err := s.render(ctx, rec, secCtx)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Create stores a new record owned by the caller
func (s *Service) Create(ctx context.Context, objectAPIName string, userID int64, payload map[string]interface{}) (*RecordView, error) {
	if _, err := s.catalog.GetObject(ctx, objectAPIName); err != nil {
		return nil, err
	}
	fields, err := s.catalog.ListFields(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}

	// The creator owns the record, so every field is writable
	data, custom := splitPayload(payload, fields)
	rec := &Record{
		ObjectAPIName: objectAPIName,
		OwnerID:       userID,
		Data:          data,
		CustomFields:  custom,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventTypeRecordCreate, userID, objectAPIName, rec.ID, "record created")
	s.dispatch(ctx, webhooks.EventRecordCreated, objectAPIName, rec.ID, userID)

	secCtx := s.builder.BuildContext(ctx, objectAPIName, rec.ID, rec.OwnerID, userID)
	view, err := s.render(ctx, rec, secCtx)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Update applies an edit payload to a record, keeping only keys the caller's
// editable field set allows
func (s *Service) Update(ctx context.Context, objectAPIName, recordID string, userID int64, payload map[string]interface{}) (*RecordView, error) {
	rec, err := s.store.Get(ctx, objectAPIName, recordID)
	if err != nil {
		return nil, err
	}

	secCtx := s.builder.BuildContext(ctx, objectAPIName, recordID, rec.OwnerID, userID)
	if !secCtx.IsLoaded || !secCtx.CanEdit {
		return nil, ErrAccessDenied
	}

	fields, err := s.catalog.ListFields(ctx, objectAPIName)
	if err != nil {
		return nil, err
	}

	editable := secCtx.EditableFieldIDs
	if secCtx.IsAdmin || secCtx.IsOwner {
		editable = allFieldIDs(fields)
	}
	filtered := security.FilterUpdateData(payload, fields, editable)

	data, custom := splitPayload(filtered, fields)
	for k, v := range data {
		rec.Data[k] = v
	}
	for k, v := range custom {
		if rec.CustomFields == nil {
			rec.CustomFields = map[string]interface{}{}
		}
		rec.CustomFields[k] = v
	}

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventTypeRecordUpdate, userID, objectAPIName, recordID, "record updated")
	s.dispatch(ctx, webhooks.EventRecordUpdated, objectAPIName, recordID, userID)

	view, err := s.render(ctx, rec, secCtx)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Delete removes a record. Sharing never grants delete; only admins and
// owners pass this check.
func (s *Service) Delete(ctx context.Context, objectAPIName, recordID string, userID int64) error {
	rec, err := s.store.Get(ctx, objectAPIName, recordID)
	if err != nil {
		return err
	}

	secCtx := s.builder.BuildContext(ctx, objectAPIName, recordID, rec.OwnerID, userID)
	if !secCtx.IsLoaded || !secCtx.CanDelete {
		return ErrAccessDenied
	}

	if err := s.store.Delete(ctx, objectAPIName, recordID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateRecord(ctx, objectAPIName, recordID)
	}

	s.logAudit(ctx, audit.EventTypeRecordDelete, userID, objectAPIName, recordID, "record deleted")
	s.dispatch(ctx, webhooks.EventRecordDeleted, objectAPIName, recordID, userID)
	return nil
}

// Share grants a user or team access to a record
func (s *Service) Share(ctx context.Context, objectAPIName, recordID string, userID int64, share *sharing.ManualShare) error {
	rec, err := s.store.Get(ctx, objectAPIName, recordID)
	if err != nil {
		return err
	}

	secCtx := s.builder.BuildContext(ctx, objectAPIName, recordID, rec.OwnerID, userID)
	if !secCtx.IsLoaded || !secCtx.CanManageSharing {
		return ErrAccessDenied
	}

	share.ObjectAPIName = objectAPIName
	share.RecordID = recordID
	share.GrantedBy = &userID
	if err := s.shares.CreateShare(ctx, share); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateRecord(ctx, objectAPIName, recordID)
	}

	s.logAudit(ctx, audit.EventTypeShareGrant, userID, objectAPIName, recordID, "record shared")
	s.dispatch(ctx, webhooks.EventShareGranted, objectAPIName, recordID, userID)
	return nil
}

// Unshare revokes a manual share
func (s *Service) Unshare(ctx context.Context, objectAPIName, recordID string, userID int64, shareID int64) error {
	rec, err := s.store.Get(ctx, objectAPIName, recordID)
	if err != nil {
		return err
	}

	secCtx := s.builder.BuildContext(ctx, objectAPIName, recordID, rec.OwnerID, userID)
	if !secCtx.IsLoaded || !secCtx.CanManageSharing {
		return ErrAccessDenied
	}

	if err := s.shares.DeleteShare(ctx, shareID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateRecord(ctx, objectAPIName, recordID)
	}

	s.logAudit(ctx, audit.EventTypeShareRevoke, userID, objectAPIName, recordID, "record share revoked")
	s.dispatch(ctx, webhooks.EventShareRevoked, objectAPIName, recordID, userID)
	return nil
}

// ListShares lists the manual shares on a record, visible only to those who
// can manage sharing
func (s *Service) ListShares(ctx context.Context, objectAPIName, recordID string, userID int64) ([]sharing.ManualShare, error) {
	rec, err := s.store.Get(ctx, objectAPIName, recordID)
	if err != nil {
		return nil, err
	}

	secCtx := s.builder.BuildContext(ctx, objectAPIName, recordID, rec.OwnerID, userID)
	if !secCtx.IsLoaded || !secCtx.CanManageSharing {
		return nil, ErrAccessDenied
	}

	return s.shares.ListSharesForRecord(ctx, objectAPIName, recordID)
}

// render applies the read-path filters for one record and context
func (s *Service) render(ctx context.Context, rec *Record, secCtx *security.RecordSecurityContext) (*RecordView, error) {
	fields, err := s.catalog.ListFields(ctx, rec.ObjectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for %s: %w", rec.ObjectAPIName, err)
	}

	visible := make([]metadata.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if secCtx.VisibleFieldIDs.Contains(f.ID) {
			visible = append(visible, f)
		}
	}
	visible = security.FilterSensitiveFields(visible, secCtx.IsAdmin)

	return &RecordView{
		Record:   security.FilterRecordData(rec.Raw(), visible),
		Security: secCtx,
	}, nil
}

// splitPayload routes payload keys to standard columns or custom fields
// according to the field definitions. Unknown keys are dropped.
func splitPayload(payload map[string]interface{}, fields []metadata.FieldDefinition) (map[string]interface{}, map[string]interface{}) {
	byColumn := make(map[string]metadata.FieldDefinition, len(fields))
	byAPI := make(map[string]metadata.FieldDefinition, len(fields))
	for _, f := range fields {
		byColumn[f.ColumnName] = f
		byAPI[f.APIName] = f
	}

	data := map[string]interface{}{}
	custom := map[string]interface{}{}
	route := func(key string, value interface{}) {
		f, ok := byColumn[key]
		if !ok {
			f, ok = byAPI[key]
		}
		if !ok {
			return
		}
		if f.IsCustom {
			custom[f.APIName] = value
		} else {
			data[f.ColumnName] = value
		}
	}

	for key, value := range payload {
		if key == "custom_fields" {
			if nested, ok := value.(map[string]interface{}); ok {
				for k, v := range nested {
					route(k, v)
				}
			}
			continue
		}
		if key == "updated_at" {
			continue
		}
		route(key, value)
	}
	return data, custom
}

func allFieldIDs(fields []metadata.FieldDefinition) *security.FieldSet {
	set := security.NewFieldSet()
	for _, f := range fields {
		set.Add(f.ID)
	}
	return set
}

func (s *Service) logAudit(ctx context.Context, eventType audit.EventType, userID int64, objectAPIName, recordID, message string) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess, &userID, objectAPIName, recordID, message)
	if err := s.auditLog.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warn("failed to write audit event")
	}
}

func (s *Service) dispatch(ctx context.Context, eventType webhooks.EventType, objectAPIName, recordID string, userID int64) {
	if s.events == nil {
		return
	}
	s.events.Dispatch(ctx, webhooks.NewEvent(eventType, map[string]interface{}{
		"object":    objectAPIName,
		"record_id": recordID,
		"user_id":   userID,
	}))
}

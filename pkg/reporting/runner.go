package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/metadata"
	"github.com/hearthcrm/hearth/pkg/records"
	"github.com/hearthcrm/hearth/pkg/security"
)

var (
	// ErrReportNotFound is returned for unknown report names
	ErrReportNotFound = errors.New("report not found")
	// ErrFieldNotReadable is returned when the caller may not see the
	// report's group-by field. Invisible and sensitive fields report the
	// same error.
	ErrFieldNotReadable = errors.New("field not readable")
	// ErrUnknownField is returned when a definition names a field the
	// object does not have
	ErrUnknownField = errors.New("unknown field in report definition")
)

// RecordSource pages through stored records
type RecordSource interface {
	List(ctx context.Context, objectAPIName string, limit, offset int) ([]records.Record, error)
}

// GroupCount is one bucket of a report result
type GroupCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Result is a completed report run
type Result struct {
	Report  string       `json:"report"`
	Object  string       `json:"object"`
	GroupBy string       `json:"group_by"`
	Total   int64        `json:"total"`
	Groups  []GroupCount `json:"groups"`
}

// Runner executes report definitions against the record store, enforcing
// the caller's field permissions on the grouped and filtered fields.
type Runner struct {
	registry *Registry
	source   RecordSource
	metadata security.MetadataSource
	roles    security.RoleSource
	logger   *logrus.Logger
}

// NewRunner creates a report runner
func NewRunner(registry *Registry, source RecordSource, meta security.MetadataSource, roles security.RoleSource, logger *logrus.Logger) *Runner {
	return &Runner{
		registry: registry,
		source:   source,
		metadata: meta,
		roles:    roles,
		logger:   logger,
	}
}

const pageSize = 200

// Run executes a report as the given user. Every field the report touches
// must be readable by the user; sensitive fields are off-limits to
// non-admins even when role-visible.
func (r *Runner) Run(ctx context.Context, reportName string, userID int64) (*Result, error) {
	def, ok := r.registry.Get(reportName)
	if !ok {
		return nil, ErrReportNotFound
	}

	fields, err := r.metadata.ListFields(ctx, def.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to load fields for report %s: %w", reportName, err)
	}

	readable, err := r.readableFields(ctx, userID, def.Object, fields)
	if err != nil {
		return nil, err
	}

	groupField, ok := readable[def.GroupBy]
	if !ok {
		if _, defined := fieldByAPIName(fields, def.GroupBy); !defined {
			return nil, fmt.Errorf("%s: %w", def.GroupBy, ErrUnknownField)
		}
		return nil, fmt.Errorf("%s: %w", def.GroupBy, ErrFieldNotReadable)
	}

	filterFields := make([]metadata.FieldDefinition, 0, len(def.Filters))
	for _, f := range def.Filters {
		ff, ok := readable[f.Field]
		if !ok {
			if _, defined := fieldByAPIName(fields, f.Field); !defined {
				return nil, fmt.Errorf("%s: %w", f.Field, ErrUnknownField)
			}
			return nil, fmt.Errorf("%s: %w", f.Field, ErrFieldNotReadable)
		}
		filterFields = append(filterFields, ff)
	}

	counts := make(map[string]int64)
	var total int64
	for offset := 0; ; offset += pageSize {
		page, err := r.source.List(ctx, def.Object, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to load records for report %s: %w", reportName, err)
		}
		for i := range page {
			rec := &page[i]
			if !matchesFilters(rec, def.Filters, filterFields) {
				continue
			}
			counts[groupValue(rec, groupField)]++
			total++
		}
		if len(page) < pageSize {
			break
		}
	}

	groups := make([]GroupCount, 0, len(counts))
	for value, count := range counts {
		groups = append(groups, GroupCount{Value: value, Count: count})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Value < groups[j].Value
	})

	return &Result{
		Report:  def.Name,
		Object:  def.Object,
		GroupBy: def.GroupBy,
		Total:   total,
		Groups:  groups,
	}, nil
}

// readableFields returns the fields the user may read, keyed by API name.
// Admins see everything; everyone else gets the permission resolver output
// minus sensitive fields.
func (r *Runner) readableFields(ctx context.Context, userID int64, objectAPIName string, fields []metadata.FieldDefinition) (map[string]metadata.FieldDefinition, error) {
	isAdmin, err := r.roles.IsAdmin(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve admin status: %w", err)
	}

	var visible []metadata.FieldDefinition
	if isAdmin {
		visible = fields
	} else {
		perms, err := r.roles.UserFieldPermissions(ctx, userID, objectAPIName)
		if err != nil {
			return nil, fmt.Errorf("failed to load field permissions: %w", err)
		}
		access := security.ResolveFieldPermissions(fields, perms)
		visible = security.FilterSensitiveFields(access.ReadableFields(), false)
	}

	out := make(map[string]metadata.FieldDefinition, len(visible))
	for _, f := range visible {
		out[f.APIName] = f
	}
	return out, nil
}

func fieldByAPIName(fields []metadata.FieldDefinition, apiName string) (metadata.FieldDefinition, bool) {
	for _, f := range fields {
		if f.APIName == apiName {
			return f, true
		}
	}
	return metadata.FieldDefinition{}, false
}

// groupValue extracts the grouped field's value from a record as a string
func groupValue(rec *records.Record, field metadata.FieldDefinition) string {
	var v interface{}
	var ok bool
	if field.IsCustom {
		v, ok = rec.CustomFields[field.APIName]
	} else {
		v, ok = rec.Data[field.ColumnName]
	}
	if !ok || v == nil {
		return "(none)"
	}
	return fmt.Sprint(v)
}

func matchesFilters(rec *records.Record, filters []Filter, fields []metadata.FieldDefinition) bool {
	for i, f := range filters {
		if groupValue(rec, fields[i]) != f.Equals {
			return false
		}
	}
	return true
}

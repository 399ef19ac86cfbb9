package reporting

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthcrm/hearth/pkg/metadata"
	"github.com/hearthcrm/hearth/pkg/records"
	"github.com/hearthcrm/hearth/pkg/security"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubSource struct {
	records []records.Record
}

func (s *stubSource) List(ctx context.Context, objectAPIName string, limit, offset int) ([]records.Record, error) {
	if offset >= len(s.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}

type stubMetadata struct {
	fields []metadata.FieldDefinition
}

func (s *stubMetadata) ListFields(ctx context.Context, objectAPIName string) ([]metadata.FieldDefinition, error) {
	return s.fields, nil
}

type stubRoles struct {
	perms   []security.FieldPermission
	isAdmin bool
}

func (s *stubRoles) UserFieldPermissions(ctx context.Context, userID int64, objectAPIName string) ([]security.FieldPermission, error) {
	return s.perms, nil
}

func (s *stubRoles) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.isAdmin, nil
}

func leadFields() []metadata.FieldDefinition {
	return []metadata.FieldDefinition{
		{ID: 1, APIName: "status", ColumnName: "status", IsStandard: true, IsVisible: true},
		{ID: 2, APIName: "source", ColumnName: "source", IsStandard: true, IsVisible: true},
		{ID: 3, APIName: "medical_info", ColumnName: "medical_info", IsStandard: true, IsSensitive: true, IsVisible: true},
	}
}

func leadRecords() []records.Record {
	mk := func(status, source string) records.Record {
		return records.Record{
			ObjectAPIName: "lead",
			Data:          map[string]interface{}{"status": status, "source": source},
		}
	}
	return []records.Record{
		mk("open", "web"),
		mk("open", "referral"),
		mk("won", "web"),
		mk("open", "web"),
	}
}

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newLoadedRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	writeDefinition(t, dir, "leads_by_status.yaml", `
name: leads_by_status
label: Leads by status
object: lead
group_by: status
`)
	writeDefinition(t, dir, "web_leads.yaml", `
name: web_leads
object: lead
group_by: status
filters:
  - field: source
    equals: web
`)
	writeDefinition(t, dir, "by_medical.yaml", `
name: by_medical
object: lead
group_by: medical_info
`)
	registry := NewRegistry(dir, quietLogger())
	require.NoError(t, registry.Load())
	return registry
}

func TestRegistryLoadsAndSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "good.yaml", "name: good\nobject: lead\ngroup_by: status\n")
	writeDefinition(t, dir, "broken.yaml", "name: [unterminated\n")
	writeDefinition(t, dir, "incomplete.yaml", "name: incomplete\nobject: lead\n")
	writeDefinition(t, dir, "notes.txt", "not a report")

	registry := NewRegistry(dir, quietLogger())
	require.NoError(t, registry.Load())

	defs := registry.List()
	require.Len(t, defs, 1)
	assert.Equal(t, "good", defs[0].Name)
}

func TestRunnerGroupsAndSorts(t *testing.T) {
	runner := NewRunner(newLoadedRegistry(t), &stubSource{records: leadRecords()},
		&stubMetadata{fields: leadFields()}, &stubRoles{}, quietLogger())

	result, err := runner.Run(context.Background(), "leads_by_status", 7)
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.Total)
	require.Len(t, result.Groups, 2)
	assert.Equal(t, GroupCount{Value: "open", Count: 3}, result.Groups[0])
	assert.Equal(t, GroupCount{Value: "won", Count: 1}, result.Groups[1])
}

func TestRunnerAppliesFilters(t *testing.T) {
	runner := NewRunner(newLoadedRegistry(t), &stubSource{records: leadRecords()},
		&stubMetadata{fields: leadFields()}, &stubRoles{}, quietLogger())

	result, err := runner.Run(context.Background(), "web_leads", 7)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.Total)
	require.Len(t, result.Groups, 2)
	assert.Equal(t, GroupCount{Value: "open", Count: 2}, result.Groups[0])
	assert.Equal(t, GroupCount{Value: "won", Count: 1}, result.Groups[1])
}

func TestRunnerRejectsInvisibleGroupField(t *testing.T) {
	roles := &stubRoles{perms: []security.FieldPermission{
		{FieldID: 1, IsVisible: false, IsEditable: false},
	}}
	runner := NewRunner(newLoadedRegistry(t), &stubSource{records: leadRecords()},
		&stubMetadata{fields: leadFields()}, roles, quietLogger())

	_, err := runner.Run(context.Background(), "leads_by_status", 7)
	assert.True(t, errors.Is(err, ErrFieldNotReadable))
}

func TestRunnerRejectsSensitiveGroupFieldForNonAdmins(t *testing.T) {
	runner := NewRunner(newLoadedRegistry(t), &stubSource{records: leadRecords()},
		&stubMetadata{fields: leadFields()}, &stubRoles{}, quietLogger())

	_, err := runner.Run(context.Background(), "by_medical", 7)
	assert.True(t, errors.Is(err, ErrFieldNotReadable))
}

func TestRunnerAllowsSensitiveGroupFieldForAdmins(t *testing.T) {
	recs := leadRecords()
	recs[0].Data["medical_info"] = "asthma"
	runner := NewRunner(newLoadedRegistry(t), &stubSource{records: recs},
		&stubMetadata{fields: leadFields()}, &stubRoles{isAdmin: true}, quietLogger())

	result, err := runner.Run(context.Background(), "by_medical", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Total)
}

func TestRunnerUnknownReport(t *testing.T) {
	runner := NewRunner(newLoadedRegistry(t), &stubSource{},
		&stubMetadata{fields: leadFields()}, &stubRoles{}, quietLogger())

	_, err := runner.Run(context.Background(), "nope", 7)
	assert.True(t, errors.Is(err, ErrReportNotFound))
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "first.yaml", "name: first\nobject: lead\ngroup_by: status\n")

	registry := NewRegistry(dir, quietLogger())
	require.NoError(t, registry.Load())
	require.Len(t, registry.List(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Watch(ctx)

	// Give the watcher a moment to register before writing
	time.Sleep(50 * time.Millisecond)
	writeDefinition(t, dir, "second.yaml", "name: second\nobject: lead\ngroup_by: source\n")

	require.Eventually(t, func() bool {
		return len(registry.List()) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

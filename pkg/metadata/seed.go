package metadata

import (
	"context"
	"errors"
	"fmt"
)

type seedField struct {
	apiName     string
	columnName  string
	label       string
	fieldType   string
	isSensitive bool
}

type seedObject struct {
	apiName    string
	label      string
	pluralName string
	fields     []seedField
}

func standardObjects() []seedObject {
	return []seedObject{
		{
			apiName: "lead", label: "Lead", pluralName: "Leads",
			fields: []seedField{
				{"first_name", "first_name", "First Name", FieldTypeText, false},
				{"last_name", "last_name", "Last Name", FieldTypeText, false},
				{"email", "email", "Email", FieldTypeEmail, false},
				{"phone", "phone", "Phone", FieldTypePhone, false},
				{"company", "company", "Company", FieldTypeText, false},
				{"status", "status", "Status", FieldTypePicklist, false},
				{"source", "source", "Lead Source", FieldTypePicklist, false},
				{"medical_info", "medical_info", "Medical Info", FieldTypeText, true},
			},
		},
		{
			apiName: "contact", label: "Contact", pluralName: "Contacts",
			fields: []seedField{
				{"first_name", "first_name", "First Name", FieldTypeText, false},
				{"last_name", "last_name", "Last Name", FieldTypeText, false},
				{"email", "email", "Email", FieldTypeEmail, false},
				{"phone", "phone", "Phone", FieldTypePhone, false},
				{"title", "title", "Title", FieldTypeText, false},
				{"account_id", "account_id", "Account", FieldTypeText, false},
				{"ssn", "ssn", "SSN", FieldTypeText, true},
				{"insurance_provider", "insurance_provider", "Insurance Provider", FieldTypeText, true},
			},
		},
		{
			apiName: "account", label: "Account", pluralName: "Accounts",
			fields: []seedField{
				{"name", "name", "Account Name", FieldTypeText, false},
				{"industry", "industry", "Industry", FieldTypePicklist, false},
				{"website", "website", "Website", FieldTypeText, false},
				{"phone", "phone", "Phone", FieldTypePhone, false},
				{"annual_revenue", "annual_revenue", "Annual Revenue", FieldTypeCurrency, false},
				{"payment_method", "payment_method", "Payment Method", FieldTypeText, true},
			},
		},
		{
			apiName: "opportunity", label: "Opportunity", pluralName: "Opportunities",
			fields: []seedField{
				{"name", "name", "Opportunity Name", FieldTypeText, false},
				{"account_id", "account_id", "Account", FieldTypeText, false},
				{"stage", "stage", "Stage", FieldTypePicklist, false},
				{"amount", "amount", "Amount", FieldTypeCurrency, false},
				{"close_date", "close_date", "Close Date", FieldTypeDate, false},
				{"probability", "probability", "Probability", FieldTypeNumber, false},
			},
		},
		{
			apiName: "activity", label: "Activity", pluralName: "Activities",
			fields: []seedField{
				{"subject", "subject", "Subject", FieldTypeText, false},
				{"activity_type", "activity_type", "Type", FieldTypePicklist, false},
				{"due_date", "due_date", "Due Date", FieldTypeDate, false},
				{"completed", "completed", "Completed", FieldTypeBoolean, false},
				{"related_to", "related_to", "Related To", FieldTypeText, false},
				{"notes", "notes", "Notes", FieldTypeText, false},
			},
		},
	}
}

// InitializeStandardObjects seeds the standard CRM objects and their fields.
// Already-seeded objects are left untouched.
func InitializeStandardObjects(ctx context.Context, store *Store) error {
	for _, seed := range standardObjects() {
		existing, err := store.GetObject(ctx, seed.apiName)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check object %s: %w", seed.apiName, err)
		}
		if existing != nil {
			continue
		}

		obj := &ObjectDefinition{
			APIName:    seed.apiName,
			Label:      seed.label,
			PluralName: seed.pluralName,
			IsStandard: true,
		}
		if err := store.CreateObject(ctx, obj); err != nil {
			return fmt.Errorf("failed to seed object %s: %w", seed.apiName, err)
		}

		for _, sf := range seed.fields {
			field := &FieldDefinition{
				ObjectID:    obj.ID,
				APIName:     sf.apiName,
				ColumnName:  sf.columnName,
				Label:       sf.label,
				FieldType:   sf.fieldType,
				IsStandard:  true,
				IsCustom:    false,
				IsSensitive: sf.isSensitive,
				IsVisible:   true,
			}
			if err := store.CreateField(ctx, field); err != nil {
				return fmt.Errorf("failed to seed field %s.%s: %w", seed.apiName, sf.apiName, err)
			}
		}
	}

	return nil
}

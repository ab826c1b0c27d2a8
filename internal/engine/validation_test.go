package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

func newValidator() *SchemaValidator {
	return NewSchemaValidator(metadata.NewCRMRegistry())
}

func TestSkipDelete(t *testing.T) {
	fake := &fakeProvider{}
	p := SkipDelete()(fake)
	ctx := context.Background()

	res, err := p.Delete(ctx, metadata.Contacts, provider.DeleteParams{
		ID:   9,
		Meta: provider.Meta{provider.MetaSkipDelete: true},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Record{"id": 9}, res.Data)
	assert.Empty(t, fake.calls)

	ids, err := p.DeleteMany(ctx, metadata.Contacts, provider.DeleteManyParams{
		IDs:  []any{1, 2},
		Meta: provider.Meta{provider.MetaSkipDelete: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, ids.Data)
	assert.Empty(t, fake.calls)

	_, err = p.Delete(ctx, metadata.Contacts, provider.DeleteParams{ID: 9, Meta: provider.Meta{provider.MetaSkipDelete: "yes"}})
	require.NoError(t, err)
	_, err = p.DeleteMany(ctx, metadata.Contacts, provider.DeleteManyParams{IDs: []any{3}})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete", "deleteMany"}, fake.methods())
}

func TestValidation_CreateRejectsInvalidPayload(t *testing.T) {
	fake := &fakeProvider{}
	p := Validation(newValidator())(fake)

	_, err := p.Create(context.Background(), metadata.Tags, provider.CreateParams{
		Data: provider.Record{"colour": "red"},
	})
	appErr, ok := AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 422, appErr.Status)
	assert.Equal(t, map[string]string{
		"name":   "Required",
		"color":  "Required",
		"colour": "Unrecognized key: colour",
	}, appErr.FieldErrors())
	assert.Empty(t, fake.calls)
}

func TestValidation_CreatePassesValidPayload(t *testing.T) {
	fake := &fakeProvider{}
	p := Validation(newValidator())(fake)

	res, err := p.Create(context.Background(), metadata.Tags, provider.CreateParams{
		Data: provider.Record{"name": "VIP", "color": "gold"},
	})
	require.NoError(t, err)
	assert.Equal(t, "VIP", res.Data["name"])
	assert.Equal(t, []string{"create"}, fake.methods())
}

func TestValidation_UpdateIncludesID(t *testing.T) {
	fake := &fakeProvider{}
	p := Validation(newValidator())(fake)

	_, err := p.Update(context.Background(), metadata.Tags, provider.UpdateParams{
		ID:   "5",
		Data: provider.Record{"name": "VIP", "color": "gold"},
	})
	require.NoError(t, err)
	assert.NotContains(t, fake.last().Params.(provider.UpdateParams).Data, "id",
		"the id is merged for validation only")

	_, err = p.Update(context.Background(), metadata.Tags, provider.UpdateParams{
		ID:   5,
		Data: provider.Record{"name": "", "color": "gold"},
	})
	appErr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.FieldErrors(), "name")
}

func TestValidation_FieldFormats(t *testing.T) {
	v := newValidator()

	err := v.ValidateRecord(metadata.Sales, "create", provider.Record{
		"first_name": "Ada", "last_name": "Lovelace", "email": "not-an-email",
	})
	appErr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.FieldErrors(), "email")

	err = v.ValidateRecord(metadata.Opportunities, "create", provider.Record{
		"name": "Deal", "customer_organization_id": 1, "principal_organization_id": "2",
		"stage": "signed",
	})
	appErr, ok = AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, appErr.FieldErrors(), "stage")

	assert.NoError(t, v.ValidateRecord("unregistered", "create", provider.Record{"x": 1}))
}

func TestValidation_ExpressionRules(t *testing.T) {
	v := newValidator()
	base := provider.Record{
		"name":                      "Deal",
		"customer_organization_id":  1,
		"principal_organization_id": 2,
		"stage":                     "closed_lost",
	}

	err := v.ValidateRecord(metadata.Opportunities, "create", base)
	appErr, ok := AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, map[string]string{
		"loss_reason": "Loss reason is required when an opportunity is closed lost",
	}, appErr.FieldErrors())

	withReason := base.Clone()
	withReason["loss_reason"] = "price"
	assert.NoError(t, v.ValidateRecord(metadata.Opportunities, "create", withReason))
}

func TestValidation_RuleStopOnFail(t *testing.T) {
	v := newValidator()
	rules := []*metadata.Rule{
		{ID: "a", Definition: metadata.RuleDefinition{Field: "x", Expression: "true", Message: "first", StopOnFail: true}},
		{ID: "b", Definition: metadata.RuleDefinition{Field: "y", Expression: "true", Message: "second"}},
	}
	details := v.EvaluateRules(rules, "create", provider.Record{})
	require.Len(t, details, 1)
	assert.Equal(t, "first", details[0].Message)

	rules[0].Definition.StopOnFail = false
	assert.Len(t, v.EvaluateRules(rules, "create", provider.Record{}), 2)
}

func TestValidation_RuleCompileErrorIsReported(t *testing.T) {
	v := newValidator()
	details := v.EvaluateRules([]*metadata.Rule{
		{ID: "bad", Definition: metadata.RuleDefinition{Field: "x", Expression: "record.("}},
	}, "update", provider.Record{})
	require.Len(t, details, 1)
	assert.Equal(t, "x", details[0].Field)
	assert.Contains(t, details[0].Message, "compile error")
}

func TestValidation_SanitizeFilter(t *testing.T) {
	v := newValidator()

	out, err := v.SanitizeFilter(metadata.Contacts, provider.Filter{
		"q":              "  ada ",
		"last_name":      " Lovelace ",
		"title":          "",
		"sales_id@in":    []any{},
		"deleted_at@is":  nil,
		"nb_tasks@gt":    0,
		"organization_id": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Filter{
		"q":             "ada",
		"last_name":     "Lovelace",
		"deleted_at@is": nil,
		"nb_tasks@gt":   0,
	}, out)

	_, err = v.SanitizeFilter(metadata.Contacts, provider.Filter{"password": "x"})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNKNOWN_FIELD", appErr.Code)

	_, err = v.SanitizeFilter(metadata.Contacts, provider.Filter{"last_name@between": "a"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_FILTER", appErr.Code)

	out, err = v.SanitizeFilter(metadata.Contacts, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestValidation_ListRejectsUnknownFilter(t *testing.T) {
	fake := &fakeProvider{}
	p := Validation(newValidator())(fake)

	_, err := p.GetList(context.Background(), metadata.Contacts, provider.GetListParams{
		Filter: provider.Filter{"secret": 1},
	})
	require.Error(t, err)
	assert.Empty(t, fake.calls)

	_, err = p.GetManyReference(context.Background(), metadata.Contacts, provider.GetManyReferenceParams{
		Target: "organization_id",
		ID:     1,
		Filter: provider.Filter{"title": " CEO "},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.Filter{"title": "CEO"}, fake.last().Params.(provider.GetManyReferenceParams).Filter)
}

func TestValidateItems_PrefixesPaths(t *testing.T) {
	v := newValidator()
	err := v.ValidateItems(metadata.OpportunityProductItem, "products_to_sync", []provider.Record{
		{"product_id_reference": 1},
		{"product_name": "Widget"},
	})
	appErr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"products_to_sync.1.product_id_reference": "Required"}, appErr.FieldErrors())
}

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-backend/internal/provider"
)

func linkError(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := AsValidationError(err)
	require.True(t, ok, "got %v", err)
	return appErr.FieldErrors()["related_opportunity_id"]
}

func TestValidateOpportunityLink(t *testing.T) {
	ctx := context.Background()

	t.Run("no link", func(t *testing.T) {
		fake := &fakeProvider{}
		require.NoError(t, ValidateOpportunityLink(ctx, fake, 1, provider.Record{"name": "x"}, nil))
		require.NoError(t, ValidateOpportunityLink(ctx, fake, 1, provider.Record{"related_opportunity_id": ""}, nil))
		assert.Empty(t, fake.calls)
	})

	t.Run("self link", func(t *testing.T) {
		err := ValidateOpportunityLink(ctx, &fakeProvider{}, 7, provider.Record{"related_opportunity_id": "7"}, nil)
		assert.Equal(t, "Cannot link opportunity to itself", linkError(t, err))

		err = ValidateOpportunityLink(ctx, &fakeProvider{}, nil, provider.Record{"id": 8, "related_opportunity_id": 8}, nil)
		assert.Equal(t, "Cannot link opportunity to itself", linkError(t, err))
	})

	t.Run("missing target", func(t *testing.T) {
		err := ValidateOpportunityLink(ctx, &fakeProvider{err: provider.NoRowsError()}, 1, provider.Record{"related_opportunity_id": 2}, nil)
		assert.Equal(t, "Related opportunity not found or deleted", linkError(t, err))
	})

	t.Run("deleted target", func(t *testing.T) {
		fake := &fakeProvider{oneResult: &provider.RecordResult{Data: provider.Record{
			"id": 2, "principal_organization_id": 5, "deleted_at": "2025-01-01T00:00:00Z",
		}}}
		err := ValidateOpportunityLink(ctx, fake, 1, provider.Record{"related_opportunity_id": 2}, nil)
		assert.Equal(t, "Related opportunity not found or deleted", linkError(t, err))
	})

	t.Run("principal mismatch", func(t *testing.T) {
		fake := &fakeProvider{oneResult: &provider.RecordResult{Data: provider.Record{"id": 2, "principal_organization_id": 5}}}
		err := ValidateOpportunityLink(ctx, fake, 1, provider.Record{
			"related_opportunity_id": 2, "principal_organization_id": 6,
		}, nil)
		assert.Equal(t, "Related opportunity must have same principal", linkError(t, err))
	})

	t.Run("principal from previous data", func(t *testing.T) {
		fake := &fakeProvider{oneResult: &provider.RecordResult{Data: provider.Record{"id": 2, "principal_organization_id": 5}}}
		err := ValidateOpportunityLink(ctx, fake, 1,
			provider.Record{"related_opportunity_id": 2},
			provider.Record{"principal_organization_id": "5"},
		)
		require.NoError(t, err)
		assert.Equal(t, "getOne", fake.last().Method)
	})

	t.Run("backend failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		err := ValidateOpportunityLink(ctx, &fakeProvider{err: boom}, 1, provider.Record{"related_opportunity_id": 2}, nil)
		assert.ErrorIs(t, err, boom)
	})
}

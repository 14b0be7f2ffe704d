package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/resaleman/internal/model"
)

func TestSQLiteTemplateRepo_CreateAndUse(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteTemplateRepo(db)
	ctx := context.Background()

	tmpl, err := repo.Create(ctx, &model.Template{
		Name:          "T-Shirt",
		Category:      "Clothing",
		DefaultValues: map[string]any{"condition": "good", "tags": []any{"cotton"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, tmpl.UseCount)
	assert.Equal(t, map[string]any{"condition": "good", "tags": []any{"cotton"}}, tmpl.DefaultValues)
	assert.Nil(t, tmpl.CustomFields)

	tmpl, err = repo.IncrementUseCount(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tmpl.UseCount)

	_, err = repo.Create(ctx, &model.Template{Name: "T-Shirt", Category: "Clothing"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestSQLiteTemplateRepo_DefaultValuesNeverNull(t *testing.T) {
	db := setupTestDB(t)
	tmpl, err := NewSQLiteTemplateRepo(db).Create(context.Background(), &model.Template{Name: "n", Category: "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, tmpl.DefaultValues)
}

func TestSQLiteTemplateRepo_Ordering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteTemplateRepo(db)
	ctx := context.Background()

	a, err := repo.Create(ctx, &model.Template{Name: "a", Category: "Shoes"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, &model.Template{Name: "b", Category: "Shoes"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.Template{Name: "c", Category: "Books"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = repo.IncrementUseCount(ctx, b.ID)
		require.NoError(t, err)
	}
	_, err = repo.IncrementUseCount(ctx, a.ID)
	require.NoError(t, err)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].Name, all[1].Name, all[2].Name})

	shoes, err := repo.FindByCategory(ctx, "Shoes")
	require.NoError(t, err)
	require.Len(t, shoes, 2)
	assert.Equal(t, "b", shoes[0].Name)

	top, err := repo.GetMostUsed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, b.ID, top[0].ID)

	n, err := repo.Count(ctx, "Shoes")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = repo.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteTemplateRepo_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteTemplateRepo(db)
	ctx := context.Background()
	tmpl, err := repo.Create(ctx, &model.Template{Name: "old", Category: "c"})
	require.NoError(t, err)

	custom := map[string]any{"material": "leather"}
	tmpl, err = repo.Update(ctx, tmpl.ID, model.TemplateUpdate{Name: ptr("new"), CustomFields: &custom})
	require.NoError(t, err)
	assert.Equal(t, "new", tmpl.Name)
	assert.Equal(t, custom, tmpl.CustomFields)

	byName, err := repo.FindByName(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, tmpl.ID, byName.ID)
}

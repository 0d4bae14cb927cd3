package screens

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlens/fundlens/internal/testutil"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "screens")
	t.Cleanup(cleanup)
	return NewRepository(db, zerolog.Nop())
}

func TestScreenLifecycle(t *testing.T) {
	repo := newRepo(t)

	saved, err := repo.SaveScreen("cheap growth", "expense_ratio < 0.5 and return > 8")
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := repo.GetScreen(saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cheap growth", got.Name)
	assert.Equal(t, "expense_ratio < 0.5 and return > 8", got.Formula)

	require.NoError(t, repo.UpdateScreen(saved.ID, "cheap growth v2", "expense_ratio < 0.4"))
	got, err = repo.GetScreen(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "cheap growth v2", got.Name)
	assert.Equal(t, "expense_ratio < 0.4", got.Formula)

	require.NoError(t, repo.DeleteScreen(saved.ID))
	got, err = repo.GetScreen(saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateScreen_MissingID(t *testing.T) {
	repo := newRepo(t)

	err := repo.UpdateScreen("no-such-id", "name", "return > 1")
	assert.Error(t, err)
}

func TestListScreens(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.SaveScreen("first", "return > 1")
	require.NoError(t, err)
	_, err = repo.SaveScreen("second", "return > 2")
	require.NoError(t, err)

	screens, err := repo.ListScreens()
	require.NoError(t, err)
	assert.Len(t, screens, 2)
}

func TestCodeSetLifecycle(t *testing.T) {
	repo := newRepo(t)

	codes := []string{"ABC0001AU", "XYZ123AU"}
	set, err := repo.SaveCodeSet("hub list", "approved_products.pdf", codes)
	require.NoError(t, err)

	got, err := repo.GetCodeSet(set.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, codes, got.Codes)
	assert.Equal(t, "approved_products.pdf", got.SourceName)

	sets, err := repo.ListCodeSets()
	require.NoError(t, err)
	assert.Len(t, sets, 1)

	require.NoError(t, repo.DeleteCodeSet(set.ID))
	got, err = repo.GetCodeSet(set.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

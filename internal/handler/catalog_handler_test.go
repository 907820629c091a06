package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/helmintheca/archive-api/internal/catalog"
	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/pkg/storage"
)

type fakeCatalogSrv struct {
	lastQuery catalog.Query
	result    *catalog.Result
	vocab     *catalog.Vocabulary
}

func (f *fakeCatalogSrv) Browse(_ context.Context, query catalog.Query) (*catalog.Result, bool, error) {
	f.lastQuery = query
	if f.result != nil {
		return f.result, false, nil
	}
	return &catalog.Result{}, false, nil
}

func (f *fakeCatalogSrv) Facets(context.Context) (*catalog.Vocabulary, error) {
	if f.vocab != nil {
		return f.vocab, nil
	}
	return &catalog.Vocabulary{}, nil
}

func TestCatalogHandlerBrowseParsesFacets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeCatalogSrv{}
	handler := NewCatalogHandler(srv, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/catalog?search=ascaris&type=Nematode,Trematode&year=1995&page=2", nil)

	handler.Browse(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ascaris", srv.lastQuery.Search)
	assert.Equal(t, []string{"Nematode", "Trematode"}, srv.lastQuery.Facets.Types)
	assert.Equal(t, []string{"1995"}, srv.lastQuery.Facets.Years)
	assert.Equal(t, 2, srv.lastQuery.Page)
}

func TestCatalogHandlerBrowseResolvesImageURLs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeCatalogSrv{result: &catalog.Result{
		Records: []models.Record{{ID: "rec-1", ImageURL: "uploads/rec-1.jpg", Status: models.StatusApproved}},
	}}
	handler := NewCatalogHandler(srv, storage.NewPublicURLResolver("https://cdn.example.org/archive"))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/catalog", nil)

	handler.Browse(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://cdn.example.org/archive/uploads/rec-1.jpg")
}

func TestCatalogHandlerFacets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeCatalogSrv{vocab: &catalog.Vocabulary{Hosts: []string{"Human", "Sheep"}}}
	handler := NewCatalogHandler(srv, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/catalog/facets", nil)

	handler.Facets(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sheep")
}

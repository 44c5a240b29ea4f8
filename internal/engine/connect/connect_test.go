package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchschema/internal/config"
	"github.com/Aman-CERP/searchschema/internal/engine/elasticsearch"
	"github.com/Aman-CERP/searchschema/internal/engine/embedded"
	schemaerrors "github.com/Aman-CERP/searchschema/internal/errors"
)

func TestNew_Embedded(t *testing.T) {
	cfg := config.NewConfig().Connect
	cfg.DataDir = ""

	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.IsType(t, &embedded.Client{}, c)
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestNew_Elasticsearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"green"}`))
	}))
	defer srv.Close()

	cfg := config.NewConfig().Connect
	cfg.Type = config.ConnectElasticsearch
	cfg.URL = srv.URL

	c, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &elasticsearch.Client{}, c)
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestNew_UnknownType(t *testing.T) {
	cfg := config.NewConfig().Connect
	cfg.Type = "solr"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, schemaerrors.ErrCodeConfigInvalid, schemaerrors.GetCode(err))
}

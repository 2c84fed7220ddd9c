package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlap/internal/db"
	"github.com/joeblew999/plat-overlap/internal/layer"
)

// DBHandler handles database-related endpoints.
type DBHandler struct {
	db      *sql.DB
	dialect layer.Dialect
}

// NewDBHandler creates a new database handler. A nil db makes every route
// answer 503.
func NewDBHandler(conn *sql.DB, d layer.Dialect) *DBHandler {
	return &DBHandler{db: conn, dialect: d}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
}

// TablesBody lists the layer tables.
type TablesBody struct {
	Tables []string `json:"tables" doc:"List of layer table names"`
}

// ListTables returns the layer tables of the database.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := db.Tables(ctx, h.db, h.dialect)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	if tables == nil {
		tables = []string{}
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

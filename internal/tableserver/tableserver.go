// Package tableserver exposes whole-table snapshots over HTTP for the
// remote store backend.
package tableserver

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/enxitry/enxitry/internal/enxitry/store"
	sqlitestore "github.com/enxitry/enxitry/internal/enxitry/store/sqlite"
	"github.com/enxitry/enxitry/internal/logging"
)

const (
	contentTypeProto = "application/x-protobuf"
	maxRequestBody   = 32 << 20
)

// Catalog is the storage behind the daemon.
type Catalog interface {
	Load(ctx context.Context, table string) (store.Snapshot, error)
	Save(ctx context.Context, table string, snap store.Snapshot) error
	Tables(ctx context.Context) ([]sqlitestore.TableInfo, error)
}

type Handler struct {
	Catalog Catalog
	Token   string
	Logger  *slog.Logger
}

// Router builds the gin engine with every route registered.
func Router(h *Handler) *gin.Engine {
	if h.Logger == nil {
		h.Logger = logging.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), h.logRequests())

	v1 := r.Group("/v1", h.requireToken())
	v1.GET("/tables", h.ListTables)
	v1.GET("/tables/:name", h.GetTable)
	v1.PUT("/tables/:name", h.PutTable)
	return r
}

func (h *Handler) ListTables(c *gin.Context) {
	tables, err := h.Catalog.Tables(c.Request.Context())
	if err != nil {
		h.Logger.Error("list tables failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tables == nil {
		tables = []sqlitestore.TableInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (h *Handler) GetTable(c *gin.Context) {
	name := c.Param("name")
	snap, err := h.Catalog.Load(c.Request.Context(), name)
	if err != nil {
		h.Logger.Error("load table failed", slog.String("table", name), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if wantsProto(c.GetHeader("Accept")) {
		st, err := snap.ToStruct()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		data, err := proto.Marshal(st)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "proto marshal error"})
			return
		}
		c.Data(http.StatusOK, contentTypeProto, data)
		return
	}
	if snap.Columns == nil {
		snap.Columns = []string{}
	}
	if snap.Rows == nil {
		snap.Rows = [][]string{}
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) PutTable(c *gin.Context) {
	name := c.Param("name")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := decodeSnapshot(c.ContentType(), body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i, r := range snap.Rows {
		if len(r) > len(snap.Columns) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "row wider than header", "row": i})
			return
		}
	}

	if err := h.Catalog.Save(c.Request.Context(), name, snap); err != nil {
		h.Logger.Error("save table failed", slog.String("table", name), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func decodeSnapshot(contentType string, body []byte) (store.Snapshot, error) {
	switch contentType {
	case contentTypeProto, "application/protobuf", "application/octet-stream":
		var st structpb.Struct
		if err := proto.Unmarshal(body, &st); err != nil {
			return store.Snapshot{}, err
		}
		return store.SnapshotFromStruct(&st)
	case "application/json", "":
		var snap store.Snapshot
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return store.Snapshot{}, err
		}
		return snap, nil
	default:
		return store.Snapshot{}, errors.New("unsupported content type " + contentType)
	}
}

func wantsProto(accept string) bool {
	return strings.Contains(accept, contentTypeProto) || strings.Contains(accept, "application/protobuf")
}

func (h *Handler) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *Handler) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.Logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("dur", time.Since(start)),
		)
	}
}

package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"github.com/enxitry/enxitry/internal/db"
	"github.com/enxitry/enxitry/internal/enxitry/store"
	"github.com/enxitry/enxitry/internal/enxitry/store/remote"
	sqlitestore "github.com/enxitry/enxitry/internal/enxitry/store/sqlite"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
	"github.com/enxitry/enxitry/internal/tableserver"
)

// newDaemon runs a real table daemon over an in-memory database.
func newDaemon(t *testing.T, token string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.OpenDSN(context.Background(), db.MemoryDSN("remote_"+t.Name()))
	if err != nil {
		t.Fatalf("OpenDSN: %v", err)
	}
	w := db.NewWorker(conn)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})

	router := tableserver.Router(&tableserver.Handler{Catalog: sqlitestore.New(conn, w), Token: token})
	ts := httptest.NewServer(gzhttp.GzipHandler(router))
	t.Cleanup(ts.Close)
	return ts
}

func TestBackend_TableRoundTrip(t *testing.T) {
	for _, enc := range []string{remote.EncodingJSON, remote.EncodingProtobuf} {
		t.Run(enc, func(t *testing.T) {
			ts := newDaemon(t, "tok")
			b, err := remote.New(remote.Options{BaseURL: ts.URL + "/", Encoding: enc, Token: "tok"})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer b.Close()

			ctx := context.Background()
			persons := store.NewTable(b, store.PersonSchema("Person"), store.DefaultRetryPolicy(), logging.NewNop())
			want := types.Person{ExternalID: "100000001", CardID: "04 A1", Name: "Sato, Ken", Status: types.StatusExited}
			if err := persons.Upsert(ctx, want); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			got, err := persons.FetchAll(ctx)
			if err != nil {
				t.Fatalf("FetchAll: %v", err)
			}
			if len(got) != 1 || got[0] != want {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestBackend_WrongTokenIsStatusError(t *testing.T) {
	ts := newDaemon(t, "tok")
	b, _ := remote.New(remote.Options{BaseURL: ts.URL, Token: "nope"})

	_, err := b.Load(context.Background(), "Person")
	var se *remote.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}

func TestBackend_RetriesThroughReopen(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"columns":["external_id","card_id","name","status"],"rows":[["1","AA","Ito, Mai","entered"]]}`))
	}))
	defer ts.Close()

	b, _ := remote.New(remote.Options{BaseURL: ts.URL, Timeout: time.Second})
	policy := store.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, MaxBackoff: time.Millisecond}
	persons := store.NewTable(b, store.PersonSchema("Person"), policy, logging.NewNop())

	got, err := persons.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ito, Mai" {
		t.Errorf("got %+v", got)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestNew_RejectsBadOptions(t *testing.T) {
	if _, err := remote.New(remote.Options{}); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := remote.New(remote.Options{BaseURL: "http://x", Encoding: "xml"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

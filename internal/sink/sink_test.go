package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/iskan70/my-logistic-bot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

var record = []string{"ЗАКАЗ", "14.03.2025 09:26", "Ivan", "+77011234567", "Laptops", "12000", "Guangzhou", "Almaty", "350", "2.5", "-"}

func TestStoreSinkAppendsSubmission(t *testing.T) {
	st := store.NewInMemoryStore()
	s := NewStoreSink(st)
	ctx := context.Background()

	require.NoError(t, s.AppendRecord(ctx, record))
	require.NoError(t, s.AppendRecord(ctx, []string{"AI_АНАЛИЗ", "x"}))

	subs, err := st.ListSubmissions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "AI_АНАЛИЗ", subs[0].Kind)
	assert.Equal(t, record, subs[1].Columns)
	assert.NotEqual(t, subs[0].ID, subs[1].ID)

	counts, err := st.CountSubmissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ЗАКАЗ": 1, "AI_АНАЛИЗ": 1}, counts)

	assert.ErrorIs(t, s.AppendRecord(ctx, nil), ErrEmptyRecord)
}

type failingSink struct{ calls int }

func (f *failingSink) AppendRecord(context.Context, []string) error {
	f.calls++
	return errors.New("down")
}

func TestMultiReportsFailureButWritesAll(t *testing.T) {
	st := store.NewInMemoryStore()
	bad := &failingSink{}
	m := Multi{bad, NewStoreSink(st)}

	err := m.AppendRecord(context.Background(), record)
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	subs, _ := st.ListSubmissions(context.Background(), 0)
	assert.Len(t, subs, 1)
}

func TestSheetsSinkAppendsRow(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		query string
		body  struct {
			Values [][]string `json:"values"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"spreadsheetId":"sheet-123","updates":{"updatedRange":"Sheet1!A2:K2","updatedCells":11}}`))
	}))
	defer srv.Close()

	s, err := NewSheetsSink(context.Background(), "sheet-123",
		WithClientOptions(option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication()))
	require.NoError(t, err)
	require.NoError(t, s.AppendRecord(context.Background(), record))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "POST /v4/spreadsheets/sheet-123/values/"), paths[0])
	assert.True(t, strings.HasSuffix(paths[0], ":append"), paths[0])
	assert.Contains(t, query, "valueInputOption=USER_ENTERED")
	require.Len(t, body.Values, 1)
	assert.Equal(t, record, body.Values[0])
}

func TestSheetsSinkErrors(t *testing.T) {
	_, err := NewSheetsSink(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSpreadsheetID)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	s, err := NewSheetsSink(context.Background(), "sheet-123",
		WithClientOptions(option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication()))
	require.NoError(t, err)
	assert.Error(t, s.AppendRecord(context.Background(), record))
}

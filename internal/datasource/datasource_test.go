package datasource

import (
	"alsolved/internal/models"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `[
 {"id":1,"title":"Primo"},
 {"id":"1","title":"Duplicato"},
 {"title":"Senza id"},
 {"id":"","title":"Id vuoto"},
 "non un oggetto",
 {"id":2,"title":"Secondo","ai_analysis":{"regions":["226"]}}
]`

func TestDecodeDropsInvalidRecords(t *testing.T) {
	recs, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Primo", recs[0].Title)
	assert.Equal(t, models.RecordID("2"), recs[1].ID)
}

func TestDecodeRejectsNonArray(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"id":1}`))
	assert.Error(t, err)
	_, err = Decode(strings.NewReader(`[{"id":1`))
	assert.Error(t, err)

	recs, err := Decode(strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), DocumentName)
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))

	recs, err := (&FileSource{Path: p}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = (&FileSource{Path: p + ".missing"}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/AlSolved_Bandi/bandi.json", ResolvePath("/AlSolved_Bandi", DocumentName))
	assert.Equal(t, "/AlSolved_Bandi/bandi.json", ResolvePath("/AlSolved_Bandi/", DocumentName))
	assert.Equal(t, "/bandi.json", ResolvePath("", DocumentName))
	assert.Equal(t, "/bandi.json", ResolvePath("/", DocumentName))
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/AlSolved_Bandi/bandi.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "/AlSolved_Bandi", DocumentName)
	src.client.RetryMax = 0
	recs, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	missing := NewHTTPSource(srv.URL, "", DocumentName)
	missing.client.RetryMax = 0
	_, err = missing.Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPSourceRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":7,"title":"Dopo retry"}]`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/bandi.json", "", "")
	src.client.RetryMax = 2
	src.client.RetryWaitMin = time.Millisecond
	src.client.RetryWaitMax = 5 * time.Millisecond
	recs, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type countingSource struct {
	calls int32
	delay time.Duration
	err   error
	recs  []models.GrantRecord
}

func (s *countingSource) Fetch(ctx context.Context) ([]models.GrantRecord, error) {
	atomic.AddInt32(&s.calls, 1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	return s.recs, nil
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond, recs: []models.GrantRecord{{ID: "1", Title: "A"}}}
	c := NewCache(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recs, err := c.Fetch(context.Background())
			assert.NoError(t, err)
			assert.Len(t, recs, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))

	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls), "hit within TTL")

	c.Invalidate()
	_, err = c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
}

func TestCacheTTLAndStaleFallback(t *testing.T) {
	src := &countingSource{recs: []models.GrantRecord{{ID: "1"}}}
	c := NewCache(src, time.Minute)
	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	_, err := c.Fetch(context.Background())
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	src.err = errors.New("unreachable")
	recs, err := c.Fetch(context.Background())
	require.NoError(t, err, "stale snapshot expected")
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))
	assert.Equal(t, 1, c.Stats().StaleHits)

	clock = clock.Add(25 * time.Hour)
	_, err = c.Fetch(context.Background())
	assert.Error(t, err)
}

func TestCacheWithoutStaleWindowReportsFailure(t *testing.T) {
	src := &countingSource{recs: []models.GrantRecord{{ID: "1"}}}
	c := NewCache(src, 0)
	c.StaleFor = 0

	_, err := c.Fetch(context.Background())
	require.NoError(t, err)

	src.recs = []models.GrantRecord{{ID: "1"}, {ID: "2"}}
	recs, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2, "ttl 0 refetches on every call")

	src.err = errors.New("unreachable")
	_, err = c.Fetch(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, c.Stats().StaleHits)
}

func TestCacheWithoutSnapshotReturnsError(t *testing.T) {
	c := NewCache(&countingSource{err: errors.New("boom")}, time.Minute)
	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}

func TestRedisCacheFallsThroughWhenUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	next := &countingSource{recs: []models.GrantRecord{{ID: "9", Title: "Da sorgente"}}}
	rc := &RedisCache{Client: rdb, Key: "test:bandi", TTL: time.Minute, Next: next}
	recs, err := rc.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Da sorgente", recs[0].Title)
	assert.Equal(t, "redis+custom", kind(rc))
}

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, DocumentName)
	require.NoError(t, os.WriteFile(p, []byte(`[]`), 0o644))

	changed := make(chan struct{}, 4)
	w := NewWatcher(p, 20*time.Millisecond, func() { changed <- struct{}{} })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "altro.txt"), []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(p, []byte(`[{"id":1}]`), 0o644))
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestRefresherReloads(t *testing.T) {
	src := &countingSource{recs: []models.GrantRecord{{ID: "1"}}}
	c := NewCache(src, time.Hour)
	r := NewRefresher(c, "@every 1h")

	r.Refresh(context.Background())
	r.Refresh(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.calls))

	bad := NewRefresher(c, "not a spec")
	assert.Error(t, bad.Start(context.Background()))
}

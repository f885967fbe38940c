package index

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeService struct {
	idx   *PackagesIndex
	err   error
	calls int
}

func (f *fakeService) PackagesIndex(context.Context) (*PackagesIndex, error) {
	f.calls++
	return f.idx, f.err
}

func serviceIndex() *PackagesIndex {
	idx := Empty()
	idx.Toolchains = []Package{{ID: "avr-gcc", Versions: []VersionEntry{{Version: "7.3.0"}}}}
	return idx
}

func TestGetPrefersServiceAndCaches(t *testing.T) {
	svc := &fakeService{idx: serviceIndex()}
	client := NewClient(svc, nil, nil)

	first := client.Get(context.Background(), Options{})
	if _, ok := first.FindToolchain("avr-gcc"); !ok {
		t.Fatal("expected toolchain from service")
	}
	client.Get(context.Background(), Options{})
	if svc.calls != 1 {
		t.Fatalf("expected cached second call, service called %d times", svc.calls)
	}

	client.Get(context.Background(), Options{ForceRefresh: true})
	if svc.calls != 2 {
		t.Fatalf("expected force refresh to hit service, called %d times", svc.calls)
	}

	client.ClearCache()
	client.Get(context.Background(), Options{})
	if svc.calls != 3 {
		t.Fatalf("expected cleared cache to hit service, called %d times", svc.calls)
	}
}

func TestGetCacheExpiresWithInjectedClock(t *testing.T) {
	svc := &fakeService{idx: serviceIndex()}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cache := NewCache(time.Hour)
	cache.Now = func() time.Time { return now }
	client := NewClient(svc, cache, nil)

	client.Get(context.Background(), Options{})
	now = now.Add(2 * time.Hour)
	client.Get(context.Background(), Options{})
	if svc.calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", svc.calls)
	}
}

func TestGetRegistryUnwrapsPackages(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"packages":{"toolchains":[{"id":"arm-none-eabi","version":"10.3.1","url":"https://example.test/arm.zip"}]}}`))
	}))
	defer srv.Close()

	svc := &fakeService{idx: serviceIndex()}
	client := NewClient(svc, nil, nil)

	idx := client.Get(context.Background(), Options{RegistryURL: srv.URL})
	if _, ok := idx.FindToolchain("arm-none-eabi"); !ok {
		t.Fatal("expected registry toolchain")
	}
	if svc.calls != 0 {
		t.Fatal("explicit registry url must bypass the companion service")
	}
	if idx.Libraries == nil || idx.Devices == nil {
		t.Fatal("expected missing sections normalized to empty slices")
	}

	client.Get(context.Background(), Options{RegistryURL: srv.URL})
	if hits.Load() != 1 {
		t.Fatalf("expected cached registry response, got %d hits", hits.Load())
	}
}

func TestGetKeepsIndexWithOneBadEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"packages":{"toolchains":[
			{"id":"avr-gcc","version":"7.3.0","url":"https://example.test/avr.zip","size":2048},
			{"id":"esp32","version":"2.0.1","url":"https://example.test/esp.zip","size":"lots"}]}}`))
	}))
	defer srv.Close()

	idx := NewClient(nil, nil, nil).Get(context.Background(), Options{RegistryURL: srv.URL})
	if _, ok := idx.FindToolchain("avr-gcc"); !ok {
		t.Fatal("a malformed sibling must not hide avr-gcc")
	}
	if len(idx.Toolchains) != 1 {
		t.Fatalf("expected one toolchain, got %d", len(idx.Toolchains))
	}
}

func TestGetFallsBackToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(&fakeService{err: errors.New("connection refused")}, nil, nil)

	idx := client.Get(context.Background(), Options{})
	if idx == nil || len(idx.Toolchains) != 0 || idx.Toolchains == nil {
		t.Fatalf("expected empty default index, got %+v", idx)
	}

	idx = client.Get(context.Background(), Options{RegistryURL: srv.URL})
	if len(idx.Toolchains) != 0 {
		t.Fatalf("expected empty index on registry failure, got %+v", idx)
	}
	if _, ok := client.Cache.Get(srv.URL); ok {
		t.Fatal("failures must not be cached")
	}
}

func TestFetchRegistryMissingPackages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"devices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(nil, nil, nil)
	if _, err := client.FetchRegistry(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for document without packages")
	}
}

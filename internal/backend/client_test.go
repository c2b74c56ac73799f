package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReportDecodesArray(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"region":"DELHI","totalDevices":12,"compliancePercentage":91.5}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	records, err := client.FetchReport(context.Background(), "/reports/compliance", url.Values{"region": {"DELHI"}})
	require.NoError(t, err)
	assert.Equal(t, "/reports/compliance", gotPath)
	assert.Equal(t, "region=DELHI", gotQuery)
	require.Len(t, records, 1)
	assert.Equal(t, "DELHI", records[0]["region"])
	assert.Equal(t, "91.5", records[0]["compliancePercentage"].(interface{ String() string }).String())
}

func TestFetchReportWithoutQuery(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL, time.Second).FetchReport(context.Background(), "reports/alerts", url.Values{})
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
	assert.Empty(t, records)
}

func TestFetchReportStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchReport(context.Background(), "/reports/devices", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "boom", statusErr.Body)
}

func TestFetchReportMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchReport(context.Background(), "/reports/licenses", nil)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	require.NoError(t, client.Ping(context.Background()))
	healthy.Store(false)
	assert.ErrorIs(t, client.Ping(context.Background()), ErrUnexpectedStatus)
}

package pastagem

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
	"github.com/couchcryptid/pastagem-atlas-service/internal/observability"
)

const (
	contentTypeCSV    = "text/csv"
	headerContentType = "Content-Type"
	testFilter        = "cd_geocmu='3302025'"
)

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func csvServer(t *testing.T, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set(headerContentType, contentTypeCSV)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchReport_PastureWithYearAndMunicipality(t *testing.T) {
	srv := csvServer(t, "year,area_ha\n2019,1500.5\n", func(r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "pasture", q.Get("file"))
		assert.Equal(t, testFilter, q.Get("filter"))
		assert.Equal(t, "year=2019 AND "+testFilter, q.Get("region"))
		assert.Equal(t, contentTypeCSV, r.Header.Get("Accept"))
	})

	c := testClient(srv.URL)
	resp, err := c.FetchReport(context.Background(), domain.SearchRequest{
		Kind:             domain.PastureArea,
		Year:             domain.Int(2019),
		MunicipalityCode: domain.Int(3302025),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, contentTypeCSV, resp.Header.Get(headerContentType))
	assert.Equal(t, "year,area_ha\n2019,1500.5\n", string(resp.Body))
	assert.Equal(t, "pasture", resp.Parameters.File)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FetchRequests.WithLabelValues("pasture_area", "success")))
}

func TestClient_FetchReport_DegradationHasNoRegion(t *testing.T) {
	srv := csvServer(t, "classe,area_ha\n1,10\n", func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "classes_degradacao_pastagem", q.Get("file"))
		assert.Equal(t, testFilter, q.Get("filter"))
		assert.False(t, q.Has("region"))
	})

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), domain.SearchRequest{
		Kind:             domain.DegradationClasses,
		MunicipalityCode: domain.Int(3302025),
	})
	require.NoError(t, err)
}

func TestClient_FetchReport_EmptyFilterIsSent(t *testing.T) {
	srv := csvServer(t, "a\n", func(r *http.Request) {
		q := r.URL.Query()
		assert.True(t, q.Has("filter"))
		assert.Equal(t, "", q.Get("filter"))
		assert.Equal(t, "year=2019", q.Get("region"))
	})

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.PastureArea, Year: domain.Int(2019)})
	require.NoError(t, err)
}

func TestClient_FetchReport_MissingKindMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := csvServer(t, "", func(_ *http.Request) { calls.Add(1) })

	c := testClient(srv.URL)
	resp, err := c.FetchReport(context.Background(), domain.SearchRequest{Year: domain.Int(2019)})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_FetchReport_NonOKStatusIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.LivestockCapacity})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.False(t, resp.OK())
	assert.Equal(t, "boom", string(resp.Body))
}

func TestClient_FetchReport_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.PastureArea})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FetchRequests.WithLabelValues("pasture_area", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.metrics.FetchDuration), "failed calls are timed too")
}

func TestClient_FetchReport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.PastureArea}, WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_FetchReport_Options(t *testing.T) {
	srv := csvServer(t, "a\n", func(r *http.Request) {
		assert.Equal(t, "pastagem-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		q := r.URL.Query()
		assert.Equal(t, "pt", q.Get("lang"))
		assert.Equal(t, "pasture", q.Get("file"), "file cannot be overridden")
	})

	c := testClient(srv.URL)
	_, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.PastureArea},
		WithHeader("User-Agent", "pastagem-test"),
		WithHeader("Accept", "application/octet-stream"),
		WithQuery("lang", "pt"),
		WithQuery("file", "other"),
	)
	require.NoError(t, err)
}

func TestClient_FetchReport_Proxy(t *testing.T) {
	var proxied atomic.Bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Store(true)
		assert.Equal(t, "atlas.invalid", r.URL.Host)
		_, _ = w.Write([]byte("a\n1\n"))
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	c := testClient("http://atlas.invalid/downloadCSV")
	resp, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.PastureArea}, WithProxy(proxyURL))
	require.NoError(t, err)
	assert.True(t, proxied.Load())
	assert.Equal(t, "a\n1\n", string(resp.Body))
}

func TestClient_FetchReport_ReservedParamsCannotBeInjected(t *testing.T) {
	tests := []struct {
		name       string
		baseQuery  string
		req        domain.SearchRequest
		wantFilter string
		wantRegion string
	}{
		{
			name: "degradation never sends region",
			req:  domain.SearchRequest{Kind: domain.DegradationClasses},
		},
		{
			name:       "intensification with base url region",
			baseQuery:  "?region=year%3D1999&filter=x",
			req:        domain.SearchRequest{Kind: domain.IntensificationPotential, MunicipalityCode: domain.Int(3302025)},
			wantFilter: testFilter,
		},
		{
			name:       "pasture region comes from the request",
			baseQuery:  "?region=year%3D1999",
			req:        domain.SearchRequest{Kind: domain.PastureArea, Year: domain.Int(2019)},
			wantRegion: "year=2019",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := csvServer(t, "a\n", func(r *http.Request) {
				q := r.URL.Query()
				assert.Equal(t, []string{tt.req.Kind.File()}, q["file"])
				assert.Equal(t, []string{tt.wantFilter}, q["filter"])
				if tt.wantRegion == "" {
					assert.False(t, q.Has("region"))
				} else {
					assert.Equal(t, []string{tt.wantRegion}, q["region"])
				}
				assert.Equal(t, "pt", q.Get("lang"))
			})

			c := testClient(srv.URL + tt.baseQuery)
			_, err := c.FetchReport(context.Background(), tt.req,
				WithQuery("region", "year=1999"),
				WithQuery("filter", "cd_geocmu='1'"),
				WithQuery("lang", "pt"),
			)
			require.NoError(t, err)
		})
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_FetchReport_Doer(t *testing.T) {
	errDown := errors.New("upstream down")
	c := testClient(DefaultBaseURL)

	_, err := c.FetchReport(context.Background(), domain.SearchRequest{Kind: domain.IntensificationPotential},
		WithDoer(doerFunc(func(r *http.Request) (*http.Response, error) {
			assert.Equal(t, "pastagem.org", r.URL.Host)
			assert.Equal(t, "potencial_intensificacao_pecuaria", r.URL.Query().Get("file"))
			return nil, errDown
		})))
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
}

func TestResponse_Records(t *testing.T) {
	resp := &Response{StatusCode: http.StatusOK, Body: []byte("a,b\n1,foo\n")}
	records, err := resp.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)

	a, _ := records[0].Get("a")
	assert.True(t, a.IsNumber())
}

func TestClient_FetchRecords(t *testing.T) {
	t.Run("converts body", func(t *testing.T) {
		srv := csvServer(t, "cd_geocmu,classe\n3302025,NaN\n5208707,2\n", nil)
		c := testClient(srv.URL)

		records, err := c.FetchRecords(context.Background(), domain.SearchRequest{Kind: domain.DegradationClasses})
		require.NoError(t, err)
		require.Len(t, records, 2)

		classe, _ := records[0].Get("classe")
		assert.Equal(t, "NaN", classe.String())
		assert.False(t, classe.IsNumber())
		assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.RecordsConverted.WithLabelValues("degradation_classes")))
	})

	t.Run("status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		c := testClient(srv.URL)

		_, err := c.FetchRecords(context.Background(), domain.SearchRequest{Kind: domain.PastureArea})
		require.Error(t, err)
		assert.True(t, IsStatusError(err))
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("parse error", func(t *testing.T) {
		srv := csvServer(t, "a,b\n1\n", nil)
		c := testClient(srv.URL)

		_, err := c.FetchRecords(context.Background(), domain.SearchRequest{Kind: domain.PastureArea})
		require.Error(t, err)

		var perr *domain.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.ConvertErrors.WithLabelValues("pasture_area")))
	})
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	c := NewClient("", time.Second, observability.NewMetricsForTesting(), slog.Default())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

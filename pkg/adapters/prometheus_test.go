package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

const rangeBody = `{"status":"success","data":{"resultType":"matrix","result":[
	{"metric":{"pod":"a"},"values":[[1700000120,"3"],[1700000060,"2"]]},
	{"metric":{"pod":"b"},"values":[[1700000060,"5"],[1700000120,"7.5"]]}
]}}`

func TestParseRangeResponse_SumsSeries(t *testing.T) {
	points, err := ParseRangeResponse([]byte(rangeBody))
	if err != nil {
		t.Fatalf("ParseRangeResponse() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if !points[0].Timestamp.Equal(time.Unix(1700000060, 0)) || points[0].Value != 7 {
		t.Errorf("points[0] = %+v, want ts=1700000060 value=7", points[0])
	}
	if !points[1].Timestamp.Equal(time.Unix(1700000120, 0)) || points[1].Value != 10.5 {
		t.Errorf("points[1] = %+v, want ts=1700000120 value=10.5", points[1])
	}
}

func TestParseRangeResponse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"status":`},
		{"error status", `{"status":"error","error":"bad query"}`},
		{"bad pair", `{"status":"success","data":{"result":[{"values":[[1700000000]]}]}}`},
		{"bad value", `{"status":"success","data":{"result":[{"values":[[1700000000,"abc"]]}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRangeResponse([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseRangeResponse_Empty(t *testing.T) {
	points, err := ParseRangeResponse([]byte(`{"status":"success","data":{"resultType":"matrix","result":[]}}`))
	if err != nil {
		t.Fatalf("ParseRangeResponse() error = %v", err)
	}
	if len(points) != 0 {
		t.Errorf("got %d points, want 0", len(points))
	}
}

func TestRangeQuery_Fetch(t *testing.T) {
	var gotPath, gotQuery, gotStep, gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("query")
		gotStep = r.URL.Query().Get("step")
		gotStart = r.URL.Query().Get("start")
		gotEnd = r.URL.Query().Get("end")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rangeBody))
	}))
	defer srv.Close()

	src := &RangeQuery{ServerURL: srv.URL, Query: `sum(rate(http_requests_total[1m]))`, Step: 30 * time.Second}
	points, err := src.Fetch(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if gotPath != "/api/v1/query_range" {
		t.Errorf("path = %s, want /api/v1/query_range", gotPath)
	}
	if gotQuery != `sum(rate(http_requests_total[1m]))` {
		t.Errorf("query = %s", gotQuery)
	}
	if gotStep != "30" {
		t.Errorf("step = %s, want 30", gotStep)
	}
	for name, v := range map[string]string{"start": gotStart, "end": gotEnd} {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			t.Errorf("%s = %q, want unix seconds", name, v)
			continue
		}
		if ts%30 != 0 {
			t.Errorf("%s = %d, want a multiple of the 30s step", name, ts)
		}
	}
	if len(points) != 2 {
		t.Errorf("got %d points, want 2", len(points))
	}
}

func TestRangeQuery_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := &RangeQuery{Kind: "victoriametrics", ServerURL: srv.URL, Query: "up"}
	if _, err := src.Fetch(context.Background(), time.Hour); err == nil {
		t.Error("expected error for non-200 status")
	}

	if _, err := (&RangeQuery{}).Fetch(context.Background(), time.Hour); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestRangeQuery_Name(t *testing.T) {
	if got := (&RangeQuery{}).Name(); got != "prometheus" {
		t.Errorf("Name() = %s, want prometheus", got)
	}
	if got := (&RangeQuery{Kind: "victoriametrics"}).Name(); got != "victoriametrics" {
		t.Errorf("Name() = %s, want victoriametrics", got)
	}
}

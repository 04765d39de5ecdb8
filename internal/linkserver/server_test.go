package linkserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gregLibert/cardshare/internal/catalog"
	"github.com/gregLibert/cardshare/internal/store"
	"github.com/gregLibert/cardshare/pkg/card"
	"github.com/gregLibert/cardshare/pkg/link"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

const base = "https://cards.example/share"

var acme = catalog.New(card.Provider{ID: "acme", DisplayName: "Acme", BarcodeFormat: card.EAN13})

func newTestServer(t *testing.T, s *store.Store, opts Options) *httptest.Server {
	t.Helper()
	if opts.Base == "" {
		opts.Base = base
	}
	srv := httptest.NewServer(New(s, acme, opts, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz = %d %v", resp.StatusCode, body)
	}
}

func TestExport_SelectedCards(t *testing.T) {
	s := store.NewMemory(
		card.PersonalCard{ID: 1, Provider: "acme", CardNumber: "111"},
		card.PersonalCard{ID: 2, Provider: "acme", CardNumber: "222"},
	)
	srv := newTestServer(t, s, Options{})

	resp, err := http.Get(srv.URL + "/share/export?ids=2")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Link  string `json:"link"`
		Cards int    `json:"cards"`
	}
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body.Cards != 1 {
		t.Fatalf("export = %d %+v", resp.StatusCode, body)
	}
	if !strings.HasPrefix(body.Link, base+"?") {
		t.Errorf("link %q not built on %q", body.Link, base)
	}

	got, err := link.DecodeString(body.Link, transfer.NewCodec(acme))
	if err != nil {
		t.Fatal(err)
	}
	want := []card.PersonalCard{{ID: card.TemporaryID, Provider: "acme", CardNumber: "222"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exported cards mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if _, err := uuid.Parse(resp.Header.Get("X-Request-Id")); err != nil {
		t.Errorf("minted request id: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "abc-123" {
		t.Errorf("request id = %q, want the caller's", got)
	}
}

func TestExport_BadIDs(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{})

	resp, err := http.Get(srv.URL + "/share/export?ids=1,x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPreview(t *testing.T) {
	raw, err := link.Export(base, transfer.NewCodec(nil), []card.PersonalCard{
		{Provider: "acme", CardNumber: "0042"},
	})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(raw)
	srv := newTestServer(t, store.NewMemory(), Options{})

	resp, err := http.Get(srv.URL + "/share?" + u.RawQuery)
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Cards []cardView `json:"cards"`
	}
	decodeBody(t, resp, &body)
	want := []cardView{{ID: card.TemporaryID, Provider: "acme", CardNumber: "0042"}}
	if diff := cmp.Diff(want, body.Cards); diff != "" {
		t.Errorf("preview mismatch (-want +got):\n%s", diff)
	}
}

func TestPreview_Rejections(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{})

	tests := []struct {
		name   string
		query  string
		status int
		kind   string
	}{
		{"not a card link", "type=offer&data=AAAA", http.StatusBadRequest, ""},
		{"no type", "data=yk3aegAAAAEAAAAAzETdjQ", http.StatusBadRequest, ""},
		{"corrupted", "type=card&data=yk3begAAAAEAAAAAzETdjQ", http.StatusUnprocessableEntity, transfer.WrongChecksum.String()},
		{"not base64", "type=card&data=***", http.StatusUnprocessableEntity, transfer.InvalidData.String()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/share?" + tc.query)
			if err != nil {
				t.Fatal(err)
			}
			var body errorBody
			decodeBody(t, resp, &body)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tc.status, body.Error)
			}
			if body.Kind != tc.kind {
				t.Errorf("kind = %q, want %q", body.Kind, tc.kind)
			}
		})
	}
}

func TestImport_MergesOnce(t *testing.T) {
	s := store.NewMemory()
	srv := newTestServer(t, s, Options{})

	raw, err := link.Export(base, transfer.NewCodec(nil), []card.PersonalCard{
		{Provider: "acme", CardNumber: "1"},
		{Provider: "acme", CardNumber: "2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(importRequest{URL: raw})

	post := func() importResponse {
		t.Helper()
		resp, err := http.Post(srv.URL+"/share/import", "application/json", strings.NewReader(string(payload)))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var out importResponse
		decodeBody(t, resp, &out)
		return out
	}

	if got := post(); got != (importResponse{Imported: 2}) {
		t.Errorf("first import = %+v", got)
	}
	if got := post(); got != (importResponse{Skipped: 2}) {
		t.Errorf("second import = %+v", got)
	}
	if n := len(s.List()); n != 2 {
		t.Errorf("store holds %d cards, want 2", n)
	}
}

func TestImport_BadBody(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{})

	resp, err := http.Post(srv.URL+"/share/import", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{RequestsPerMinute: 2})

	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, store.NewMemory(), Options{CorsOrigins: []string{"https://app.example"}})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/share/import", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

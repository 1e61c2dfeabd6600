/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHttpClient(t *testing.T) {
	t.Run("Timeout", func(t *testing.T) {
		client := NewHttpClient(HttpConfiguration{ReadTimeoutMs: 1500, MaxParallelRequestsCount: 4})
		assert.Equal(t, 1500*time.Millisecond, client.Timeout)
		assert.Equal(t, 4, client.Transport.(*http.Transport).MaxConnsPerHost)
	})

	t.Run("HttpProxy", func(t *testing.T) {
		client := NewHttpClient(HttpConfiguration{EnableProxy: true, ProxyScheme: "http", ProxyHost: "proxy.local", ProxyPort: 3128})
		transport := client.Transport.(*http.Transport)
		req, _ := http.NewRequest(http.MethodGet, "http://fhir.example.org", nil)
		u, err := transport.Proxy(req)
		require.Nil(t, err)
		assert.Equal(t, "http://proxy.local:3128", u.String())
	})

	t.Run("Socks5Proxy", func(t *testing.T) {
		client := NewHttpClient(HttpConfiguration{EnableProxy: true, ProxyScheme: "socks5", ProxyHost: "proxy.local", ProxyPort: 1080})
		transport := client.Transport.(*http.Transport)
		assert.Nil(t, transport.Proxy)
		assert.NotNil(t, transport.Dial)
	})

	t.Run("BuildProxyURL", func(t *testing.T) {
		assert.Nil(t, HttpUtils.BuildProxyURL("http", "", 80, "", ""))
		u := HttpUtils.BuildProxyURL("http", "proxy.local", 8080, "user", "p@ss")
		require.NotNil(t, u)
		password, _ := u.User.Password()
		assert.Equal(t, "p@ss", password)
		assert.Equal(t, "proxy.local:8080", u.Host)
	})

	t.Run("SystemProxy", func(t *testing.T) {
		for _, env := range []string{"HTTP_PROXY", "http_proxy", "HTTPS_PROXY", "https_proxy"} {
			t.Setenv(env, "")
		}
		assert.Nil(t, HttpUtils.GetSystemProxy())
		t.Setenv("HTTPS_PROXY", "http://corp:8080")
		assert.Equal(t, "corp:8080", HttpUtils.GetSystemProxy().Host)
	})
}

func patientJSON(id, version string) string {
	return fmt.Sprintf(`{"resourceType":"Patient","id":"%s","meta":{"versionId":"%s"}}`, id, version)
}

func testClientResource(baseURL string) *types.ClientResource {
	return &types.ClientResource{
		ID:               "cr-patient",
		FhirResourceType: types.FhirPatient,
		Criteria:         "active=true",
		Client: &types.Client{ID: "c1", BaseURL: baseURL + "/baseR4/",
			Headers: map[string]string{"Authorization": "Bearer fhir"}},
	}
}

func TestFhirClient(t *testing.T) {
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fhir", r.Header.Get("Authorization"))
		assert.Equal(t, FhirJsonMime, r.Header.Get(AcceptKey))
		switch r.URL.Path {
		case "/baseR4/Patient":
			queries = append(queries, r.URL.RawQuery)
			if r.URL.Query().Get("page") == "2" {
				_, _ = io.WriteString(w, `{"resourceType":"Bundle","entry":[{"resource":`+patientJSON("p3", "1")+`}]}`)
				return
			}
			next := "http://" + r.Host + "/baseR4/Patient?page=2"
			_, _ = io.WriteString(w, `{"resourceType":"Bundle","link":[{"relation":"next","url":"`+next+`"}],"entry":[`+
				`{"resource":`+patientJSON("p1", "2")+`},`+
				`{"resource":{"resourceType":"OperationOutcome","id":"oo"}},`+
				`{"resource":`+patientJSON("p2", "1")+`}]}`)
		case "/baseR4/Patient/p1":
			_, _ = io.WriteString(w, patientJSON("p1", "2"))
		case "/baseR4/Patient/gone":
			w.WriteHeader(http.StatusGone)
		case "/baseR4/Patient/broken":
			_, _ = io.WriteString(w, `{"id":"x"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "boom")
		}
	}))
	defer server.Close()
	client := NewFhirClient(server.Client(), nil)
	cr := testClientResource(server.URL)
	ctx := context.Background()
	since := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("Search", func(t *testing.T) {
		resources, err := client.Search(ctx, cr, since, 0)
		require.Nil(t, err)
		require.Equal(t, 3, len(resources))
		assert.Equal(t, "Patient/p1/_history/2", fhir.VersionedID(resources[0]))
		assert.Equal(t, "p3", resources[2].GetID())
		assert.Contains(t, queries[0], "_lastUpdated=ge2024-03-01T09%3A00%3A00Z")
		assert.Contains(t, queries[0], "_sort=_lastUpdated")
		assert.True(t, strings.HasSuffix(queries[0], "&active=true"))
	})

	t.Run("SearchMax", func(t *testing.T) {
		queries = nil
		resources, err := client.Search(ctx, cr, time.Time{}, 1)
		require.Nil(t, err)
		assert.Equal(t, 1, len(resources))
		assert.Equal(t, 1, len(queries))
		assert.Contains(t, queries[0], "_count=1")
		assert.NotContains(t, queries[0], "_lastUpdated=")
	})

	t.Run("Read", func(t *testing.T) {
		r, err := client.Read(ctx, cr, "Patient", "p1")
		require.Nil(t, err)
		assert.Equal(t, "2", r.GetMeta().VersionID)

		_, err = client.Read(ctx, cr, "Patient", "gone")
		assert.ErrorIs(t, err, types.ErrNotFound)
		_, err = client.Read(ctx, cr, "Patient", "broken")
		assert.ErrorIs(t, err, types.ErrData)
		_, err = client.Read(ctx, cr, "Patient", "other")
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("NoClient", func(t *testing.T) {
		_, err := client.Search(ctx, &types.ClientResource{ID: "x"}, since, 0)
		assert.ErrorIs(t, err, types.ErrFatalTransformer)
	})
}

// fakeTracker serves a minimal tracker Web API.
type fakeTracker struct {
	requests []string
	bodies   map[string][]byte
}

func (f *fakeTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if user, password, ok := r.BasicAuth(); !ok || user != "admin" || password != "district" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		if len(b) > 0 {
			f.bodies[r.Method+" "+r.URL.Path] = b
		}
	}
	switch r.Method + " " + r.URL.Path {
	case "GET /api/trackedEntityInstances/te1":
		_, _ = io.WriteString(w, `{"trackedEntityInstance":"te1","trackedEntityType":"tet1","orgUnit":"ou1","attributes":[{"attribute":"att1","value":"N1"}]}`)
	case "GET /api/trackedEntityInstances":
		switch r.URL.Query().Get("filter") {
		case "att1:EQ:N1":
			_, _ = io.WriteString(w, `{"trackedEntityInstances":[{"trackedEntityInstance":"te1","trackedEntityType":"tet1"}]}`)
		case "att1:EQ:DUP":
			_, _ = io.WriteString(w, `{"trackedEntityInstances":[{"trackedEntityInstance":"a"},{"trackedEntityInstance":"b"}]}`)
		default:
			_, _ = io.WriteString(w, `{"trackedEntityInstances":[]}`)
		}
	case "GET /api/enrollments":
		_, _ = io.WriteString(w, `{"enrollments":[{"enrollment":"en0","status":"COMPLETED"},{"enrollment":"en1","program":"prg1","status":"ACTIVE"}]}`)
	case "GET /api/events":
		_, _ = io.WriteString(w, `{"events":[`+
			`{"event":"ev2","enrollment":"en1","eventDate":"2024-03-02T00:00:00Z","dataValues":[{"dataElement":"de1","value":"70"}]},`+
			`{"event":"ev1","enrollment":"en1","eventDate":"2024-03-01T00:00:00Z","dataValues":[]},`+
			`{"event":"other","enrollment":"en9"}]}`)
	case "POST /api/trackedEntityInstances":
		_, _ = io.WriteString(w, `{"status":"OK","response":{"status":"SUCCESS","importSummaries":[{"status":"SUCCESS","reference":"newTe"}]}}`)
	case "POST /api/events":
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"status":"ERROR","response":{"importSummaries":[{"status":"ERROR","description":"Event date is required"}]}}`)
	case "PUT /api/enrollments/en1":
		_, _ = io.WriteString(w, `{"status":"OK","response":{"status":"SUCCESS"}}`)
	case "DELETE /api/events/ev1":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestTrackerClient(t *testing.T) {
	fake := &fakeTracker{bodies: make(map[string][]byte)}
	server := httptest.NewServer(fake)
	defer server.Close()
	client, err := NewTrackerClient(server.Client(), TrackerConfiguration{BaseURL: server.URL + "/api/", Username: "admin", Password: "district"})
	require.Nil(t, err)
	ctx := context.Background()

	t.Run("Config", func(t *testing.T) {
		_, err := NewTrackerClient(nil, TrackerConfiguration{})
		assert.ErrorIs(t, err, types.ErrMappingConfiguration)
	})

	t.Run("FindTrackedEntity", func(t *testing.T) {
		te, err := client.FindTrackedEntity(ctx, "te1")
		require.Nil(t, err)
		assert.Equal(t, "N1", te.GetAttribute("att1").Value)
		assert.False(t, te.IsNewResource())

		_, err = client.FindTrackedEntity(ctx, "missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("FindTrackedEntityByIdentifier", func(t *testing.T) {
		te, err := client.FindTrackedEntityByIdentifier(ctx, "tet1", "att1", "N1")
		require.Nil(t, err)
		assert.Equal(t, "te1", te.ID)

		te, err = client.FindTrackedEntityByIdentifier(ctx, "tet1", "att1", "N2")
		assert.Nil(t, err)
		assert.Nil(t, te)

		_, err = client.FindTrackedEntityByIdentifier(ctx, "tet1", "att1", "DUP")
		assert.ErrorIs(t, err, types.ErrData)
	})

	t.Run("FindActiveEnrollment", func(t *testing.T) {
		en, err := client.FindActiveEnrollment(ctx, "prg1", "te1")
		require.Nil(t, err)
		assert.Equal(t, "en1", en.ID)
	})

	t.Run("FindEvents", func(t *testing.T) {
		events, err := client.FindEvents(ctx, "stg1", "en1")
		require.Nil(t, err)
		require.Equal(t, 2, len(events))
		assert.Equal(t, "ev1", events[0].ID)
		assert.True(t, events[1].DataValues[0].HasValue)
	})

	t.Run("SaveNew", func(t *testing.T) {
		te := &tracker.TrackedEntity{TypeID: "tet1", OrgUnitID: "ou1", NewResource: true}
		te.GetAttribute("att1").Value = "N3"
		id, err := client.Save(ctx, te)
		require.Nil(t, err)
		assert.Equal(t, "newTe", id)

		var sent map[string]interface{}
		require.Nil(t, json.Unmarshal(fake.bodies["POST /api/trackedEntityInstances"], &sent))
		assert.Equal(t, "tet1", sent["trackedEntityType"])
		assert.Nil(t, sent["trackedEntityInstance"])
	})

	t.Run("SaveRejected", func(t *testing.T) {
		_, err := client.Save(ctx, &tracker.Event{ProgramStageID: "stg1", NewResource: true})
		require.NotNil(t, err)
		assert.ErrorIs(t, err, types.ErrData)
		assert.Contains(t, err.Error(), "Event date is required")
	})

	t.Run("SaveUpdate", func(t *testing.T) {
		id, err := client.Save(ctx, &tracker.Enrollment{ID: "en1", ProgramID: "prg1"})
		require.Nil(t, err)
		assert.Equal(t, "en1", id)
	})

	t.Run("SaveDeleted", func(t *testing.T) {
		id, err := client.Save(ctx, &tracker.Event{ID: "ev1", Deleted: true})
		require.Nil(t, err)
		assert.Equal(t, "ev1", id)
		assert.Equal(t, "DELETE /api/events/ev1", fake.requests[len(fake.requests)-1])
	})

	t.Run("Unauthorized", func(t *testing.T) {
		other, _ := NewTrackerClient(server.Client(), TrackerConfiguration{BaseURL: server.URL + "/api"})
		_, err := other.FindTrackedEntity(ctx, "te1")
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

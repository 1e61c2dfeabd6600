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

package rest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/metrics"
	"github.com/rulego/fhiradapter/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

type recorder struct {
	mu    sync.Mutex
	items []*types.QueuedItem
	err   error
}

func (r *recorder) Notify(ctx context.Context, item *types.QueuedItem) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	r.items = append(r.items, item)
	return true, nil
}

func newTestRest(t *testing.T, opts ...Option) (*Rest, *recorder) {
	doc, err := memory.LoadFile("../../store/memory/testdata/mapping.yaml")
	require.Nil(t, err)
	repo, err := memory.NewRepository(doc, types.NewConfig())
	require.Nil(t, err)
	notifier := &recorder{}
	return New(Config{Addr: ":0"}, types.NewConfig(), repo, notifier, opts...), notifier
}

func send(r *Rest, method, path, contentType, auth string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.Router().ServeHTTP(w, req)
	return w
}

func TestWebhook(t *testing.T) {
	r, notifier := newTestRest(t)
	const auth = "Bearer secret"

	t.Run("Notify", func(t *testing.T) {
		w := send(r, http.MethodPost, HookPath+"/c1/cr-observation", "", auth, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, w.Body.Len())
		require.Equal(t, 1, len(notifier.items))
		item := notifier.items[0]
		assert.Equal(t, "cr-observation", item.ClientResourceID)
		assert.Equal(t, "", item.ResourceType)
		assert.Nil(t, item.Payload)
		assert.False(t, item.ReceivedAt.IsZero())
	})

	t.Run("Payload", func(t *testing.T) {
		body := []byte(`{"resourceType":"Observation","id":"o1"}`)
		for _, method := range []string{http.MethodPost, http.MethodPut} {
			w := send(r, method, HookPath+"/c1/cr-observation/Observation/o1", "application/fhir+json", auth, body)
			assert.Equal(t, http.StatusOK, w.Code, method)
		}
		item := notifier.items[len(notifier.items)-1]
		assert.Equal(t, "Observation", item.ResourceType)
		assert.Equal(t, "o1", item.ResourceID)
		assert.Equal(t, body, item.Payload)
		assert.Equal(t, "application/fhir+json", item.ContentType)
	})

	t.Run("Charset", func(t *testing.T) {
		latin1, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(`{"resourceType":"Patient","id":"p1","name":[{"family":"Müller"}]}`))
		require.Nil(t, err)
		w := send(r, http.MethodPut, HookPath+"/c1/cr-patient/Patient/p1", "application/json; charset=ISO-8859-1", auth, latin1)
		assert.Equal(t, http.StatusOK, w.Code)
		item := notifier.items[len(notifier.items)-1]
		assert.True(t, strings.Contains(string(item.Payload), "Müller"))

		w = send(r, http.MethodPut, HookPath+"/c1/cr-patient/Patient/p1", "application/json; charset=x-unknown", auth, latin1)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("PayloadExpected", func(t *testing.T) {
		w := send(r, http.MethodPost, HookPath+"/c1/cr-observation/Observation/o1", "application/json", auth, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Payload expected.", strings.TrimSpace(w.Body.String()))
	})

	t.Run("ResourceTypeMismatch", func(t *testing.T) {
		w := send(r, http.MethodPost, HookPath+"/c1/cr-observation/Patient/p1", "application/json", auth, []byte("{}"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, send(r, http.MethodPost, HookPath+"/c1/unknown", "", auth, nil).Code)
		assert.Equal(t, http.StatusNotFound, send(r, http.MethodPost, HookPath+"/c2/cr-observation", "", auth, nil).Code)
		assert.Equal(t, http.StatusNotFound, send(r, http.MethodPost, HookPath+"/c1/cr-export", "", auth, nil).Code)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodPost, HookPath+"/c1/cr-observation", "", "", nil).Code)
		assert.Equal(t, http.StatusUnauthorized, send(r, http.MethodPost, HookPath+"/c1/cr-observation", "", "Bearer wrong", nil).Code)
	})

	t.Run("QueueStopped", func(t *testing.T) {
		notifier.err = types.ErrQueueStopped
		defer func() { notifier.err = nil }()
		assert.Equal(t, http.StatusServiceUnavailable, send(r, http.MethodPost, HookPath+"/c1/cr-observation", "", auth, nil).Code)
	})
}

func TestCustomAuthorizer(t *testing.T) {
	r, _ := newTestRest(t, WithAuthorizer(AuthorizerFunc(func(r *http.Request, client *types.Client) bool {
		return r.Header.Get("X-Token") == client.ID
	})))
	req := httptest.NewRequest(http.MethodPost, HookPath+"/c1/cr-observation", nil)
	req.Header.Set("X-Token", "c1")
	w := httptest.NewRecorder()
	r.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewTransformMetrics(reg)
	m.IncrementQueued()
	r, _ := newTestRest(t, WithGatherer(reg))
	w := send(r, http.MethodGet, MetricsPath, "", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "queue_events_total"))
}

func TestStop(t *testing.T) {
	r, _ := newTestRest(t)
	assert.Nil(t, r.Stop(context.Background()))
	assert.Equal(t, http.ErrServerClosed, r.Start())
}

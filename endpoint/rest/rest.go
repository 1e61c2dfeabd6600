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

// Package rest provides the webhook endpoint FHIR servers notify about
// changed resources. Notifications are stored in the queue and answered
// with 200 and an empty body.
package rest

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/utils/runtime"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	// HookPath is the path prefix of the webhook
	HookPath = "/remote-fhir-rest-hook"
	// MetricsPath exposes the prometheus metrics
	MetricsPath = "/metrics"
	// DefaultMaxPayloadSize 默认最大请求体大小
	DefaultMaxPayloadSize = 10 << 20
)

// Config of the HTTP server.
type Config struct {
	Addr        string
	CertFile    string
	CertKeyFile string
	// MaxPayloadSize limits the request body, DefaultMaxPayloadSize when not positive.
	MaxPayloadSize int64
}

// Notifier stores notifications, usually *queue.Queue.
type Notifier interface {
	Notify(ctx context.Context, item *types.QueuedItem) (bool, error)
}

// Authorizer decides whether a request may notify for client.
type Authorizer interface {
	Authorize(r *http.Request, client *types.Client) bool
}

type AuthorizerFunc func(r *http.Request, client *types.Client) bool

func (f AuthorizerFunc) Authorize(r *http.Request, client *types.Client) bool {
	return f(r, client)
}

// HeaderAuthorizer compares the Authorization header with the value
// configured for the client. Clients without a configured value accept
// every request.
var HeaderAuthorizer = AuthorizerFunc(func(r *http.Request, client *types.Client) bool {
	if client.AuthorizationHeader == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(client.AuthorizationHeader)) == 1
})

type Option func(r *Rest)

func WithAuthorizer(authorizer Authorizer) Option {
	return func(r *Rest) {
		r.authorizer = authorizer
	}
}

// WithGatherer serves the metrics of gatherer instead of the default registry.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(r *Rest) {
		r.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
}

// Rest 接收FHIR服务器变更通知的端点
type Rest struct {
	Config     Config
	logger     types.Logger
	clients    types.ClientResourceRepository
	notifier   Notifier
	authorizer Authorizer
	metrics    http.Handler
	router     *httprouter.Router
	mu         sync.Mutex
	server     *http.Server
	stopped    bool
	// now 测试时可替换
	now func() time.Time
}

func New(config Config, adapterConfig types.Config, clients types.ClientResourceRepository, notifier Notifier, opts ...Option) *Rest {
	r := &Rest{
		Config:     config,
		logger:     adapterConfig.Logger,
		clients:    clients,
		notifier:   notifier,
		authorizer: HeaderAuthorizer,
		metrics:    promhttp.Handler(),
		now:        time.Now,
	}
	if r.logger == nil {
		r.logger = types.DefaultLogger()
	}
	if r.Config.MaxPayloadSize <= 0 {
		r.Config.MaxPayloadSize = DefaultMaxPayloadSize
	}
	for _, opt := range opts {
		opt(r)
	}
	r.router = httprouter.New()
	r.router.POST(HookPath+"/:clientId/:clientResourceId", r.handler(false))
	r.router.POST(HookPath+"/:clientId/:clientResourceId/:resourceType/:resourceId", r.handler(true))
	r.router.PUT(HookPath+"/:clientId/:clientResourceId/:resourceType/:resourceId", r.handler(true))
	r.router.Handler(http.MethodGet, MetricsPath, r.metrics)
	return r
}

func (r *Rest) Router() *httprouter.Router {
	return r.router
}

// Start serves until Stop is called. It returns http.ErrServerClosed after
// Stop, also when Stop was called first.
func (r *Rest) Start() error {
	server := &http.Server{Addr: r.Config.Addr, Handler: r.router, ReadHeaderTimeout: 10 * time.Second}
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return http.ErrServerClosed
	}
	r.server = server
	r.mu.Unlock()
	if r.Config.CertKeyFile != "" && r.Config.CertFile != "" {
		r.logger.Printf("starting server with TLS on :%s", r.Config.Addr)
		return server.ListenAndServeTLS(r.Config.CertFile, r.Config.CertKeyFile)
	}
	r.logger.Printf("starting server on :%s", r.Config.Addr)
	return server.ListenAndServe()
}

func (r *Rest) Stop(ctx context.Context) error {
	r.mu.Lock()
	server := r.server
	r.stopped = true
	r.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (r *Rest) handler(withPayload bool) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		defer func() {
			//捕捉异常
			if e := recover(); e != nil {
				r.logger.Printf("rest handler err :%v\n%s", e, runtime.Stack())
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		status, msg := r.receive(req, params, withPayload)
		if status != http.StatusOK {
			http.Error(w, msg, status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (r *Rest) receive(req *http.Request, params httprouter.Params, withPayload bool) (int, string) {
	ctx := req.Context()
	clientID := params.ByName("clientId")
	clientResourceID := params.ByName("clientResourceId")
	cr, err := r.clients.FindClientResource(ctx, clientResourceID)
	if errors.Is(err, types.ErrNotFound) {
		return http.StatusNotFound, "Client resource not found."
	}
	if err != nil {
		r.logger.Printf("Looking up client resource %s failed: %s", clientResourceID, err)
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	if cr.Client == nil || cr.Client.ID != clientID || cr.ExpOnly {
		return http.StatusNotFound, "Client resource not found."
	}
	if !r.authorizer.Authorize(req, cr.Client) {
		return http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)
	}

	item := &types.QueuedItem{ClientResourceID: cr.ID, ReceivedAt: r.now()}
	if withPayload {
		item.ResourceType = params.ByName("resourceType")
		item.ResourceID = params.ByName("resourceId")
		if !strings.EqualFold(item.ResourceType, string(cr.FhirResourceType)) {
			return http.StatusBadRequest, "Resource type does not match client resource."
		}
		payload, problem := r.readPayload(req)
		if problem != "" {
			return http.StatusBadRequest, problem
		}
		if len(bytes.TrimSpace(payload)) == 0 {
			return http.StatusBadRequest, "Payload expected."
		}
		item.Payload = payload
		item.ContentType = req.Header.Get("Content-Type")
	}

	if _, err := r.notifier.Notify(ctx, item); err != nil {
		if errors.Is(err, types.ErrQueueStopped) {
			return http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)
		}
		r.logger.Printf("Queuing notification for %s failed: %s", clientResourceID, err)
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	return http.StatusOK, ""
}

// readPayload reads the body and converts it to UTF-8 using the charset of
// the content type. problem describes why the body is unusable.
func (r *Rest) readPayload(req *http.Request) (data []byte, problem string) {
	var body io.Reader = http.MaxBytesReader(nil, req.Body, r.Config.MaxPayloadSize)
	if _, params, err := mime.ParseMediaType(req.Header.Get("Content-Type")); err == nil {
		if label := params["charset"]; label != "" && !strings.EqualFold(label, "utf-8") {
			enc, err := htmlindex.Get(label)
			if err != nil {
				return nil, "Unsupported charset " + label + "."
			}
			body = enc.NewDecoder().Reader(body)
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "Payload could not be read."
	}
	return data, ""
}

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
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
)

const (
	FhirJsonMime   = "application/fhir+json"
	AcceptKey      = "Accept"
	ContentTypeKey = "Content-Type"
	// maxErrorBodySize 错误响应体最多读取的字节数
	maxErrorBodySize = 4096
	// defaultSearchCount 未限制最大数量时每页的数量
	defaultSearchCount = 100
)

// FhirClient reads resources from the FHIR servers of the clients.
type FhirClient struct {
	client *http.Client
	logger types.Logger
}

// NewFhirClient uses http.DefaultClient when client is nil.
func NewFhirClient(client *http.Client, logger types.Logger) *FhirClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &FhirClient{client: client, logger: types.NewLogger(logger)}
}

// Search returns the resources of the client resource updated since the
// given time, oldest first. Pages are followed until max resources are
// collected; max <= 0 reads all pages.
func (c *FhirClient) Search(ctx context.Context, cr *types.ClientResource, since time.Time, max int) ([]fhir.Resource, error) {
	if cr == nil || cr.Client == nil {
		return nil, types.NewFatalError("client resource without client")
	}
	query := url.Values{}
	query.Set("_sort", "_lastUpdated")
	count := defaultSearchCount
	if max > 0 && max < count {
		count = max
	}
	query.Set("_count", strconv.Itoa(count))
	if !since.IsZero() {
		query.Set("_lastUpdated", "ge"+since.UTC().Format(time.RFC3339))
	}
	next := resourceURL(cr.Client.BaseURL, string(cr.FhirResourceType)) + "?" + query.Encode()
	if criteria := strings.TrimPrefix(strings.TrimSpace(cr.Criteria), "&"); criteria != "" {
		next += "&" + criteria
	}

	var result []fhir.Resource
	for next != "" {
		var bundle fhir.Bundle
		if err := c.get(ctx, cr.Client, next, &bundle); err != nil {
			return nil, err
		}
		resources, err := bundle.Resources()
		if err != nil {
			return nil, types.NewDataError("search result of %s could not be parsed: %s", cr.ID, err)
		}
		for _, r := range resources {
			// 搜索结果可能包含 OperationOutcome 等其它类型的资源
			if r.GetResourceType() != string(cr.FhirResourceType) {
				continue
			}
			result = append(result, r)
			if max > 0 && len(result) >= max {
				return result, nil
			}
		}
		next = bundle.NextURL()
	}
	return result, nil
}

// Read returns types.ErrNotFound when the resource does not exist or has been deleted.
func (c *FhirClient) Read(ctx context.Context, cr *types.ClientResource, resourceType, id string) (fhir.Resource, error) {
	if cr == nil || cr.Client == nil {
		return nil, types.NewFatalError("client resource without client")
	}
	var raw json.RawMessage
	if err := c.get(ctx, cr.Client, resourceURL(cr.Client.BaseURL, resourceType, id), &raw); err != nil {
		return nil, err
	}
	r, err := fhir.ParseResource(raw)
	if err != nil {
		return nil, types.NewDataError("%s/%s could not be parsed: %s", resourceType, id, err)
	}
	return r, nil
}

func (c *FhirClient) get(ctx context.Context, client *types.Client, target string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.NewMappingError("invalid FHIR request url %s: %s", target, err)
	}
	req.Header.Set(AcceptKey, FhirJsonMime)
	for k, value := range client.Headers {
		req.Header.Set(k, value)
	}
	response, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("FHIR request %s failed: %w", target, err)
	}
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusGone:
		return fmt.Errorf("%s: %w", target, types.ErrNotFound)
	case response.StatusCode < 200 || response.StatusCode > 299:
		b, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
		c.logger.Printf("FHIR server of client %s returned %s for %s", client.ID, response.Status, target)
		return fmt.Errorf("FHIR request %s returned %s: %s", target, response.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(response.Body).Decode(v); err != nil {
		return types.NewDataError("FHIR response of %s could not be decoded: %s", target, err)
	}
	return nil
}

func resourceURL(baseURL string, parts ...string) string {
	u := strings.TrimRight(baseURL, "/")
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

var _ types.FhirClient = (*FhirClient)(nil)

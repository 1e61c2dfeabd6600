/*
 * Copyright 2025 The RuleGo Authors.
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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	jsonutil "github.com/rulego/fhiradapter/utils/json"
)

const (
	trackedEntitiesPath = "trackedEntityInstances"
	enrollmentsPath     = "enrollments"
	eventsPath          = "events"
)

// TrackerConfiguration 跟踪系统Web API配置
type TrackerConfiguration struct {
	//BaseURL Web API地址，例如 https://tracker.example.org/api
	BaseURL  string
	Username string
	Password string
}

// TrackerClient implements types.TrackerRepository on top of the tracker Web API.
type TrackerClient struct {
	client *http.Client
	config TrackerConfiguration
}

func NewTrackerClient(client *http.Client, config TrackerConfiguration) (*TrackerClient, error) {
	if config.BaseURL == "" {
		return nil, types.NewMappingError("tracker base url is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, types.NewMappingError("invalid tracker base url %s: %s", config.BaseURL, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TrackerClient{client: client, config: config}, nil
}

// importSummary 导入结果
type importSummary struct {
	Status      string `json:"status"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

type webMessage struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Response struct {
		Status          string          `json:"status"`
		Reference       string          `json:"reference"`
		Description     string          `json:"description"`
		ImportSummaries []importSummary `json:"importSummaries"`
	} `json:"response"`
}

// reference returns the id of the first imported object.
func (m *webMessage) reference() (string, error) {
	summaries := m.Response.ImportSummaries
	if len(summaries) == 0 {
		summaries = []importSummary{{Status: m.Response.Status, Reference: m.Response.Reference, Description: m.Response.Description}}
	}
	s := summaries[0]
	if s.Status != "" && s.Status != "SUCCESS" && s.Status != "OK" {
		return "", types.NewDataError("tracker rejected import: %s %s", s.Status, s.Description)
	}
	return s.Reference, nil
}

func (c *TrackerClient) FindTrackedEntity(ctx context.Context, id string) (*tracker.TrackedEntity, error) {
	var te tracker.TrackedEntity
	if err := c.do(ctx, http.MethodGet, c.url(trackedEntitiesPath+"/"+url.PathEscape(id), url.Values{"fields": {"*"}}), nil, &te); err != nil {
		return nil, err
	}
	return &te, nil
}

func (c *TrackerClient) FindTrackedEntityByIdentifier(ctx context.Context, typeID, attributeID, value string) (*tracker.TrackedEntity, error) {
	query := url.Values{
		"trackedEntityType": {typeID},
		"ouMode":            {"ACCESSIBLE"},
		"filter":            {attributeID + ":EQ:" + value},
		"fields":            {"*"},
		"pageSize":          {"2"},
	}
	var result struct {
		TrackedEntities []*tracker.TrackedEntity `json:"trackedEntityInstances"`
	}
	if err := c.do(ctx, http.MethodGet, c.url(trackedEntitiesPath, query), nil, &result); err != nil {
		return nil, err
	}
	switch len(result.TrackedEntities) {
	case 0:
		return nil, nil
	case 1:
		return result.TrackedEntities[0], nil
	}
	return nil, types.NewDataError("identifier %s of tracked entity type %s is not unique", value, typeID)
}

func (c *TrackerClient) FindActiveEnrollment(ctx context.Context, programID, trackedEntityID string) (*tracker.Enrollment, error) {
	query := url.Values{
		"program":               {programID},
		"trackedEntityInstance": {trackedEntityID},
		"programStatus":         {string(tracker.EnrollmentActive)},
		"ouMode":                {"ACCESSIBLE"},
		"fields":                {"*"},
	}
	var result struct {
		Enrollments []*tracker.Enrollment `json:"enrollments"`
	}
	if err := c.do(ctx, http.MethodGet, c.url(enrollmentsPath, query), nil, &result); err != nil {
		return nil, err
	}
	for _, e := range result.Enrollments {
		if e.Status == tracker.EnrollmentActive {
			return e, nil
		}
	}
	return nil, nil
}

// FindEvents returns the events ordered by event date.
func (c *TrackerClient) FindEvents(ctx context.Context, programStageID, enrollmentID string) ([]*tracker.Event, error) {
	query := url.Values{
		"programStage": {programStageID},
		"enrollment":   {enrollmentID},
		"ouMode":       {"ACCESSIBLE"},
		"order":        {"eventDate:asc"},
		"paging":       {"false"},
		"fields":       {"*"},
	}
	var result struct {
		Events []*tracker.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, c.url(eventsPath, query), nil, &result); err != nil {
		return nil, err
	}
	events := make([]*tracker.Event, 0, len(result.Events))
	for _, e := range result.Events {
		if e.EnrollmentID != "" && e.EnrollmentID != enrollmentID {
			continue
		}
		for _, dv := range e.DataValues {
			dv.HasValue = dv.Value != ""
		}
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].EventDate, events[j].EventDate
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
	return events, nil
}

// Save creates new resources, deletes deleted ones and updates the others.
func (c *TrackerClient) Save(ctx context.Context, resource tracker.Resource) (string, error) {
	var path string
	switch resource.(type) {
	case *tracker.TrackedEntity:
		path = trackedEntitiesPath
	case *tracker.Enrollment:
		path = enrollmentsPath
	case *tracker.Event:
		path = eventsPath
	default:
		return "", types.NewFatalError("unsupported tracker resource %T", resource)
	}
	id := resource.GetID()
	switch {
	case resource.IsDeleted():
		if id == "" {
			return "", nil
		}
		return id, c.do(ctx, http.MethodDelete, c.url(path+"/"+url.PathEscape(id), nil), nil, nil)
	case resource.IsNewResource() || id == "":
		var msg webMessage
		if err := c.do(ctx, http.MethodPost, c.url(path, nil), resource, &msg); err != nil {
			return "", err
		}
		ref, err := msg.reference()
		if err != nil {
			return "", err
		}
		if ref == "" {
			ref = id
		}
		return ref, nil
	default:
		var msg webMessage
		if err := c.do(ctx, http.MethodPut, c.url(path+"/"+url.PathEscape(id), nil), resource, &msg); err != nil {
			return "", err
		}
		if _, err := msg.reference(); err != nil {
			return "", err
		}
		return id, nil
	}
}

func (c *TrackerClient) url(path string, query url.Values) string {
	u := strings.TrimRight(c.config.BaseURL, "/") + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *TrackerClient) do(ctx context.Context, method, target string, body, v interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := jsonutil.Marshal(body)
		if err != nil {
			return types.NewDataError("tracker request body could not be encoded: %s", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return types.NewMappingError("invalid tracker request url %s: %s", target, err)
	}
	req.Header.Set(AcceptKey, "application/json")
	if body != nil {
		req.Header.Set(ContentTypeKey, "application/json")
	}
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}
	response, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request %s %s failed: %w", method, target, err)
	}
	defer func() { _ = response.Body.Close() }()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", target, types.ErrNotFound)
	case response.StatusCode == http.StatusConflict:
		// 409 携带导入失败的摘要
		var msg webMessage
		if err := json.NewDecoder(io.LimitReader(response.Body, maxErrorBodySize)).Decode(&msg); err == nil {
			if _, err := msg.reference(); err != nil {
				return err
			}
		}
		return types.NewDataError("tracker rejected %s %s", method, target)
	case response.StatusCode < 200 || response.StatusCode > 299:
		b, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
		return fmt.Errorf("tracker request %s %s returned %s: %s", method, target, response.Status, strings.TrimSpace(string(b)))
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(v); err != nil && err != io.EOF {
		return types.NewDataError("tracker response of %s could not be decoded: %s", target, err)
	}
	return nil
}

var _ types.TrackerRepository = (*TrackerClient)(nil)

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

package types

import (
	"context"
	"time"

	"github.com/rulego/fhiradapter/api/types/fhir"
)

// Client is a registered remote FHIR server.
type Client struct {
	ID          string
	Name        string
	FhirVersion FhirVersion
	BaseURL     string
	// Headers 请求FHIR服务器时附加的请求头
	Headers map[string]string
	// AuthorizationHeader is the value the FHIR server must send to the webhook; empty disables the check.
	AuthorizationHeader string
	IdentifierSystem    string
	TrackerUsername     string
	Enabled             bool
}

// ClientResource is one resource type subscription of a client.
type ClientResource struct {
	ID               string
	Client           *Client
	FhirResourceType FhirResourceType
	// ExpOnly the resource is only used for exports, notifications are rejected
	ExpOnly bool
	// PreferredForExport selects the endpoint when several clients subscribe to the same type
	PreferredForExport bool
	// Criteria additional search criteria appended to polls
	Criteria string
}

// RuleRepository provides candidate rules. Calls are idempotent and may be cached.
type RuleRepository interface {
	// FindCandidateRules returns rules of the direction and resource type whose
	// applicable codes are empty or intersect codes. Enablement is not filtered.
	FindCandidateRules(ctx context.Context, direction Direction, resourceType string, codes []string) ([]RuleInfo, error)
}

// ClientResourceRepository provides the integration endpoints.
type ClientResourceRepository interface {
	// FindClientResource returns ErrNotFound for unknown ids.
	FindClientResource(ctx context.Context, id string) (*ClientResource, error)
	// FindEndpointFor returns nil without error when no client subscribes to the rules' FHIR types.
	FindEndpointFor(ctx context.Context, rules []RuleInfo) (*ClientResource, error)
}

// CodeRepository maps adapter codes to the FHIR system codes they stand for.
type CodeRepository interface {
	// FindSystemCodes returns "system|code" values of the mapping code.
	FindSystemCodes(ctx context.Context, mappingCode string) ([]string, error)
}

// StoredResource marks a FHIR resource version as processed for a client.
type StoredResource struct {
	ClientID string
	StoredID string
	StoredAt time.Time
}

type StoredResourceRepository interface {
	Contains(ctx context.Context, clientID, storedID string) (bool, error)
	Store(ctx context.Context, resource StoredResource) error
}

// QueuedItem is a deduplicated unit of webhook work.
type QueuedItem struct {
	ID               string
	GroupKey         string
	ClientResourceID string
	ResourceType     string
	ResourceID       string
	ContentType      string
	Payload          []byte
	ReceivedAt       time.Time
	Attempts         int
}

// GroupKeyOf returns the dedup key of a notification.
func GroupKeyOf(clientResourceID, resourceType, resourceID string) string {
	if resourceType == "" && resourceID == "" {
		return clientResourceID
	}
	return clientResourceID + "/" + resourceType + "/" + resourceID
}

// QueueStore persists pending queue items.
type QueueStore interface {
	// Add stores the item; false when an item with the same group key is already stored.
	Add(ctx context.Context, item *QueuedItem) (bool, error)
	Remove(ctx context.Context, groupKey string) error
	// List returns all stored items ordered by receipt.
	List(ctx context.Context) ([]*QueuedItem, error)
}

// FhirClient reads resources from a remote FHIR server.
type FhirClient interface {
	// Search returns resources of the client resource changed since the given time, at most max.
	Search(ctx context.Context, clientResource *ClientResource, since time.Time, max int) ([]fhir.Resource, error)
	Read(ctx context.Context, clientResource *ClientResource, resourceType, id string) (fhir.Resource, error)
}

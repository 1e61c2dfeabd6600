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

// Package processor runs queued change notifications end to end: it fetches
// the outstanding FHIR resources of the notifying client resource, skips the
// versions already processed, transforms them and writes the results to the
// tracker.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/components/scripted"
	"github.com/rulego/fhiradapter/endpoint/queue"
	"github.com/rulego/fhiradapter/engine"
)

// Deps are the collaborators of the processor. Stored is only required when
// config.StoreFhirResource is set.
type Deps struct {
	Service         *engine.Service
	ClientResources types.ClientResourceRepository
	Fhir            types.FhirClient
	Tracker         types.TrackerRepository
	Stored          types.StoredResourceRepository
}

// Processor implements queue.Processor.
type Processor struct {
	config types.Config
	deps   Deps

	mu sync.Mutex
	// lastPolled 每个客户端资源最后一次成功处理的资源更新时间
	lastPolled map[string]time.Time
}

func New(config types.Config, deps Deps) (*Processor, error) {
	if deps.Service == nil || deps.ClientResources == nil || deps.Fhir == nil || deps.Tracker == nil {
		return nil, types.NewFatalError("processor requires a transformation service, client resources, a FHIR client and a tracker")
	}
	if config.StoreFhirResource && deps.Stored == nil {
		return nil, types.NewFatalError("storing processed FHIR resources requires a stored resource repository")
	}
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	return &Processor{config: config, deps: deps, lastPolled: make(map[string]time.Time)}, nil
}

// Process handles one queued notification. Errors that cannot be resolved by
// trying again are logged and swallowed so that the unit is not re-queued.
func (p *Processor) Process(ctx context.Context, item *types.QueuedItem) error {
	cr, err := p.deps.ClientResources.FindClientResource(ctx, item.ClientResourceID)
	if errors.Is(err, types.ErrNotFound) {
		p.config.Logger.Printf("Client resource %s no longer exists, ignoring %s", item.ClientResourceID, item.GroupKey)
		return nil
	}
	if err != nil {
		return err
	}
	if cr.Client == nil || !cr.Client.Enabled {
		p.config.Logger.Printf("Client of client resource %s is disabled, ignoring %s", cr.ID, item.GroupKey)
		return nil
	}

	switch {
	case len(item.Payload) > 0:
		resource, err := fhir.ParseResource(item.Payload)
		if err != nil {
			p.config.Logger.Printf("Payload of %s could not be parsed: %s", item.GroupKey, err)
			return nil
		}
		_, err = p.Import(ctx, cr, resource, item.ReceivedAt)
		return p.retryable(item, err)
	case item.ResourceID != "":
		resourceType := item.ResourceType
		if resourceType == "" {
			resourceType = string(cr.FhirResourceType)
		}
		resource, err := p.deps.Fhir.Read(ctx, cr, resourceType, item.ResourceID)
		if errors.Is(err, types.ErrNotFound) {
			p.config.Logger.Printf("%s/%s has been deleted on the FHIR server of client %s", resourceType, item.ResourceID, cr.Client.ID)
			return nil
		}
		if err != nil {
			return p.retryable(item, err)
		}
		_, err = p.Import(ctx, cr, resource, item.ReceivedAt)
		return p.retryable(item, err)
	default:
		return p.retryable(item, p.poll(ctx, cr, item.ReceivedAt))
	}
}

// poll imports everything changed since the last successful poll of cr.
// A poll that fails part way keeps its since bound, the retry searches the
// same window again and already processed versions are skipped by their
// stored markers.
func (p *Processor) poll(ctx context.Context, cr *types.ClientResource, receivedAt time.Time) error {
	since := p.LastPolled(cr.ID)
	resources, err := p.deps.Fhir.Search(ctx, cr, since, p.config.MaxSearchCount)
	if err != nil {
		return err
	}
	latest := since
	for _, resource := range resources {
		if _, err := p.Import(ctx, cr, resource, receivedAt); err != nil && !permanent(err) {
			return err
		} else if err != nil {
			p.config.Logger.Printf("Importing %s of client resource %s failed: %s", fhir.VersionedID(resource), cr.ID, err)
		}
		if updated := resource.GetMeta().LastUpdatedTime(); updated.After(latest) {
			latest = updated
		}
	}
	p.setLastPolled(cr.ID, latest)
	return nil
}

// Import transforms one FHIR resource of cr and saves the results in the
// tracker. It returns the number of saved tracker resources.
func (p *Processor) Import(ctx context.Context, cr *types.ClientResource, resource fhir.Resource, receivedAt time.Time) (int, error) {
	storedID := fhir.VersionedID(resource)
	if p.config.StoreFhirResource {
		processed, err := p.deps.Stored.Contains(ctx, cr.Client.ID, storedID)
		if err != nil {
			return 0, err
		}
		if processed {
			p.config.Logger.Printf("%s has already been processed for client %s", storedID, cr.Client.ID)
			return 0, nil
		}
	}
	reqCtx := &types.TransformRequestContext{
		Direction:        types.DirectionImport,
		ResourceType:     resource.GetResourceType(),
		ClientResourceID: cr.ID,
		ReceivedAt:       receivedAt,
	}
	request, err := p.deps.Service.CreateRequest(ctx, reqCtx, scripted.NewFhirInput(resource))
	if err != nil {
		return 0, err
	}
	saved := 0
	if request != nil {
		_, err = p.deps.Service.TransformAll(ctx, request, func(ctx context.Context, outcome *engine.TransformOutcome) error {
			n, err := p.persist(ctx, outcome)
			saved += n
			return err
		})
		if err != nil {
			return saved, err
		}
	}
	if p.config.StoreFhirResource {
		if err := p.deps.Stored.Store(ctx, types.StoredResource{ClientID: cr.Client.ID, StoredID: storedID, StoredAt: time.Now()}); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// persist saves the related resources of outcome before its resource.
func (p *Processor) persist(ctx context.Context, outcome *engine.TransformOutcome) (int, error) {
	resource, ok := outcome.Resource.(tracker.Resource)
	if !ok {
		return 0, types.NewFatalError("rule %s produced %T, expected a tracker resource", outcome.Rule, outcome.Resource)
	}
	saved := 0
	for _, r := range outcome.Related {
		related, ok := r.(tracker.Resource)
		if !ok {
			return saved, types.NewFatalError("rule %s produced related %T, expected a tracker resource", outcome.Rule, r)
		}
		id, err := p.deps.Tracker.Save(ctx, related)
		if err != nil {
			return saved, err
		}
		saved++
		if enrollment, ok := related.(*tracker.Enrollment); ok {
			if event, ok := resource.(*tracker.Event); ok && event.EnrollmentID == "" {
				event.EnrollmentID = id
				event.OrgUnitID = firstNonEmpty(event.OrgUnitID, enrollment.OrgUnitID)
			}
		}
	}
	if !resource.IsNewResource() && !resource.IsModified() && !resource.IsDeleted() {
		return saved, nil
	}
	id, err := p.deps.Tracker.Save(ctx, resource)
	if err != nil {
		return saved, err
	}
	p.config.Logger.Printf("Saved %s %s produced by rule %s", resource.GetResourceType(), id, outcome.Rule)
	return saved + 1, nil
}

func (p *Processor) LastPolled(clientResourceID string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPolled[clientResourceID]
}

func (p *Processor) setLastPolled(clientResourceID string, t time.Time) {
	if t.IsZero() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPolled[clientResourceID] = t
}

func (p *Processor) retryable(item *types.QueuedItem, err error) error {
	if err == nil || !permanent(err) {
		return err
	}
	p.config.Logger.Printf("Processing %s failed permanently: %s", item.GroupKey, err)
	return nil
}

// permanent reports whether processing the same input again fails the same way.
func permanent(err error) bool {
	return errors.Is(err, types.ErrData) || errors.Is(err, types.ErrScriptExecution)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ queue.Processor = (*Processor)(nil)

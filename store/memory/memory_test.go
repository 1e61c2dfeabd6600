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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/utils/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRepository(t *testing.T, opts ...types.Option) *Repository {
	doc, err := LoadFile("testdata/mapping.yaml")
	require.Nil(t, err)
	repo, err := NewRepository(doc, types.NewConfig(opts...))
	require.Nil(t, err)
	return repo
}

func TestLoad(t *testing.T) {
	doc, err := LoadFile("testdata/mapping.yaml")
	require.Nil(t, err)
	assert.Equal(t, 1, len(doc.TrackedEntityTypes))
	assert.Equal(t, 3, len(doc.TrackedEntityTypes[0].Attributes))
	assert.Equal(t, "VITAL", doc.Programs[0].Stages[0].Code)
	assert.True(t, doc.Programs[0].Stages[0].DataElements[0].AllowProvidedElsewhere)

	_, err = Load([]byte("programs: [unclosed"))
	assert.NotNil(t, err)

	t.Run("UnknownScript", func(t *testing.T) {
		doc, err := Load([]byte(`
trackedEntityRules:
  - id: r1
    trackedEntityType: CODE:X
    identifierAttribute: CODE:Y
    transformImpScript: {script: MISSING}
`))
		require.Nil(t, err)
		_, err = NewRepository(doc, types.NewConfig())
		assert.ErrorIs(t, err, types.ErrMappingConfiguration)
	})
}

func TestRepositoryRules(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute)
	defer c.StopGC()
	repo := loadRepository(t, types.WithCache(c, "1m"))
	ctx := context.Background()

	rules, err := repo.FindCandidateRules(ctx, types.DirectionImport, "Observation", nil)
	require.Nil(t, err)
	assert.Equal(t, 2, len(rules))
	assert.Equal(t, 1, len(c.GetByPrefix("rules:")))

	// same codes in another order hit the same entry
	_, _ = repo.FindCandidateRules(ctx, types.DirectionImport, "Observation", []string{"b", "a"})
	_, _ = repo.FindCandidateRules(ctx, types.DirectionImport, "Observation", []string{"a", "b"})
	assert.Equal(t, 2, len(c.GetByPrefix("rules:")))

	rules, err = repo.FindCandidateRules(ctx, types.DirectionExport, string(types.TrackedEntityResource), nil)
	require.Nil(t, err)
	require.Equal(t, 1, len(rules))
	te := rules[0].Rule().(*types.TrackedEntityRule)
	assert.Equal(t, tracker.NewReference("PERSON", tracker.ReferenceCode), te.TrackedEntityType)
	assert.Equal(t, "OU_1", te.OrgUnitLookupScript.Args["orgUnit"])
	assert.Equal(t, types.Expr, te.TransformExpScript.Language)

	// disabled flags are loaded, filtering happens on resolution
	var disabled types.Rule
	obs, _ := repo.FindCandidateRules(ctx, types.DirectionImport, "Observation", nil)
	for _, info := range obs {
		if info.Rule().GetID() == "r-disabled" {
			disabled = info.Rule()
		}
	}
	require.NotNil(t, disabled)
	assert.False(t, disabled.EffectiveEnabled(types.DirectionImport))

	require.Nil(t, repo.Reload(&Document{}))
	assert.Equal(t, 0, len(c.GetByPrefix("rules:")))
}

func TestRepositoryApplicableCodes(t *testing.T) {
	doc, err := Load([]byte(`
programStageRules:
  - {id: r1, fhirResourceType: Observation, applicableCodes: ["http://loinc.org|29463-7"], mappedStage: ms1}
mappedPrograms:
  - {id: mp1, program: CODE:CHILD}
mappedStages:
  - {id: ms1, mappedProgram: mp1, programStage: CODE:VITAL}
`))
	require.Nil(t, err)
	repo, err := NewRepository(doc, types.NewConfig())
	require.Nil(t, err)
	ctx := context.Background()

	rules, _ := repo.FindCandidateRules(ctx, types.DirectionImport, "Observation", []string{"http://loinc.org|29463-7"})
	assert.Equal(t, 1, len(rules))
	rules, _ = repo.FindCandidateRules(ctx, types.DirectionImport, "Observation", []string{"http://loinc.org|8302-2"})
	assert.Equal(t, 0, len(rules))
}

func TestRepositoryClients(t *testing.T) {
	repo := loadRepository(t)
	ctx := context.Background()

	cr, err := repo.FindClientResource(ctx, "cr-patient")
	require.Nil(t, err)
	assert.Equal(t, types.FhirPatient, cr.FhirResourceType)
	assert.Equal(t, "c1", cr.Client.ID)
	assert.True(t, cr.Client.Enabled)
	assert.Equal(t, types.R4, cr.Client.FhirVersion)

	_, err = repo.FindClientResource(ctx, "nope")
	assert.ErrorIs(t, err, types.ErrNotFound)

	rules, _ := repo.FindCandidateRules(ctx, types.DirectionExport, string(types.ProgramStageEventResource), nil)
	endpoint, err := repo.FindEndpointFor(ctx, rules)
	require.Nil(t, err)
	assert.Equal(t, "cr-export", endpoint.ID)

	endpoint, err = repo.FindEndpointFor(ctx, nil)
	require.Nil(t, err)
	assert.Nil(t, endpoint)

	codes, _ := repo.FindSystemCodes(ctx, "LOINC_WEIGHT")
	assert.Equal(t, []string{"http://loinc.org|29463-7"}, codes)
}

func TestRepositoryMetadata(t *testing.T) {
	repo := loadRepository(t)
	ctx := context.Background()

	p, err := repo.FindProgram(ctx, tracker.NewReference("Child Programme", tracker.ReferenceName))
	require.Nil(t, err)
	assert.Equal(t, "prg1", p.ID)
	p, _ = repo.FindProgram(ctx, tracker.NewReference("OTHER", tracker.ReferenceCode))
	assert.Nil(t, p)

	def, _ := repo.FindTrackedEntityType(ctx, tracker.NewReference("tet1", tracker.ReferenceID))
	assert.Equal(t, "Person", def.Name)
	ou, _ := repo.FindOrganizationUnit(ctx, tracker.NewReference("OU_1", tracker.ReferenceCode))
	assert.Equal(t, "ou1", ou.ID)
}

func TestTrackerStore(t *testing.T) {
	store := NewTrackerStore("adapter")
	ctx := context.Background()

	te := &tracker.TrackedEntity{TypeID: "tet1", OrgUnitID: "ou1", NewResource: true}
	a := te.GetAttribute("att1")
	a.Value = "X-1"
	a.SetModified()
	id, err := store.Save(ctx, te)
	require.Nil(t, err)
	assert.NotEqual(t, "", id)
	assert.Equal(t, "", te.ID)

	found, err := store.FindTrackedEntityByIdentifier(ctx, "tet1", "att1", "X-1")
	require.Nil(t, err)
	assert.Equal(t, id, found.ID)
	assert.False(t, found.NewResource)
	assert.False(t, found.IsModified())
	assert.Equal(t, "adapter", found.Attributes[0].StoredBy)
	found.OrgUnitID = "changed"
	again, _ := store.FindTrackedEntity(ctx, id)
	assert.Equal(t, "ou1", again.OrgUnitID)

	missing, err := store.FindTrackedEntityByIdentifier(ctx, "tet1", "att1", "X-2")
	assert.Nil(t, err)
	assert.Nil(t, missing)

	enID, _ := store.Save(ctx, &tracker.Enrollment{ProgramID: "prg1", TrackedEntityID: id, Status: tracker.EnrollmentActive})
	en, _ := store.FindActiveEnrollment(ctx, "prg1", id)
	assert.Equal(t, enID, en.ID)

	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	_, _ = store.Save(ctx, &tracker.Event{ProgramStageID: "stg1", EnrollmentID: enID, EventDate: &d2})
	_, _ = store.Save(ctx, &tracker.Event{ProgramStageID: "stg1", EnrollmentID: enID, EventDate: &d1})
	events, _ := store.FindEvents(ctx, "stg1", enID)
	require.Equal(t, 2, len(events))
	assert.True(t, events[0].EventDate.Equal(d1))
}

func TestQueueStore(t *testing.T) {
	store := NewQueueStore()
	ctx := context.Background()
	now := time.Now()

	ok, err := store.Add(ctx, &types.QueuedItem{ID: "2", GroupKey: "b", ReceivedAt: now})
	require.Nil(t, err)
	assert.True(t, ok)
	ok, _ = store.Add(ctx, &types.QueuedItem{ID: "1", GroupKey: "a", ReceivedAt: now.Add(-time.Second)})
	assert.True(t, ok)
	ok, _ = store.Add(ctx, &types.QueuedItem{ID: "3", GroupKey: "a", ReceivedAt: now})
	assert.False(t, ok)

	items, _ := store.List(ctx)
	require.Equal(t, 2, len(items))
	assert.Equal(t, "1", items[0].ID)

	require.Nil(t, store.Remove(ctx, "a"))
	items, _ = store.List(ctx)
	assert.Equal(t, 1, len(items))

	stored := NewStoredResources()
	ok, _ = stored.Contains(ctx, "c1", "Patient/1/_history/1")
	assert.False(t, ok)
	require.Nil(t, stored.Store(ctx, types.StoredResource{ClientID: "c1", StoredID: "Patient/1/_history/1", StoredAt: now}))
	ok, _ = stored.Contains(ctx, "c1", "Patient/1/_history/1")
	assert.True(t, ok)
}

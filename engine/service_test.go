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

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/builtin/funcs"
	"github.com/rulego/fhiradapter/components/scripted"
	"github.com/rulego/fhiradapter/engine/script"
	"github.com/rulego/fhiradapter/store/memory"
	"github.com/rulego/fhiradapter/utils/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPatient = `{"resourceType":"Patient","id":"p1",
		"identifier":[{"system":"http://example.org/national-id","value":"N1"}],
		"name":[{"given":["Ann"]}],"birthDate":"2020-01-05"}`
	testWeight = `{"resourceType":"Observation","id":"o1","status":"final",
		"code":{"coding":[{"system":"http://loinc.org","code":"29463-7"}]},
		"subject":{"reference":"Patient/p1","identifier":{"system":"http://example.org/national-id","value":"N1"}},
		"effectiveDateTime":"2024-03-01T10:00:00Z",
		"valueQuantity":{"value":72.4,"unit":"kg","system":"http://unitsofmeasure.org","code":"kg"}}`
	testHeight = `{"resourceType":"Observation","id":"o2","status":"final",
		"code":{"coding":[{"system":"http://loinc.org","code":"8302-2"}]},
		"subject":{"reference":"Patient/p1"},
		"valueQuantity":{"value":120,"unit":"cm"}}`
)

type testStack struct {
	service *Service
	repo    *memory.Repository
	tracker *memory.TrackerStore
	locks   *lock.Manager
}

func newTestStack(t *testing.T) *testStack {
	doc, err := memory.LoadFile("../store/memory/testdata/mapping.yaml")
	require.Nil(t, err)
	config := types.NewConfig()
	repo, err := memory.NewRepository(doc, config)
	require.Nil(t, err)
	store := memory.NewTrackerStore("admin")
	locks := lock.NewManager()
	executor, err := script.NewExecutor(config)
	require.Nil(t, err)

	bindings, err := Registry.Build(config, types.TransformerDeps{
		ScriptExecutor: executor,
		Locks:          locks,
		Tracker:        store,
		Metadata:       repo,
	})
	require.Nil(t, err)
	utils, err := NewDefaultUtilsRegistry(funcs.Deps{Config: config, Codes: repo})
	require.Nil(t, err)
	service, err := NewService(config, ServiceDeps{
		Executor:  executor,
		Locks:     locks,
		Bindings:  bindings,
		Utils:     utils,
		Resolvers: NewDefaultResolvers(repo, repo),
	})
	require.Nil(t, err)
	service.now = func() time.Time { return time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC) }
	return &testStack{service: service, repo: repo, tracker: store, locks: locks}
}

func parseInput(t *testing.T, data string) *scripted.FhirInput {
	resource, err := fhir.ParseResource([]byte(data))
	require.Nil(t, err)
	return scripted.NewFhirInput(resource)
}

func importRequest(clientResourceID, resourceType string) *types.TransformRequestContext {
	return &types.TransformRequestContext{
		Direction:        types.DirectionImport,
		ResourceType:     resourceType,
		ClientResourceID: clientResourceID,
		ReceivedAt:       time.Now(),
	}
}

// importPatient transforms and saves the test patient, returning its tracked entity id.
func (s *testStack) importPatient(t *testing.T) string {
	ctx := context.Background()
	request, err := s.service.CreateRequest(ctx, importRequest("cr-patient", "Patient"), parseInput(t, testPatient))
	require.Nil(t, err)
	require.NotNil(t, request)
	outcome, err := s.service.Transform(ctx, request)
	require.Nil(t, err)
	require.NotNil(t, outcome)
	defer func() { assert.Nil(t, outcome.Release()) }()
	id, err := s.tracker.Save(ctx, outcome.Resource.(tracker.Resource))
	require.Nil(t, err)
	return id
}

func TestServiceImport(t *testing.T) {
	ctx := context.Background()

	t.Run("Patient", func(t *testing.T) {
		s := newTestStack(t)
		request, err := s.service.CreateRequest(ctx, importRequest("cr-patient", "Patient"), parseInput(t, testPatient))
		require.Nil(t, err)
		require.NotNil(t, request)
		assert.Equal(t, types.R4, request.Context().Version)
		assert.Equal(t, "c1", request.Context().ClientID)
		assert.Equal(t, "http://example.org/national-id", request.Context().IdentifierSystem)
		assert.Equal(t, 1, len(request.Rules()))
		assert.Equal(t, RequestMoreRules, request.State())

		outcome, err := s.service.Transform(ctx, request)
		require.Nil(t, err)
		require.NotNil(t, outcome)
		assert.Nil(t, outcome.Next)
		assert.Equal(t, RequestExhausted, request.State())
		require.NotNil(t, outcome.Locks)
		assert.Equal(t, []string{"TE:tet1:N1"}, outcome.Locks.Keys())

		te := outcome.Resource.(*tracker.TrackedEntity)
		assert.True(t, te.IsNewResource())
		assert.Equal(t, "tet1", te.TypeID)
		assert.Equal(t, "ou1", te.OrgUnitID)
		assert.Equal(t, "N1", te.GetAttribute("att1").Value)
		assert.Equal(t, "Ann", te.GetAttribute("att2").Value)
		assert.Equal(t, "2020-01-05", te.GetAttribute("att3").Value)
		assert.Nil(t, outcome.Release())

		// exhausted requests produce nothing more
		outcome, err = s.service.Transform(ctx, request)
		assert.Nil(t, err)
		assert.Nil(t, outcome)
	})

	t.Run("PatientUpdate", func(t *testing.T) {
		s := newTestStack(t)
		id := s.importPatient(t)
		request, err := s.service.CreateRequest(ctx, importRequest("cr-patient", "Patient"), parseInput(t, testPatient))
		require.Nil(t, err)
		outcome, err := s.service.Transform(ctx, request)
		require.Nil(t, err)
		require.NotNil(t, outcome)
		defer outcome.Release()
		te := outcome.Resource.(*tracker.TrackedEntity)
		assert.Equal(t, id, te.ID)
		assert.False(t, te.IsNewResource())
	})

	t.Run("Observation", func(t *testing.T) {
		s := newTestStack(t)
		teID := s.importPatient(t)
		request, err := s.service.CreateRequest(ctx, importRequest("cr-observation", "Observation"), parseInput(t, testWeight))
		require.Nil(t, err)
		require.NotNil(t, request)
		// the disabled rule is filtered on resolution
		assert.Equal(t, 1, len(request.Rules()))

		outcome, err := s.service.Transform(ctx, request)
		require.Nil(t, err)
		require.NotNil(t, outcome)
		defer outcome.Release()
		assert.Equal(t, "r-weight", outcome.Rule.Rule().GetID())

		require.Equal(t, 1, len(outcome.Related))
		enrollment := outcome.Related[0].(*tracker.Enrollment)
		assert.True(t, enrollment.IsNewResource())
		assert.Equal(t, "prg1", enrollment.ProgramID)
		assert.Equal(t, teID, enrollment.TrackedEntityID)
		assert.Equal(t, tracker.EnrollmentActive, enrollment.Status)

		event := outcome.Resource.(*tracker.Event)
		assert.Equal(t, "stg1", event.ProgramStageID)
		assert.Equal(t, "ou1", event.OrgUnitID)
		assert.Equal(t, "72", event.GetDataValue("de1").Value)
		assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), event.EventDate.UTC())
		assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), *event.DueDate)
		assert.Equal(t, []string{"EN:prg1:" + teID}, outcome.Locks.Keys())
	})

	t.Run("NotApplicable", func(t *testing.T) {
		s := newTestStack(t)
		s.importPatient(t)
		request, err := s.service.CreateRequest(ctx, importRequest("cr-observation", "Observation"), parseInput(t, testHeight))
		require.Nil(t, err)
		require.NotNil(t, request)
		outcome, err := s.service.Transform(ctx, request)
		assert.Nil(t, err)
		assert.Nil(t, outcome)
		_, held := s.locks.Current(ctx)
		assert.False(t, held)
	})

	t.Run("UnknownPatient", func(t *testing.T) {
		s := newTestStack(t)
		request, err := s.service.CreateRequest(ctx, importRequest("cr-observation", "Observation"), parseInput(t, testWeight))
		require.Nil(t, err)
		_, err = s.service.Transform(ctx, request)
		var terr *types.TransformerError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, types.ErrData, terr.Kind)
		assert.False(t, types.IsRetryable(err))
		assert.Equal(t, RequestExhausted, request.State())
	})

	t.Run("NoRequest", func(t *testing.T) {
		s := newTestStack(t)
		input := parseInput(t, testPatient)
		request, err := s.service.CreateRequest(ctx, importRequest("unknown", "Patient"), input)
		assert.Nil(t, err)
		assert.Nil(t, request)

		request, err = s.service.CreateRequest(ctx, importRequest("cr-export", "Observation"), parseInput(t, testWeight))
		assert.Nil(t, err)
		assert.Nil(t, request)

		request, err = s.service.CreateRequest(ctx, importRequest("cr-patient", "Organization"), input)
		assert.Nil(t, err)
		assert.Nil(t, request)

		_, err = s.service.CreateRequest(ctx, nil, input)
		assert.ErrorIs(t, err, types.ErrFatalTransformer)

		outcome, err := s.service.Transform(ctx, nil)
		assert.Nil(t, err)
		assert.Nil(t, outcome)
	})

	t.Run("CallerLockContext", func(t *testing.T) {
		s := newTestStack(t)
		lockCtx, lc, err := s.locks.Begin(ctx)
		require.Nil(t, err)
		defer lc.Close()
		request, err := s.service.CreateRequest(lockCtx, importRequest("cr-patient", "Patient"), parseInput(t, testPatient))
		require.Nil(t, err)
		outcome, err := s.service.Transform(lockCtx, request)
		require.Nil(t, err)
		require.NotNil(t, outcome)
		// the caller owns the context, nothing is handed over
		assert.Nil(t, outcome.Locks)
		assert.Equal(t, []string{"TE:tet1:N1"}, lc.Keys())
	})
}

func TestServiceTransformAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStack(t)
	s.importPatient(t)

	request, err := s.service.CreateRequest(ctx, importRequest("cr-observation", "Observation"), parseInput(t, testWeight))
	require.Nil(t, err)
	var saved []string
	outcomes, err := s.service.TransformAll(ctx, request, func(ctx context.Context, outcome *TransformOutcome) error {
		_, held := s.locks.Current(ctx)
		assert.True(t, held)
		event := outcome.Resource.(*tracker.Event)
		for _, related := range outcome.Related {
			id, err := s.tracker.Save(ctx, related.(tracker.Resource))
			if err != nil {
				return err
			}
			event.EnrollmentID = id
		}
		id, err := s.tracker.Save(ctx, event)
		saved = append(saved, id)
		return err
	})
	require.Nil(t, err)
	assert.Equal(t, 1, len(outcomes))
	assert.Equal(t, 1, len(saved))

	// a second weight reuses the enrollment now
	request, err = s.service.CreateRequest(ctx, importRequest("cr-observation", "Observation"), parseInput(t, testWeight))
	require.Nil(t, err)
	outcome, err := s.service.Transform(ctx, request)
	require.Nil(t, err)
	require.NotNil(t, outcome)
	defer outcome.Release()
	assert.Equal(t, 0, len(outcome.Related))
	assert.NotEqual(t, "", outcome.Resource.(*tracker.Event).EnrollmentID)

	t.Run("PersistError", func(t *testing.T) {
		request, err := s.service.CreateRequest(ctx, importRequest("cr-patient", "Patient"), parseInput(t, testPatient))
		require.Nil(t, err)
		boom := errors.New("boom")
		_, err = s.service.TransformAll(ctx, request, func(ctx context.Context, outcome *TransformOutcome) error {
			return boom
		})
		assert.Equal(t, boom, err)
	})
}

func TestServiceExport(t *testing.T) {
	ctx := context.Background()
	s := newTestStack(t)
	teID := s.importPatient(t)
	te, err := s.tracker.FindTrackedEntity(ctx, teID)
	require.Nil(t, err)

	reqCtx := &types.TransformRequestContext{Direction: types.DirectionExport, ResourceType: string(types.TrackedEntityResource)}
	request, err := s.service.CreateRequest(ctx, reqCtx, scripted.NewTrackerInput(te))
	require.Nil(t, err)
	require.NotNil(t, request)
	assert.Equal(t, "cr-patient", request.Endpoint().ID)

	outcome, err := s.service.Transform(ctx, request)
	require.Nil(t, err)
	require.NotNil(t, outcome)
	defer outcome.Release()
	patient := outcome.Resource.(*fhir.Patient)
	assert.Equal(t, "unknown", patient.Gender)
	require.Equal(t, 1, len(patient.Identifier))
	assert.Equal(t, "http://example.org/national-id", patient.Identifier[0].System)
	assert.Equal(t, "N1", patient.Identifier[0].Value)
}

func TestNewService(t *testing.T) {
	_, err := NewService(types.NewConfig(), ServiceDeps{})
	assert.ErrorIs(t, err, types.ErrFatalTransformer)

	s := newTestStack(t)
	_, err = NewService(types.NewConfig(), ServiceDeps{
		Executor:  s.service.executor,
		Locks:     s.locks,
		Bindings:  s.service.bindings,
		Utils:     s.service.utils,
		Resolvers: append(NewDefaultResolvers(s.repo, s.repo), NewImportResolver(types.FhirPatient, s.repo, s.repo)),
	})
	assert.ErrorIs(t, err, types.ErrMappingConfiguration)
}

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

// Package fhir contains the subset of the FHIR resource model the adapter
// reads and writes. The structures are shared by DSTU3 and R4; fields that
// only exist in one release are simply left empty by the other.
package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Resource is implemented by every FHIR resource.
type Resource interface {
	GetResourceType() string
	GetID() string
	GetMeta() *Meta
}

type Meta struct {
	VersionID   string `json:"versionId,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// LastUpdatedTime parses Meta.LastUpdated; zero time when absent or invalid.
func (m *Meta) LastUpdatedTime() time.Time {
	if m == nil || m.LastUpdated == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, m.LastUpdated)
	if err != nil {
		return time.Time{}
	}
	return t
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Quantity struct {
	Value      *float64 `json:"value,omitempty"`
	Comparator string   `json:"comparator,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	System     string   `json:"system,omitempty"`
	Code       string   `json:"code,omitempty"`
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type ContactPoint struct {
	System string  `json:"system,omitempty"`
	Value  string  `json:"value,omitempty"`
	Use    string  `json:"use,omitempty"`
	Rank   int     `json:"rank,omitempty"`
	Period *Period `json:"period,omitempty"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
}

type Reference struct {
	Reference  string      `json:"reference,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    string      `json:"display,omitempty"`
}

// ResourceID returns the id part of a relative reference like "Patient/123".
func (r *Reference) ResourceID() string {
	if r == nil {
		return ""
	}
	ref := r.Reference
	if idx := strings.Index(ref, "/_history"); idx >= 0 {
		ref = ref[:idx]
	}
	if idx := strings.LastIndexByte(ref, '/'); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

// ResourceType returns the type part of a relative reference.
func (r *Reference) ResourceType() string {
	if r == nil {
		return ""
	}
	parts := strings.Split(r.Reference, "/")
	if len(parts) < 2 {
		return ""
	}
	if idx := indexOf(parts, "_history"); idx >= 2 {
		return parts[idx-2]
	}
	return parts[len(parts)-2]
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	District   string   `json:"district,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

type Patient struct {
	ResourceType         string         `json:"resourceType"`
	ID                   string         `json:"id,omitempty"`
	Meta                 *Meta          `json:"meta,omitempty"`
	Identifier           []Identifier   `json:"identifier,omitempty"`
	Active               *bool          `json:"active,omitempty"`
	Name                 []HumanName    `json:"name,omitempty"`
	Telecom              []ContactPoint `json:"telecom,omitempty"`
	Gender               string         `json:"gender,omitempty"`
	BirthDate            string         `json:"birthDate,omitempty"`
	Address              []Address      `json:"address,omitempty"`
	ManagingOrganization *Reference     `json:"managingOrganization,omitempty"`
}

func (p *Patient) GetResourceType() string { return "Patient" }
func (p *Patient) GetID() string           { return p.ID }
func (p *Patient) GetMeta() *Meta          { return p.Meta }

type Observation struct {
	ResourceType         string            `json:"resourceType"`
	ID                   string            `json:"id,omitempty"`
	Meta                 *Meta             `json:"meta,omitempty"`
	Identifier           []Identifier      `json:"identifier,omitempty"`
	Status               string            `json:"status,omitempty"`
	Category             []CodeableConcept `json:"category,omitempty"`
	Code                 CodeableConcept   `json:"code"`
	Subject              *Reference        `json:"subject,omitempty"`
	EffectiveDateTime    string            `json:"effectiveDateTime,omitempty"`
	Issued               string            `json:"issued,omitempty"`
	ValueQuantity        *Quantity         `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept  `json:"valueCodeableConcept,omitempty"`
	ValueString          *string           `json:"valueString,omitempty"`
	ValueBoolean         *bool             `json:"valueBoolean,omitempty"`
}

func (o *Observation) GetResourceType() string { return "Observation" }
func (o *Observation) GetID() string           { return o.ID }
func (o *Observation) GetMeta() *Meta          { return o.Meta }

type Immunization struct {
	ResourceType       string          `json:"resourceType"`
	ID                 string          `json:"id,omitempty"`
	Meta               *Meta           `json:"meta,omitempty"`
	Identifier         []Identifier    `json:"identifier,omitempty"`
	Status             string          `json:"status,omitempty"`
	VaccineCode        CodeableConcept `json:"vaccineCode"`
	Patient            *Reference      `json:"patient,omitempty"`
	Date               string          `json:"date,omitempty"`
	OccurrenceDateTime string          `json:"occurrenceDateTime,omitempty"`
	PrimarySource      *bool           `json:"primarySource,omitempty"`
	NotGiven           *bool           `json:"notGiven,omitempty"`
}

func (i *Immunization) GetResourceType() string { return "Immunization" }
func (i *Immunization) GetID() string           { return i.ID }
func (i *Immunization) GetMeta() *Meta          { return i.Meta }

// OccurrenceDate returns the DSTU3 date or the R4 occurrence date.
func (i *Immunization) OccurrenceDate() string {
	if i.OccurrenceDateTime != "" {
		return i.OccurrenceDateTime
	}
	return i.Date
}

type Organization struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Identifier   []Identifier   `json:"identifier,omitempty"`
	Active       *bool          `json:"active,omitempty"`
	Name         string         `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Address      []Address      `json:"address,omitempty"`
	PartOf       *Reference     `json:"partOf,omitempty"`
}

func (o *Organization) GetResourceType() string { return "Organization" }
func (o *Organization) GetID() string           { return o.ID }
func (o *Organization) GetMeta() *Meta          { return o.Meta }

// Generic holds a resource of a type the adapter has no structure for.
type Generic struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         *Meta                  `json:"meta,omitempty"`
	Raw          map[string]interface{} `json:"-"`
}

func (g *Generic) GetResourceType() string { return g.ResourceType }
func (g *Generic) GetID() string           { return g.ID }
func (g *Generic) GetMeta() *Meta          { return g.Meta }

func (g *Generic) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Raw)
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// NextURL returns the url of the next page, empty on the last page.
func (b *Bundle) NextURL() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// Resources decodes all entries of the bundle.
func (b *Bundle) Resources() ([]Resource, error) {
	result := make([]Resource, 0, len(b.Entry))
	for _, e := range b.Entry {
		if len(e.Resource) == 0 {
			continue
		}
		r, err := ParseResource(e.Resource)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

// ParseResource decodes a resource by its resourceType discriminator.
func ParseResource(data []byte) (Resource, error) {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var r Resource
	switch head.ResourceType {
	case "":
		return nil, fmt.Errorf("resourceType is missing")
	case "Patient":
		r = &Patient{}
	case "Observation":
		r = &Observation{}
	case "Immunization":
		r = &Immunization{}
	case "Organization":
		r = &Organization{}
	default:
		g := &Generic{}
		if err := json.Unmarshal(data, g); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &g.Raw); err != nil {
			return nil, err
		}
		return g, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// New returns an empty resource of the given type with resourceType set.
func New(resourceType string) (Resource, error) {
	return ParseResource([]byte(`{"resourceType":"` + resourceType + `"}`))
}

// Clone returns a deep copy of the resource.
func Clone(r Resource) (Resource, error) {
	if g, ok := r.(*Generic); ok && g.Raw == nil {
		c := *g
		return &c, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return ParseResource(data)
}

// VersionedID returns Type/id/_history/version, or Type/id without a version.
func VersionedID(r Resource) string {
	id := r.GetResourceType() + "/" + r.GetID()
	if m := r.GetMeta(); m != nil && m.VersionID != "" {
		id += "/_history/" + m.VersionID
	}
	return id
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

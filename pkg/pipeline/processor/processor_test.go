package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcore-intel/pipeline/pkg/pipeline/extraction"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/models"
	"github.com/blackcore-intel/pipeline/pkg/pipeline/property"
)

const peopleDB = "people-db"

// fakeStore is an in-memory double for the Store interface, letting
// processor tests exercise create/update/dedup/relationship behavior
// without a real StoreClient.
type fakeStore struct {
	pages    map[string]*models.Page
	nextID   int
	failNext bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{pages: map[string]*models.Page{}}
}

func (s *fakeStore) seed(databaseID, title string, props map[string]property.Value, lastEdited time.Time) *models.Page {
	s.nextID++
	id := fmt.Sprintf("page-%d", s.nextID)
	if props == nil {
		props = map[string]property.Value{}
	}
	props["title"] = property.Value{Kind: property.KindTitle, Payload: title}
	p := &models.Page{ID: id, DatabaseID: databaseID, Properties: props, LastEditedTime: lastEdited}
	s.pages[id] = p
	return p
}

func (s *fakeStore) QueryDatabase(ctx context.Context, databaseID string, filter map[string]any, cursor *string) ([]models.Page, *string, error) {
	var out []models.Page
	if idVal, ok := filter["id_equals"]; ok {
		id, _ := idVal.(string)
		if p, ok := s.pages[id]; ok {
			out = append(out, *p)
		}
		return out, nil, nil
	}
	for _, p := range s.pages {
		if p.DatabaseID == databaseID {
			out = append(out, *p)
		}
	}
	return out, nil, nil
}

func (s *fakeStore) CreatePage(ctx context.Context, databaseID string, plainProperties map[string]any) (*models.Page, error) {
	if s.failNext {
		s.failNext = false
		return nil, assertErr
	}
	s.nextID++
	id := fmt.Sprintf("created-%d", s.nextID)
	props := map[string]property.Value{}
	for k, v := range plainProperties {
		props[k] = property.Value{Kind: testPropertyKind(k), Payload: v}
	}
	p := &models.Page{ID: id, DatabaseID: databaseID, Properties: props, LastEditedTime: time.Unix(1000, 0)}
	s.pages[id] = p
	return p, nil
}

func (s *fakeStore) UpdatePage(ctx context.Context, pageID string, plainProperties map[string]any) (*models.Page, error) {
	p, ok := s.pages[pageID]
	if !ok {
		return nil, assertErr
	}
	updated := *p
	updated.Properties = map[string]property.Value{}
	for k, v := range p.Properties {
		updated.Properties[k] = v
	}
	for k, v := range plainProperties {
		existingKind := testPropertyKind(k)
		if existing, ok := updated.Properties[k]; ok {
			existingKind = existing.Kind
		}
		updated.Properties[k] = property.Value{Kind: existingKind, Payload: v}
	}
	updated.LastEditedTime = time.Unix(2000, 0)
	s.pages[pageID] = &updated
	return &updated, nil
}

// testPropertyKind mimics schema-driven kind dispatch for the handful of
// property names the processor tests use, since fakeStore has no real
// DatabaseSchema to consult.
func testPropertyKind(name string) property.Kind {
	switch name {
	case "title":
		return property.KindTitle
	case "email":
		return property.KindEmail
	case "phone":
		return property.KindPhone
	default:
		return property.KindRichText
	}
}

func (s *fakeStore) FindByTitle(ctx context.Context, databaseID, title string) (*models.Page, error) {
	for _, p := range s.pages {
		if p.DatabaseID != databaseID {
			continue
		}
		if _, t, ok := p.TitleProperty(); ok && t == title {
			return p, nil
		}
	}
	return nil, nil
}

var assertErr = assertError("simulated store failure")

type assertError string

func (e assertError) Error() string { return string(e) }

// fakeProvider returns a fixed Result regardless of input.
type fakeProvider struct {
	result *extraction.Result
	err    error
}

func (f *fakeProvider) Extract(ctx context.Context, text string, hints extraction.Hints) (*extraction.Result, error) {
	return f.result, f.err
}

func testTranscript() models.Transcript {
	return models.Transcript{ID: "t1", Title: "Meeting notes", Body: "Jane Doe talked about Acme Corp.", Source: models.SourceVoiceMemo}
}

func router() DatabaseRouter {
	return DatabaseRouter{models.KindPerson: peopleDB, models.KindOrganization: peopleDB}
}

func TestProcessCreatesNewEntityWhenNoCandidateMatches(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{result: &extraction.Result{
		Entities: []models.Entity{{Kind: models.KindPerson, Name: "Jane Doe", Properties: map[string]any{"title": "Jane Doe"}, Confidence: 0.9}},
	}}
	proc := New(store, provider, router(), DefaultSettings(), nil)

	result, err := proc.Process(context.Background(), testTranscript(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "Jane Doe", result.Created[0].EntityName)
	assert.Empty(t, result.Errors)
}

func TestProcessUpdatesMatchedEntity(t *testing.T) {
	store := newFakeStore()
	existing := store.seed(peopleDB, "Jane Doe", map[string]property.Value{
		"email": {Kind: property.KindEmail, Payload: "jane@example.com"},
	}, time.Unix(500, 0))

	// The new property is not an identifier key: the single email
	// identifier matches in full, so the composite is 60+30+10 = 100.
	provider := &fakeProvider{result: &extraction.Result{
		Entities: []models.Entity{{
			Kind: models.KindPerson, Name: "Jane Doe",
			Properties: map[string]any{"title": "Jane Doe", "email": "jane@example.com", "role": "Analyst"},
			Confidence: 0.95,
		}},
	}}
	proc := New(store, provider, router(), DefaultSettings(), nil)

	result, err := proc.Process(context.Background(), testTranscript(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, existing.ID, result.Updated[0].PageID)
	updated := store.pages[existing.ID]
	assert.Equal(t, "Analyst", updated.Properties["role"].Payload)
}

func TestProcessDryRunMakesNoWrites(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{result: &extraction.Result{
		Entities: []models.Entity{{Kind: models.KindPerson, Name: "Jane Doe", Properties: map[string]any{"title": "Jane Doe"}, Confidence: 0.9}},
	}}
	proc := New(store, provider, router(), DefaultSettings(), nil)

	result, err := proc.Process(context.Background(), testTranscript(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, store.pages)
	assert.True(t, result.DryRun)
	assert.NotEmpty(t, result.Warnings)
}

func TestProcessSkipsDisallowedKind(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{result: &extraction.Result{
		Entities: []models.Entity{{Kind: models.KindEvent, Name: "Launch", Properties: map[string]any{"title": "Launch"}, Confidence: 0.9}},
	}}
	proc := New(store, provider, router(), DefaultSettings(), nil)

	result, err := proc.Process(context.Background(), testTranscript(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.SkipDisallowedKind, result.Skipped[0].Reason)
}

func TestProcessRejectsOversizedBody(t *testing.T) {
	store := newFakeStore()
	proc := New(store, &fakeProvider{}, router(), DefaultSettings(), nil)

	transcript := testTranscript()
	big := make([]byte, 300_000)
	for i := range big {
		big[i] = 'x'
	}
	transcript.Body = string(big)

	_, err := proc.Process(context.Background(), transcript, Options{})
	require.Error(t, err)
}

func TestProcessCreatesRelationshipBetweenCoCreatedEntities(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{result: &extraction.Result{
		Entities: []models.Entity{
			{
				Kind: models.KindPerson, Name: "Jane Doe",
				Properties:    map[string]any{"title": "Jane Doe"},
				Confidence:    0.9,
				Relationships: []models.RelRef{{TargetName: "Acme Corp", TargetKind: models.KindOrganization, RelationLabel: "works_at"}},
			},
			{Kind: models.KindOrganization, Name: "Acme Corp", Properties: map[string]any{"title": "Acme Corp"}, Confidence: 0.9},
		},
	}}
	proc := New(store, provider, router(), DefaultSettings(), nil)

	result, err := proc.Process(context.Background(), testTranscript(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	assert.Equal(t, 1, result.RelationshipsCreated)
}

func TestProcessIdempotentOnSecondRun(t *testing.T) {
	store := newFakeStore()
	entity := models.Entity{
		Kind:       models.KindPerson,
		Name:       "Jane Doe",
		Properties: map[string]any{"title": "Jane Doe", "email": "jane@example.com"},
		Confidence: 0.9,
	}
	provider := &fakeProvider{result: &extraction.Result{Entities: []models.Entity{entity}}}
	proc := New(store, provider, router(), DefaultSettings(), nil)

	_, err := proc.Process(context.Background(), testTranscript(), Options{})
	require.NoError(t, err)

	result, err := proc.Process(context.Background(), testTranscript(), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, models.SkipNoChange, result.Skipped[0].Reason)
}

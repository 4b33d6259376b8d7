package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
)

// Memory is a thread-safe in-memory Store, used for tests and for running
// without a configured DATABASE_URL.
type Memory struct {
	mu sync.RWMutex

	pipelines   map[string]Pipeline
	runs        map[string]PipelineRun // keyed by run_id
	metadata    map[string]DatasetMetadata
	knowledge   map[string]ColumnKnowledge
	connections map[string]Connection
	entities    map[string]Entity
	relationships map[string]Relationship
	metrics     map[string]Metric
	dimensions  map[string]Dimension
	proposals   map[string]Proposal
	apiKeys     map[string]APIKey
	events      []PlatformEvent
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		pipelines:     make(map[string]Pipeline),
		runs:          make(map[string]PipelineRun),
		metadata:      make(map[string]DatasetMetadata),
		knowledge:     make(map[string]ColumnKnowledge),
		connections:   make(map[string]Connection),
		entities:      make(map[string]Entity),
		relationships: make(map[string]Relationship),
		metrics:       make(map[string]Metric),
		dimensions:    make(map[string]Dimension),
		proposals:     make(map[string]Proposal),
		apiKeys:       make(map[string]APIKey),
	}
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// --- Pipelines --------------------------------------------------------------

func (m *Memory) SavePipeline(_ context.Context, p Pipeline) (Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = newID("pipe")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = PipelineStatusActive
	}
	m.pipelines[p.ID] = p
	return p, nil
}

func (m *Memory) GetPipeline(_ context.Context, id string) (*Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListPipelines(_ context.Context) ([]Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdatePipeline(_ context.Context, id string, updates map[string]interface{}) (*Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[id]
	if !ok {
		return nil, nil
	}
	applyPipelineUpdates(&p, updates)
	m.pipelines[id] = p
	return &p, nil
}

func (m *Memory) DeletePipeline(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pipelines[id]; !ok {
		return false, nil
	}
	delete(m.pipelines, id)
	for runID, r := range m.runs {
		if r.PipelineID == id {
			delete(m.runs, runID)
		}
	}
	delete(m.metadata, id)
	return true, nil
}

// --- Runs ---------------------------------------------------------------

func (m *Memory) SaveRun(_ context.Context, r PipelineRun) (PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RunID == "" {
		r.RunID = newID("run")
	}
	m.runs[r.RunID] = r
	return r, nil
}

func (m *Memory) GetRun(_ context.Context, pipelineID, runID string) (*PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok || r.PipelineID != pipelineID {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRuns(_ context.Context, pipelineID string) ([]PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PipelineRun, 0)
	for _, r := range m.runs {
		if r.PipelineID == pipelineID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) UpdateRun(_ context.Context, runID string, updates map[string]interface{}) (*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	if r.Status != RunRunning {
		return nil, relayerrors.InvalidTransition("run", string(r.Status), "mutated")
	}
	applyRunUpdates(&r, updates)
	m.runs[runID] = r
	return &r, nil
}

func (m *Memory) LatestSuccessfulRun(_ context.Context, pipelineID string) (*PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *PipelineRun
	for _, r := range m.runs {
		if r.PipelineID != pipelineID || r.Status != RunSuccess {
			continue
		}
		if latest == nil || (r.CompletedAt != nil && latest.CompletedAt != nil && r.CompletedAt.After(*latest.CompletedAt)) {
			rc := r
			latest = &rc
		}
	}
	return latest, nil
}

// --- Metadata -------------------------------------------------------------

func (m *Memory) SaveMetadata(_ context.Context, d DatasetMetadata) (DatasetMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}
	m.metadata[d.PipelineID] = d
	return d, nil
}

func (m *Memory) GetMetadata(_ context.Context, pipelineID string) (*DatasetMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.metadata[pipelineID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// --- Column knowledge ------------------------------------------------------

func (m *Memory) SaveColumnKnowledge(_ context.Context, k ColumnKnowledge) (ColumnKnowledge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k.UpdatedAt = time.Now().UTC()
	m.knowledge[k.NormalizedName] = k
	return k, nil
}

func (m *Memory) GetColumnKnowledge(_ context.Context, normalizedName string) (*ColumnKnowledge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.knowledge[normalizedName]
	if !ok {
		return nil, nil
	}
	return &k, nil
}

func (m *Memory) ListColumnKnowledge(_ context.Context) ([]ColumnKnowledge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ColumnKnowledge, 0, len(m.knowledge))
	for _, k := range m.knowledge {
		out = append(out, k)
	}
	return out, nil
}

// --- Connections -------------------------------------------------------

func (m *Memory) SaveConnection(_ context.Context, c Connection) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = newID("conn")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.connections[c.ID] = c
	return c, nil
}

func (m *Memory) GetConnection(_ context.Context, id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) GetConnectionByName(_ context.Context, name string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.connections {
		if c.Name == name {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListConnections(_ context.Context) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Connection, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateConnection(_ context.Context, id string, updates map[string]interface{}) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, nil
	}
	applyConnectionUpdates(&c, updates)
	m.connections[id] = c
	return &c, nil
}

func (m *Memory) DeleteConnection(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	if !ok {
		return false, nil
	}
	for _, p := range m.pipelines {
		if p.Source.Connection == c.Name {
			return false, relayerrors.Conflict("connection is in use by a pipeline").WithDetails("connection_id", id)
		}
	}
	delete(m.connections, id)
	return true, nil
}

// --- Ontology: entities --------------------------------------------------

func (m *Memory) SaveEntity(_ context.Context, e Entity) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = newID("ent")
	}
	if e.Status == "" {
		e.Status = EntityActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.entities[e.ID] = e
	return e, nil
}

func (m *Memory) GetEntity(_ context.Context, id string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) GetEntityByName(_ context.Context, name string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entities {
		if e.Name == name {
			ec := e
			return &ec, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListEntities(_ context.Context, status string) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entity, 0)
	for _, e := range m.entities {
		if status == "" || string(e.Status) == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateEntity(_ context.Context, id string, updates map[string]interface{}) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, nil
	}
	if status, ok := updates["status"].(string); ok {
		e.Status = EntityStatus(status)
	}
	if desc, ok := updates["description"].(string); ok {
		e.Description = desc
	}
	m.entities[id] = e
	return &e, nil
}

func (m *Memory) DeleteEntity(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return false, nil
	}
	delete(m.entities, id)
	return true, nil
}

// --- Ontology: relationships ----------------------------------------------

func (m *Memory) SaveRelationship(_ context.Context, r Relationship) (Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID("rel")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.relationships[r.ID] = r
	return r, nil
}

func (m *Memory) GetRelationship(_ context.Context, id string) (*Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relationships[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) ListRelationships(_ context.Context) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Relationship, 0, len(m.relationships))
	for _, r := range m.relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteRelationship(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.relationships[id]; !ok {
		return false, nil
	}
	delete(m.relationships, id)
	return true, nil
}

// --- Ontology: metrics -----------------------------------------------------

func (m *Memory) SaveMetric(_ context.Context, met Metric) (Metric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if met.ID == "" {
		met.ID = newID("met")
	}
	if met.CreatedAt.IsZero() {
		met.CreatedAt = time.Now().UTC()
	}
	m.metrics[met.ID] = met
	return met, nil
}

func (m *Memory) GetMetric(_ context.Context, id string) (*Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	met, ok := m.metrics[id]
	if !ok {
		return nil, nil
	}
	return &met, nil
}

func (m *Memory) GetMetricByName(_ context.Context, name string) (*Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, met := range m.metrics {
		if met.Name == name {
			mc := met
			return &mc, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListMetrics(_ context.Context) ([]Metric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Metric, 0, len(m.metrics))
	for _, met := range m.metrics {
		out = append(out, met)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteMetric(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.metrics[id]; !ok {
		return false, nil
	}
	delete(m.metrics, id)
	return true, nil
}

// --- Ontology: dimensions --------------------------------------------------

func (m *Memory) SaveDimension(_ context.Context, d Dimension) (Dimension, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = newID("dim")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.dimensions[d.ID] = d
	return d, nil
}

func (m *Memory) GetDimension(_ context.Context, id string) (*Dimension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dimensions[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Memory) GetDimensionByName(_ context.Context, name string) (*Dimension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.dimensions {
		if d.Name == name {
			dc := d
			return &dc, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListDimensions(_ context.Context) ([]Dimension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Dimension, 0, len(m.dimensions))
	for _, d := range m.dimensions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteDimension(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dimensions[id]; !ok {
		return false, nil
	}
	delete(m.dimensions, id)
	return true, nil
}

// --- Proposals --------------------------------------------------------

func (m *Memory) SaveProposal(_ context.Context, p Proposal) (Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = newID("prop")
	}
	if p.Status == "" {
		p.Status = ProposalPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.proposals[p.ID] = p
	return p, nil
}

func (m *Memory) GetProposal(_ context.Context, id string) (*Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListProposals(_ context.Context, status string) ([]Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Proposal, 0)
	for _, p := range m.proposals {
		if status == "" || string(p.Status) == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) UpdateProposal(_ context.Context, id string, updates map[string]interface{}) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, nil
	}
	if p.Status != ProposalPending {
		return nil, relayerrors.InvalidTransition("proposal", string(p.Status), "reviewed")
	}
	if status, ok := updates["status"].(string); ok {
		p.Status = ProposalStatus(status)
	}
	if by, ok := updates["reviewed_by"].(string); ok {
		p.ReviewedBy = by
	}
	if notes, ok := updates["review_notes"].(string); ok {
		p.ReviewNotes = notes
	}
	now := time.Now().UTC()
	p.ReviewedAt = &now
	m.proposals[id] = p
	return &p, nil
}

// --- API keys -----------------------------------------------------------

func (m *Memory) SaveAPIKey(_ context.Context, k APIKey) (APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k.ID == "" {
		k.ID = newID("key")
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	m.apiKeys[k.ID] = k
	return k, nil
}

func (m *Memory) GetAPIKeyByHash(_ context.Context, hash string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.apiKeys {
		if k.KeyHash == hash {
			kc := k
			return &kc, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListAPIKeys(_ context.Context) ([]APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]APIKey, 0, len(m.apiKeys))
	for _, k := range m.apiKeys {
		out = append(out, k)
	}
	return out, nil
}

func (m *Memory) DeleteAPIKey(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[id]; !ok {
		return false, nil
	}
	delete(m.apiKeys, id)
	return true, nil
}

// --- Platform events ------------------------------------------------------

func (m *Memory) SaveEvent(_ context.Context, e PlatformEvent) (PlatformEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = newID("evt")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, e)
	return e, nil
}

func (m *Memory) ListEvents(_ context.Context, limit int) ([]PlatformEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]PlatformEvent, limit)
	copy(out, m.events[n-limit:])
	return out, nil
}

// --- Ontology snapshot ------------------------------------------------------

func (m *Memory) GetOntologySnapshot(_ context.Context) (OntologySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := OntologySnapshot{
		Lineage: LineageSummary{
			EntityPipelineMap: make(map[string]string),
		},
	}

	for _, e := range m.entities {
		if e.Status != EntityActive {
			continue
		}
		snapshot.Entities = append(snapshot.Entities, e)
		snapshot.Lineage.EntityPipelineMap[e.Name] = e.PipelineID
	}
	sort.Slice(snapshot.Entities, func(i, j int) bool { return snapshot.Entities[i].Name < snapshot.Entities[j].Name })
	for _, r := range m.relationships {
		snapshot.Relationships = append(snapshot.Relationships, r)
	}
	sort.Slice(snapshot.Relationships, func(i, j int) bool { return snapshot.Relationships[i].Name < snapshot.Relationships[j].Name })
	for _, r := range snapshot.Relationships {
		snapshot.Lineage.Edges = append(snapshot.Lineage.Edges, LineageEdge{
			From: r.FromEntity, To: r.ToEntity, Type: string(r.RelationshipType), Name: r.Name,
		})
	}
	snapshot.Metrics = append(snapshot.Metrics, valuesOfMetrics(m.metrics)...)
	sort.Slice(snapshot.Metrics, func(i, j int) bool { return snapshot.Metrics[i].Name < snapshot.Metrics[j].Name })
	snapshot.Dimensions = append(snapshot.Dimensions, valuesOfDimensions(m.dimensions)...)
	sort.Slice(snapshot.Dimensions, func(i, j int) bool { return snapshot.Dimensions[i].Name < snapshot.Dimensions[j].Name })

	return snapshot, nil
}

func valuesOfMetrics(m map[string]Metric) []Metric {
	out := make([]Metric, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func valuesOfDimensions(m map[string]Dimension) []Dimension {
	out := make([]Dimension, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

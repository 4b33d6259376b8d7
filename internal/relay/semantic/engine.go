// Package semantic implements Relay's semantic query engine: resolving metric and
// dimension references against the ontology snapshot, compiling them to a
// joined SQL statement, and submitting it to the query engine.
package semantic

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// Request is a structured semantic query. NaturalLanguage, when set, takes
// precedence and is translated into the structured shape before resolution.
type Request struct {
	Metrics         []string
	Dimensions      []string
	Filters         []string
	OrderBy         []string
	Limit           int
	NaturalLanguage string
}

// Result is the semantic engine's response, enriched with the compiled SQL
// and the entities it touched.
type Result struct {
	query.Result
	GeneratedSQL string   `json:"generated_sql"`
	EntitiesUsed []string `json:"entities_used"`
}

// Executor runs compiled SQL against a set of pipelines. Satisfied by
// query.Engine.
type Executor interface {
	ExecuteQuery(ctx context.Context, pipelineIDs []string, sqlText string, rowLimit int) (query.Result, error)
}

// Engine compiles semantic requests into SQL and runs them.
type Engine struct {
	store     store.Store
	executor  Executor
	llmAPIKey string
}

// New builds a semantic Engine backed by a query engine for execution.
func New(st store.Store, executor Executor, llmAPIKey string) *Engine {
	return &Engine{store: st, executor: executor, llmAPIKey: llmAPIKey}
}

var metricTokenPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_]+)\}`)
var entityColumnPattern = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)

// Execute resolves and runs a semantic Request.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	if req.NaturalLanguage != "" {
		resolved, err := e.resolveNaturalLanguage(ctx, req.NaturalLanguage)
		if err != nil {
			return Result{}, err
		}
		req = resolved
	}

	if len(req.Metrics) == 0 && len(req.Dimensions) == 0 {
		return Result{}, relayerrors.EmptyQuery()
	}

	snapshot, err := e.store.GetOntologySnapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	metricsByName := make(map[string]store.Metric, len(snapshot.Metrics))
	for _, m := range snapshot.Metrics {
		metricsByName[m.Name] = m
	}
	dimensionsByName := make(map[string]store.Dimension, len(snapshot.Dimensions))
	for _, d := range snapshot.Dimensions {
		dimensionsByName[d.Name] = d
	}
	entitiesByName := make(map[string]store.Entity, len(snapshot.Entities))
	for _, en := range snapshot.Entities {
		entitiesByName[en.Name] = en
	}

	var touchedOrder []string
	touched := make(map[string]bool)
	touch := func(entity string) {
		if !touched[entity] {
			touched[entity] = true
			touchedOrder = append(touchedOrder, entity)
		}
	}

	selectParts := make([]string, 0, len(req.Metrics)+len(req.Dimensions))
	groupByExprs := make([]string, 0, len(req.Dimensions))

	type resolvedField struct {
		expr  string
		alias string
	}

	var metricFields []resolvedField
	for _, name := range req.Metrics {
		visiting := make(map[string]bool)
		expr, _, err := resolveMetric(name, metricsByName, visiting, &touchedOrder, touched)
		if err != nil {
			return Result{}, err
		}
		metricFields = append(metricFields, resolvedField{expr: expr, alias: name})
	}

	var dimensionFields []resolvedField
	for _, name := range req.Dimensions {
		dim, ok := dimensionsByName[name]
		if !ok {
			return Result{}, relayerrors.UnknownDimension(name)
		}
		touch(dim.EntityName)
		dimensionFields = append(dimensionFields, resolvedField{expr: dim.Expression, alias: name})
	}

	if len(touchedOrder) == 0 {
		return Result{}, relayerrors.EmptyQuery()
	}

	tableNames, pipelineIDs, err := e.resolveEntityTables(ctx, touchedOrder, entitiesByName)
	if err != nil {
		return Result{}, err
	}

	joins, err := buildJoinPlan(touchedOrder, snapshot.Relationships, tableNames)
	if err != nil {
		return Result{}, err
	}

	substitute := func(expr string) string {
		return entityColumnPattern.ReplaceAllStringFunc(expr, func(match string) string {
			groups := entityColumnPattern.FindStringSubmatch(match)
			entity, col := groups[1], groups[2]
			if table, ok := tableNames[entity]; ok {
				return fmt.Sprintf("%s.%s", table, col)
			}
			return match
		})
	}

	for _, f := range metricFields {
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", substitute(f.expr), f.alias))
	}
	for _, f := range dimensionFields {
		substituted := substitute(f.expr)
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", substituted, f.alias))
		groupByExprs = append(groupByExprs, substituted)
	}

	filters := make([]string, 0, len(req.Filters))
	for _, f := range req.Filters {
		filters = append(filters, substitute(f))
	}
	orderBy := make([]string, 0, len(req.OrderBy))
	for _, o := range req.OrderBy {
		orderBy = append(orderBy, substitute(o))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(selectParts, ", "))
	b.WriteString(fmt.Sprintf(" FROM %s", tableNames[touchedOrder[0]]))
	for _, j := range joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	if len(filters) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(filters, " AND "))
	}
	if len(groupByExprs) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(groupByExprs, ", "))
	}
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orderBy, ", "))
	}
	if req.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", req.Limit))
	}

	generatedSQL := b.String()

	queryResult, err := e.executor.ExecuteQuery(ctx, pipelineIDs, generatedSQL, req.Limit)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Result:       queryResult,
		GeneratedSQL: generatedSQL,
		EntitiesUsed: touchedOrder,
	}, nil
}

// resolveMetric expands ${other_metric} tokens recursively, tracking a
// per-call visiting set so a reference cycle raises CircularMetric instead
// of recursing forever. Every entity touched by the resolved expression
// (including nested references) is recorded via touch/touchedOrder.
func resolveMetric(name string, metricsByName map[string]store.Metric, visiting map[string]bool, touchedOrder *[]string, touched map[string]bool) (string, string, error) {
	if visiting[name] {
		cycle := make([]string, 0, len(visiting)+1)
		for k := range visiting {
			cycle = append(cycle, k)
		}
		cycle = append(cycle, name)
		return "", "", relayerrors.CircularMetric(cycle)
	}
	metric, ok := metricsByName[name]
	if !ok {
		return "", "", relayerrors.UnknownMetric(name)
	}

	visiting[name] = true
	defer delete(visiting, name)

	if !touched[metric.EntityName] {
		touched[metric.EntityName] = true
		*touchedOrder = append(*touchedOrder, metric.EntityName)
	}

	expr := metric.Expression
	matches := metricTokenPattern.FindAllStringSubmatch(expr, -1)
	for _, m := range matches {
		otherExpr, _, err := resolveMetric(m[1], metricsByName, visiting, touchedOrder, touched)
		if err != nil {
			return "", "", err
		}
		expr = strings.ReplaceAll(expr, m[0], otherExpr)
	}
	return expr, metric.EntityName, nil
}

// resolveEntityTables derives each touched entity's table name from its
// owning pipeline's display name, and collects the pipeline ids to submit
// to the query engine.
func (e *Engine) resolveEntityTables(ctx context.Context, entityNames []string, entitiesByName map[string]store.Entity) (map[string]string, []string, error) {
	tableNames := make(map[string]string, len(entityNames))
	pipelineIDs := make([]string, 0, len(entityNames))
	for _, name := range entityNames {
		entity, ok := entitiesByName[name]
		if !ok {
			return nil, nil, relayerrors.DisconnectedOntology(name)
		}
		p, err := e.store.GetPipeline(ctx, entity.PipelineID)
		if err != nil {
			return nil, nil, err
		}
		if p == nil {
			return nil, nil, relayerrors.NotFound("pipeline", entity.PipelineID)
		}
		tableNames[name] = store.DeriveTableName(p.Name)
		pipelineIDs = append(pipelineIDs, p.ID)
	}
	return tableNames, pipelineIDs, nil
}

// buildJoinPlan runs BFS from touchedEntities[0] over relationships that
// connect two touched entities (treated as undirected edges for traversal),
// emitting one LEFT JOIN per edge taken in the orientation the relationship
// declares. Any touched entity unreachable from the root fails the query.
func buildJoinPlan(touchedEntities []string, relationships []store.Relationship, tableNames map[string]string) ([]string, error) {
	touchedSet := make(map[string]bool, len(touchedEntities))
	for _, e := range touchedEntities {
		touchedSet[e] = true
	}

	type edge struct {
		neighbor string
		rel      store.Relationship
	}
	adjacency := make(map[string][]edge)
	for _, rel := range relationships {
		if !touchedSet[rel.FromEntity] || !touchedSet[rel.ToEntity] {
			continue
		}
		adjacency[rel.FromEntity] = append(adjacency[rel.FromEntity], edge{neighbor: rel.ToEntity, rel: rel})
		adjacency[rel.ToEntity] = append(adjacency[rel.ToEntity], edge{neighbor: rel.FromEntity, rel: rel})
	}

	root := touchedEntities[0]
	visited := map[string]bool{root: true}
	queue := []string{root}
	var joins []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range adjacency[current] {
			if visited[e.neighbor] {
				continue
			}
			visited[e.neighbor] = true
			joins = append(joins, fmt.Sprintf(
				"LEFT JOIN %s ON %s.%s = %s.%s",
				tableNames[e.neighbor],
				tableNames[e.rel.FromEntity], e.rel.FromColumn,
				tableNames[e.rel.ToEntity], e.rel.ToColumn,
			))
			queue = append(queue, e.neighbor)
		}
	}

	for _, entity := range touchedEntities {
		if !visited[entity] {
			return nil, relayerrors.DisconnectedOntology(entity)
		}
	}
	return joins, nil
}

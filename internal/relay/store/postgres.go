package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
)

// Postgres implements Store backed by a database/sql handle, following the
// per-entity parameterized-query pattern of a CRUD repository: plain SQL,
// JSON-marshaled nested fields, explicit scanning for rows with nested
// JSON, sqlx struct scanning for the flat ones.
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an already-opened, already-pinged database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: sqlx.NewDb(db, "postgres")}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Postgres) SavePipeline(ctx context.Context, p Pipeline) (Pipeline, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = PipelineStatusActive
	}

	sourceJSON, err := json.Marshal(p.Source)
	if err != nil {
		return Pipeline{}, relayerrors.Internal("marshal source", err)
	}
	destJSON, err := json.Marshal(p.Destination)
	if err != nil {
		return Pipeline{}, relayerrors.Internal("marshal destination", err)
	}
	optsJSON, err := json.Marshal(p.Options)
	if err != nil {
		return Pipeline{}, relayerrors.Internal("marshal options", err)
	}
	schedJSON, err := json.Marshal(p.Schedule)
	if err != nil {
		return Pipeline{}, relayerrors.Internal("marshal schedule", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipelines (id, name, kind, status, source, destination, options, schedule, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Name, string(p.Kind), string(p.Status), sourceJSON, destJSON, optsJSON, schedJSON, p.CreatedAt)
	if err != nil {
		return Pipeline{}, relayerrors.Internal("insert pipeline", err)
	}
	return p, nil
}

func (s *Postgres) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, status, source, destination, options, schedule, created_at
		FROM pipelines WHERE id = $1
	`, id)
	p, err := scanPipeline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, relayerrors.Internal("get pipeline", err)
	}
	return p, nil
}

func (s *Postgres) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, status, source, destination, options, schedule, created_at
		FROM pipelines ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, relayerrors.Internal("list pipelines", err)
	}
	defer rows.Close()

	var out []Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, relayerrors.Internal("scan pipeline", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdatePipeline(ctx context.Context, id string, updates map[string]interface{}) (*Pipeline, error) {
	existing, err := s.GetPipeline(ctx, id)
	if err != nil || existing == nil {
		return existing, err
	}
	applyPipelineUpdates(existing, updates)

	schedJSON, err := json.Marshal(existing.Schedule)
	if err != nil {
		return nil, relayerrors.Internal("marshal schedule", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE pipelines SET name = $1, status = $2, schedule = $3 WHERE id = $4
	`, existing.Name, string(existing.Status), schedJSON, id)
	if err != nil {
		return nil, relayerrors.Internal("update pipeline", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, nil
	}
	return existing, nil
}

func (s *Postgres) DeletePipeline(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, relayerrors.Internal("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE pipeline_id = $1`, id); err != nil {
		return false, relayerrors.Internal("delete runs", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_metadata WHERE pipeline_id = $1`, id); err != nil {
		return false, relayerrors.Internal("delete metadata", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete pipeline", err)
	}
	rows, _ := result.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, relayerrors.Internal("commit", err)
	}
	return rows > 0, nil
}

func scanPipeline(row rowScanner) (*Pipeline, error) {
	var p Pipeline
	var kind, status string
	var sourceJSON, destJSON, optsJSON, schedJSON []byte
	if err := row.Scan(&p.ID, &p.Name, &kind, &status, &sourceJSON, &destJSON, &optsJSON, &schedJSON, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Kind = PipelineKind(kind)
	p.Status = PipelineStatus(status)
	if err := json.Unmarshal(sourceJSON, &p.Source); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(destJSON, &p.Destination); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(optsJSON, &p.Options); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schedJSON, &p.Schedule); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Runs ---------------------------------------------------------------

func (s *Postgres) SaveRun(ctx context.Context, r PipelineRun) (PipelineRun, error) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	filesJSON, err := json.Marshal(r.FilesWritten)
	if err != nil {
		return PipelineRun{}, relayerrors.Internal("marshal files_written", err)
	}
	colsJSON, err := json.Marshal(r.ColumnsNeedingReview)
	if err != nil {
		return PipelineRun{}, relayerrors.Internal("marshal columns_needing_review", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			run_id, pipeline_id, status, started_at, completed_at, progress, streaming,
			rows_processed, chunks_processed, output_file, files_written, duration_seconds,
			error, metadata_generated, columns_needing_review
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.RunID, r.PipelineID, string(r.Status), r.StartedAt, r.CompletedAt, r.Progress, r.Streaming,
		r.RowsProcessed, r.ChunksProcessed, r.OutputFile, filesJSON, r.DurationSeconds,
		r.Error, r.MetadataGenerated, colsJSON)
	if err != nil {
		return PipelineRun{}, relayerrors.Internal("insert run", err)
	}
	return r, nil
}

func (s *Postgres) GetRun(ctx context.Context, pipelineID, runID string) (*PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, pipeline_id, status, started_at, completed_at, progress, streaming,
			rows_processed, chunks_processed, output_file, files_written, duration_seconds,
			error, metadata_generated, columns_needing_review
		FROM pipeline_runs WHERE run_id = $1 AND pipeline_id = $2
	`, runID, pipelineID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, relayerrors.Internal("get run", err)
	}
	return r, nil
}

func (s *Postgres) ListRuns(ctx context.Context, pipelineID string) ([]PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, pipeline_id, status, started_at, completed_at, progress, streaming,
			rows_processed, chunks_processed, output_file, files_written, duration_seconds,
			error, metadata_generated, columns_needing_review
		FROM pipeline_runs WHERE pipeline_id = $1 ORDER BY started_at ASC
	`, pipelineID)
	if err != nil {
		return nil, relayerrors.Internal("list runs", err)
	}
	defer rows.Close()
	var out []PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, relayerrors.Internal("scan run", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateRun(ctx context.Context, runID string, updates map[string]interface{}) (*PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, pipeline_id, status, started_at, completed_at, progress, streaming,
			rows_processed, chunks_processed, output_file, files_written, duration_seconds,
			error, metadata_generated, columns_needing_review
		FROM pipeline_runs WHERE run_id = $1
	`, runID)
	existing, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, relayerrors.Internal("get run for update", err)
	}
	if existing.Status != RunRunning {
		return nil, relayerrors.InvalidTransition("run", string(existing.Status), "mutated")
	}
	applyRunUpdates(existing, updates)

	filesJSON, _ := json.Marshal(existing.FilesWritten)
	colsJSON, _ := json.Marshal(existing.ColumnsNeedingReview)

	_, err = s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status=$1, completed_at=$2, progress=$3, rows_processed=$4,
			chunks_processed=$5, output_file=$6, files_written=$7, duration_seconds=$8,
			error=$9, metadata_generated=$10, columns_needing_review=$11
		WHERE run_id=$12
	`, string(existing.Status), existing.CompletedAt, existing.Progress, existing.RowsProcessed,
		existing.ChunksProcessed, existing.OutputFile, filesJSON, existing.DurationSeconds,
		existing.Error, existing.MetadataGenerated, colsJSON, runID)
	if err != nil {
		return nil, relayerrors.Internal("update run", err)
	}
	return existing, nil
}

func (s *Postgres) LatestSuccessfulRun(ctx context.Context, pipelineID string) (*PipelineRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, pipeline_id, status, started_at, completed_at, progress, streaming,
			rows_processed, chunks_processed, output_file, files_written, duration_seconds,
			error, metadata_generated, columns_needing_review
		FROM pipeline_runs WHERE pipeline_id = $1 AND status = 'success'
		ORDER BY completed_at DESC LIMIT 1
	`, pipelineID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, relayerrors.Internal("latest successful run", err)
	}
	return r, nil
}

func scanRun(row rowScanner) (*PipelineRun, error) {
	var r PipelineRun
	var status string
	var filesJSON, colsJSON []byte
	if err := row.Scan(&r.RunID, &r.PipelineID, &status, &r.StartedAt, &r.CompletedAt, &r.Progress,
		&r.Streaming, &r.RowsProcessed, &r.ChunksProcessed, &r.OutputFile, &filesJSON,
		&r.DurationSeconds, &r.Error, &r.MetadataGenerated, &colsJSON); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	_ = json.Unmarshal(filesJSON, &r.FilesWritten)
	_ = json.Unmarshal(colsJSON, &r.ColumnsNeedingReview)
	return &r, nil
}

// --- Metadata -------------------------------------------------------------

func (s *Postgres) SaveMetadata(ctx context.Context, d DatasetMetadata) (DatasetMetadata, error) {
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}
	colsJSON, err := json.Marshal(d.Columns)
	if err != nil {
		return DatasetMetadata{}, relayerrors.Internal("marshal columns", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dataset_metadata (pipeline_id, columns, row_count, generated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pipeline_id) DO UPDATE SET columns = $2, row_count = $3, generated_at = $4
	`, d.PipelineID, colsJSON, d.RowCount, d.GeneratedAt)
	if err != nil {
		return DatasetMetadata{}, relayerrors.Internal("upsert metadata", err)
	}
	return d, nil
}

func (s *Postgres) GetMetadata(ctx context.Context, pipelineID string) (*DatasetMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pipeline_id, columns, row_count, generated_at FROM dataset_metadata WHERE pipeline_id = $1
	`, pipelineID)
	var d DatasetMetadata
	var colsJSON []byte
	if err := row.Scan(&d.PipelineID, &colsJSON, &d.RowCount, &d.GeneratedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("get metadata", err)
	}
	if err := json.Unmarshal(colsJSON, &d.Columns); err != nil {
		return nil, relayerrors.Internal("unmarshal columns", err)
	}
	return &d, nil
}

// --- Column knowledge ------------------------------------------------------

func (s *Postgres) SaveColumnKnowledge(ctx context.Context, k ColumnKnowledge) (ColumnKnowledge, error) {
	k.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO column_knowledge (normalized_name, description, verified_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (normalized_name) DO UPDATE SET description = $2, verified_by = $3, updated_at = $4
	`, k.NormalizedName, k.Description, k.VerifiedBy, k.UpdatedAt)
	if err != nil {
		return ColumnKnowledge{}, relayerrors.Internal("upsert column knowledge", err)
	}
	return k, nil
}

func (s *Postgres) GetColumnKnowledge(ctx context.Context, normalizedName string) (*ColumnKnowledge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT normalized_name, description, verified_by, updated_at FROM column_knowledge WHERE normalized_name = $1
	`, normalizedName)
	var k ColumnKnowledge
	if err := row.Scan(&k.NormalizedName, &k.Description, &k.VerifiedBy, &k.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("get column knowledge", err)
	}
	return &k, nil
}

func (s *Postgres) ListColumnKnowledge(ctx context.Context) ([]ColumnKnowledge, error) {
	var out []ColumnKnowledge
	err := s.db.SelectContext(ctx, &out,
		`SELECT normalized_name, description, verified_by, updated_at FROM column_knowledge ORDER BY normalized_name ASC`)
	if err != nil {
		return nil, relayerrors.Internal("list column knowledge", err)
	}
	return out, nil
}

// --- Connections ----------------------------------------------------------

func (s *Postgres) SaveConnection(ctx context.Context, c Connection) (Connection, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, name, type, description, credentials_encrypted, last_tested_at, last_test_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.Name, c.Type, c.Description, c.CredentialsEncrypted, c.LastTestedAt, c.LastTestStatus, c.CreatedAt)
	if err != nil {
		return Connection{}, relayerrors.Internal("insert connection", err)
	}
	return c, nil
}

func (s *Postgres) GetConnection(ctx context.Context, id string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, description, credentials_encrypted, last_tested_at, last_test_status, created_at
		FROM connections WHERE id = $1
	`, id)
	return scanConnection(row)
}

func (s *Postgres) GetConnectionByName(ctx context.Context, name string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, description, credentials_encrypted, last_tested_at, last_test_status, created_at
		FROM connections WHERE name = $1
	`, name)
	return scanConnection(row)
}

func scanConnection(row rowScanner) (*Connection, error) {
	var c Connection
	if err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Description, &c.CredentialsEncrypted,
		&c.LastTestedAt, &c.LastTestStatus, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("scan connection", err)
	}
	return &c, nil
}

func (s *Postgres) ListConnections(ctx context.Context) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, description, credentials_encrypted, last_tested_at, last_test_status, created_at
		FROM connections ORDER BY name ASC
	`)
	if err != nil {
		return nil, relayerrors.Internal("list connections", err)
	}
	defer rows.Close()
	var out []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateConnection(ctx context.Context, id string, updates map[string]interface{}) (*Connection, error) {
	existing, err := s.GetConnection(ctx, id)
	if err != nil || existing == nil {
		return existing, err
	}
	applyConnectionUpdates(existing, updates)
	_, err = s.db.ExecContext(ctx, `
		UPDATE connections SET description=$1, credentials_encrypted=$2, last_tested_at=$3, last_test_status=$4
		WHERE id=$5
	`, existing.Description, existing.CredentialsEncrypted, existing.LastTestedAt, existing.LastTestStatus, id)
	if err != nil {
		return nil, relayerrors.Internal("update connection", err)
	}
	return existing, nil
}

func (s *Postgres) DeleteConnection(ctx context.Context, id string) (bool, error) {
	conn, err := s.GetConnection(ctx, id)
	if err != nil || conn == nil {
		return false, err
	}

	var count int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pipelines WHERE source->>'connection' = $1
	`, conn.Name)
	if err := row.Scan(&count); err != nil {
		return false, relayerrors.Internal("check connection usage", err)
	}
	if count > 0 {
		return false, relayerrors.Conflict("connection is in use by a pipeline").WithDetails("connection_id", id)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete connection", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Ontology: entities ------------------------------------------------

func (s *Postgres) SaveEntity(ctx context.Context, e Entity) (Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = EntityActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	annotationsJSON, err := json.Marshal(e.ColumnAnnotations)
	if err != nil {
		return Entity{}, relayerrors.Internal("marshal column annotations", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, display_name, description, pipeline_id, column_annotations, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.Name, e.DisplayName, e.Description, e.PipelineID, annotationsJSON, string(e.Status), e.CreatedAt)
	if err != nil {
		return Entity{}, relayerrors.Internal("insert entity", err)
	}
	return e, nil
}

func (s *Postgres) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, description, pipeline_id, column_annotations, status, created_at
		FROM entities WHERE id = $1
	`, id)
	return scanEntity(row)
}

func (s *Postgres) GetEntityByName(ctx context.Context, name string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, description, pipeline_id, column_annotations, status, created_at
		FROM entities WHERE name = $1
	`, name)
	return scanEntity(row)
}

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var status string
	var annotationsJSON []byte
	if err := row.Scan(&e.ID, &e.Name, &e.DisplayName, &e.Description, &e.PipelineID, &annotationsJSON, &status, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("scan entity", err)
	}
	e.Status = EntityStatus(status)
	_ = json.Unmarshal(annotationsJSON, &e.ColumnAnnotations)
	return &e, nil
}

// querier abstracts *sql.DB and *sql.Tx so list reads can run either
// standalone or inside the ontology snapshot's transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (s *Postgres) ListEntities(ctx context.Context, status string) ([]Entity, error) {
	return listEntities(ctx, s.db, status)
}

func listEntities(ctx context.Context, q querier, status string) ([]Entity, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = q.QueryContext(ctx, `
			SELECT id, name, display_name, description, pipeline_id, column_annotations, status, created_at FROM entities ORDER BY name ASC
		`)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, name, display_name, description, pipeline_id, column_annotations, status, created_at
			FROM entities WHERE status = $1 ORDER BY name ASC
		`, status)
	}
	if err != nil {
		return nil, relayerrors.Internal("list entities", err)
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateEntity(ctx context.Context, id string, updates map[string]interface{}) (*Entity, error) {
	existing, err := s.GetEntity(ctx, id)
	if err != nil || existing == nil {
		return existing, err
	}
	if status, ok := updates["status"].(string); ok {
		existing.Status = EntityStatus(status)
	}
	if desc, ok := updates["description"].(string); ok {
		existing.Description = desc
	}
	_, err = s.db.ExecContext(ctx, `UPDATE entities SET status=$1, description=$2 WHERE id=$3`,
		string(existing.Status), existing.Description, id)
	if err != nil {
		return nil, relayerrors.Internal("update entity", err)
	}
	return existing, nil
}

func (s *Postgres) DeleteEntity(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete entity", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Ontology: relationships --------------------------------------------

func (s *Postgres) SaveRelationship(ctx context.Context, r Relationship) (Relationship, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, name, from_entity, to_entity, from_column, to_column, relationship_type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, r.ID, r.Name, r.FromEntity, r.ToEntity, r.FromColumn, r.ToColumn, string(r.RelationshipType), r.Description, r.CreatedAt)
	if err != nil {
		return Relationship{}, relayerrors.Internal("insert relationship", err)
	}
	return r, nil
}

func (s *Postgres) GetRelationship(ctx context.Context, id string) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, from_entity, to_entity, from_column, to_column, relationship_type, description, created_at
		FROM relationships WHERE id = $1
	`, id)
	return scanRelationship(row)
}

func scanRelationship(row rowScanner) (*Relationship, error) {
	var r Relationship
	var relType string
	if err := row.Scan(&r.ID, &r.Name, &r.FromEntity, &r.ToEntity, &r.FromColumn, &r.ToColumn, &relType, &r.Description, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("scan relationship", err)
	}
	r.RelationshipType = RelationshipType(relType)
	return &r, nil
}

func (s *Postgres) ListRelationships(ctx context.Context) ([]Relationship, error) {
	return listRelationships(ctx, s.db)
}

func listRelationships(ctx context.Context, q querier) ([]Relationship, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, from_entity, to_entity, from_column, to_column, relationship_type, description, created_at
		FROM relationships ORDER BY name ASC
	`)
	if err != nil {
		return nil, relayerrors.Internal("list relationships", err)
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete relationship", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Ontology: metrics ------------------------------------------------

func (s *Postgres) SaveMetric(ctx context.Context, m Metric) (Metric, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (id, name, display_name, entity_name, expression, format_type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.Name, m.DisplayName, m.EntityName, m.Expression, string(m.FormatType), m.Description, m.CreatedAt)
	if err != nil {
		return Metric{}, relayerrors.Internal("insert metric", err)
	}
	return m, nil
}

func (s *Postgres) GetMetric(ctx context.Context, id string) (*Metric, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, entity_name, expression, format_type, description, created_at
		FROM metrics WHERE id = $1
	`, id)
	return scanMetric(row)
}

func (s *Postgres) GetMetricByName(ctx context.Context, name string) (*Metric, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, entity_name, expression, format_type, description, created_at
		FROM metrics WHERE name = $1
	`, name)
	return scanMetric(row)
}

func scanMetric(row rowScanner) (*Metric, error) {
	var m Metric
	var format string
	if err := row.Scan(&m.ID, &m.Name, &m.DisplayName, &m.EntityName, &m.Expression, &format, &m.Description, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("scan metric", err)
	}
	m.FormatType = FormatType(format)
	return &m, nil
}

func (s *Postgres) ListMetrics(ctx context.Context) ([]Metric, error) {
	return listMetrics(ctx, s.db)
}

func listMetrics(ctx context.Context, q querier) ([]Metric, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, display_name, entity_name, expression, format_type, description, created_at FROM metrics ORDER BY name ASC
	`)
	if err != nil {
		return nil, relayerrors.Internal("list metrics", err)
	}
	defer rows.Close()
	var out []Metric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteMetric(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM metrics WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete metric", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Ontology: dimensions ------------------------------------------------

func (s *Postgres) SaveDimension(ctx context.Context, d Dimension) (Dimension, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dimensions (id, name, display_name, entity_name, expression, dimension_type, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, d.ID, d.Name, d.DisplayName, d.EntityName, d.Expression, string(d.DimensionType), d.Description, d.CreatedAt)
	if err != nil {
		return Dimension{}, relayerrors.Internal("insert dimension", err)
	}
	return d, nil
}

func (s *Postgres) GetDimension(ctx context.Context, id string) (*Dimension, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, entity_name, expression, dimension_type, description, created_at
		FROM dimensions WHERE id = $1
	`, id)
	return scanDimension(row)
}

func (s *Postgres) GetDimensionByName(ctx context.Context, name string) (*Dimension, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, entity_name, expression, dimension_type, description, created_at
		FROM dimensions WHERE name = $1
	`, name)
	return scanDimension(row)
}

func scanDimension(row rowScanner) (*Dimension, error) {
	var d Dimension
	var dimType string
	if err := row.Scan(&d.ID, &d.Name, &d.DisplayName, &d.EntityName, &d.Expression, &dimType, &d.Description, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("scan dimension", err)
	}
	d.DimensionType = DimensionType(dimType)
	return &d, nil
}

func (s *Postgres) ListDimensions(ctx context.Context) ([]Dimension, error) {
	return listDimensions(ctx, s.db)
}

func listDimensions(ctx context.Context, q querier) ([]Dimension, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, display_name, entity_name, expression, dimension_type, description, created_at FROM dimensions ORDER BY name ASC
	`)
	if err != nil {
		return nil, relayerrors.Internal("list dimensions", err)
	}
	defer rows.Close()
	var out []Dimension
	for rows.Next() {
		d, err := scanDimension(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteDimension(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM dimensions WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete dimension", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Proposals --------------------------------------------------------

func (s *Postgres) SaveProposal(ctx context.Context, p Proposal) (Proposal, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ProposalPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return Proposal{}, relayerrors.Internal("marshal payload", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, proposal_type, payload, source_pipeline_id, proposed_by, status, reviewed_by, review_notes, created_at, reviewed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, p.ID, string(p.ProposalType), payloadJSON, p.SourcePipelineID, string(p.ProposedBy), string(p.Status), p.ReviewedBy, p.ReviewNotes, p.CreatedAt, p.ReviewedAt)
	if err != nil {
		return Proposal{}, relayerrors.Internal("insert proposal", err)
	}
	return p, nil
}

func (s *Postgres) GetProposal(ctx context.Context, id string) (*Proposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, proposal_type, payload, source_pipeline_id, proposed_by, status, reviewed_by, review_notes, created_at, reviewed_at
		FROM proposals WHERE id = $1
	`, id)
	return scanProposal(row)
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var p Proposal
	var ptype, proposedBy, status string
	var payloadJSON []byte
	if err := row.Scan(&p.ID, &ptype, &payloadJSON, &p.SourcePipelineID, &proposedBy, &status,
		&p.ReviewedBy, &p.ReviewNotes, &p.CreatedAt, &p.ReviewedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("scan proposal", err)
	}
	p.ProposalType = ProposalType(ptype)
	p.ProposedBy = ProposedBy(proposedBy)
	p.Status = ProposalStatus(status)
	_ = json.Unmarshal(payloadJSON, &p.Payload)
	return &p, nil
}

func (s *Postgres) ListProposals(ctx context.Context, status string) ([]Proposal, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, proposal_type, payload, source_pipeline_id, proposed_by, status, reviewed_by, review_notes, created_at, reviewed_at
			FROM proposals
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, proposal_type, payload, source_pipeline_id, proposed_by, status, reviewed_by, review_notes, created_at, reviewed_at
			FROM proposals WHERE status = $1
		`, status)
	}
	if err != nil {
		return nil, relayerrors.Internal("list proposals", err)
	}
	defer rows.Close()
	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateProposal(ctx context.Context, id string, updates map[string]interface{}) (*Proposal, error) {
	existing, err := s.GetProposal(ctx, id)
	if err != nil || existing == nil {
		return existing, err
	}
	if existing.Status != ProposalPending {
		return nil, relayerrors.InvalidTransition("proposal", string(existing.Status), "reviewed")
	}
	if status, ok := updates["status"].(string); ok {
		existing.Status = ProposalStatus(status)
	}
	if by, ok := updates["reviewed_by"].(string); ok {
		existing.ReviewedBy = by
	}
	if notes, ok := updates["review_notes"].(string); ok {
		existing.ReviewNotes = notes
	}
	now := time.Now().UTC()
	existing.ReviewedAt = &now

	_, err = s.db.ExecContext(ctx, `
		UPDATE proposals SET status=$1, reviewed_by=$2, review_notes=$3, reviewed_at=$4 WHERE id=$5
	`, string(existing.Status), existing.ReviewedBy, existing.ReviewNotes, existing.ReviewedAt, id)
	if err != nil {
		return nil, relayerrors.Internal("update proposal", err)
	}
	return existing, nil
}

// --- API keys -----------------------------------------------------------

func (s *Postgres) SaveAPIKey(ctx context.Context, k APIKey) (APIKey, error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, key_prefix, name, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, k.ID, k.KeyHash, k.KeyPrefix, k.Name, string(k.Role), k.Active, k.CreatedAt)
	if err != nil {
		return APIKey{}, relayerrors.Internal("insert api key", err)
	}
	return k, nil
}

func (s *Postgres) GetAPIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, key_hash, key_prefix, name, role, active, created_at FROM api_keys WHERE key_hash = $1
	`, hash)
	var k APIKey
	var role string
	if err := row.Scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Name, &role, &k.Active, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, relayerrors.Internal("get api key", err)
	}
	k.Role = Role(role)
	return &k, nil
}

func (s *Postgres) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var out []APIKey
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, key_hash, key_prefix, name, role, active, created_at FROM api_keys ORDER BY created_at ASC`)
	if err != nil {
		return nil, relayerrors.Internal("list api keys", err)
	}
	return out, nil
}

func (s *Postgres) DeleteAPIKey(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return false, relayerrors.Internal("delete api key", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- Platform events ------------------------------------------------------

func (s *Postgres) SaveEvent(ctx context.Context, e PlatformEvent) (PlatformEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	refsJSON, _ := json.Marshal(e.References)
	detailsJSON, _ := json.Marshal(e.Details)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_events (id, event_type, references, details, timestamp)
		VALUES ($1,$2,$3,$4,$5)
	`, e.ID, e.EventType, refsJSON, detailsJSON, e.Timestamp)
	if err != nil {
		return PlatformEvent{}, relayerrors.Internal("insert event", err)
	}
	return e, nil
}

func (s *Postgres) ListEvents(ctx context.Context, limit int) ([]PlatformEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, references, details, timestamp FROM platform_events
		ORDER BY timestamp DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, relayerrors.Internal("list events", err)
	}
	defer rows.Close()
	var out []PlatformEvent
	for rows.Next() {
		var e PlatformEvent
		var refsJSON, detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.EventType, &refsJSON, &detailsJSON, &e.Timestamp); err != nil {
			return nil, relayerrors.Internal("scan event", err)
		}
		_ = json.Unmarshal(refsJSON, &e.References)
		_ = json.Unmarshal(detailsJSON, &e.Details)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Ontology snapshot ------------------------------------------------------

func (s *Postgres) GetOntologySnapshot(ctx context.Context) (OntologySnapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelSerializable})
	if err != nil {
		return OntologySnapshot{}, relayerrors.Internal("begin snapshot tx", err)
	}
	defer tx.Rollback()

	entities, err := listEntities(ctx, tx, string(EntityActive))
	if err != nil {
		return OntologySnapshot{}, err
	}
	relationships, err := listRelationships(ctx, tx)
	if err != nil {
		return OntologySnapshot{}, err
	}
	metrics, err := listMetrics(ctx, tx)
	if err != nil {
		return OntologySnapshot{}, err
	}
	dimensions, err := listDimensions(ctx, tx)
	if err != nil {
		return OntologySnapshot{}, err
	}

	lineage := LineageSummary{EntityPipelineMap: make(map[string]string)}
	for _, e := range entities {
		lineage.EntityPipelineMap[e.Name] = e.PipelineID
	}
	for _, r := range relationships {
		lineage.Edges = append(lineage.Edges, LineageEdge{From: r.FromEntity, To: r.ToEntity, Type: string(r.RelationshipType), Name: r.Name})
	}

	return OntologySnapshot{
		Entities:      entities,
		Relationships: relationships,
		Metrics:       metrics,
		Dimensions:    dimensions,
		Lineage:       lineage,
	}, nil
}

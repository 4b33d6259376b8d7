package store

import "time"

// applyPipelineUpdates mutates p in place from a partial update map. Only
// the fields a caller might legitimately patch are honored.
func applyPipelineUpdates(p *Pipeline, updates map[string]interface{}) {
	if name, ok := updates["name"].(string); ok {
		p.Name = name
	}
	if schedule, ok := updates["schedule"].(Schedule); ok {
		p.Schedule = schedule
	}
	if lastRun, ok := updates["last_scheduled_run"].(time.Time); ok {
		p.Schedule.LastScheduledRun = &lastRun
	}
	if status, ok := updates["status"].(string); ok {
		p.Status = PipelineStatus(status)
	}
}

// applyRunUpdates mutates r in place, enforcing that completed_at is set
// exactly when the run reaches a terminal status and computing duration on
// success.
func applyRunUpdates(r *PipelineRun, updates map[string]interface{}) {
	if status, ok := updates["status"].(string); ok {
		r.Status = RunStatus(status)
	}
	if progress, ok := updates["progress"].(string); ok {
		r.Progress = progress
	}
	if rows, ok := updates["rows_processed"].(int); ok {
		r.RowsProcessed = rows
	}
	if chunks, ok := updates["chunks_processed"].(int); ok {
		r.ChunksProcessed = chunks
	}
	if out, ok := updates["output_file"].(string); ok {
		r.OutputFile = out
	}
	if files, ok := updates["files_written"].([]string); ok {
		r.FilesWritten = files
	}
	if errMsg, ok := updates["error"].(string); ok {
		r.Error = errMsg
	}
	if gen, ok := updates["metadata_generated"].(bool); ok {
		r.MetadataGenerated = gen
	}
	if cols, ok := updates["columns_needing_review"].([]string); ok {
		r.ColumnsNeedingReview = cols
	}

	if r.Status == RunSuccess || r.Status == RunFailed {
		if r.CompletedAt == nil {
			now := time.Now().UTC()
			r.CompletedAt = &now
		}
		if r.Status == RunSuccess {
			r.DurationSeconds = r.CompletedAt.Sub(r.StartedAt).Seconds()
		}
	}
}

// applyConnectionUpdates mutates c in place from a partial update map.
func applyConnectionUpdates(c *Connection, updates map[string]interface{}) {
	if desc, ok := updates["description"].(string); ok {
		c.Description = desc
	}
	if enc, ok := updates["credentials_encrypted"].([]byte); ok {
		c.CredentialsEncrypted = enc
	}
	if status, ok := updates["last_test_status"].(string); ok {
		c.LastTestStatus = status
	}
	if testedAt, ok := updates["last_tested_at"].(time.Time); ok {
		c.LastTestedAt = &testedAt
	}
}

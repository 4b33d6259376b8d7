package service

// Capabilities is the static, self-describing response of GET /capabilities.
// An agent reads this once and understands the entire surface.
type Capabilities struct {
	Version            string                 `json:"version"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description"`
	DesignPrinciple    string                 `json:"design_principle"`
	QueryEngine        map[string]interface{} `json:"query_engine"`
	EndpointsSummary   map[string]string      `json:"endpoints_summary"`
	Sources            []map[string]string    `json:"sources"`
	Destinations       []map[string]interface{} `json:"destinations"`
	Scheduling         map[string]interface{} `json:"scheduling"`
	ConnectionModel    map[string]interface{} `json:"connection_model"`
	OntologyWorkflow   []string               `json:"ontology_workflow"`
	GettingStarted     []string               `json:"getting_started"`
}

// Capabilities returns the static discovery document describing the whole API.
func (s *Service) Capabilities() Capabilities {
	return Capabilities{
		Version:         s.Version,
		Name:            "Relay - Agent-Native Data Movement",
		Description:     "Data pipeline platform designed for AI agent interaction",
		DesignPrinciple: "Agent reads once, understands forever",
		QueryEngine: map[string]interface{}{
			"engine":      "DuckDB",
			"description": "In-memory SQL execution over previous pipeline runs' parquet/csv/json artifacts",
			"supported_features": []string{
				"Multi-table JOINs (INNER, LEFT, RIGHT, OUTER)",
				"Common Table Expressions (CTEs/WITH clauses)",
				"Window functions (ROW_NUMBER, RANK, LAG, LEAD)",
				"Aggregations (SUM, AVG, COUNT, MIN, MAX, GROUP_CONCAT)",
				"Subqueries and nested queries",
				"CASE statements and conditional logic",
				"String functions (SUBSTRING, CONCAT, UPPER, LOWER, TRIM)",
				"Date functions (EXTRACT, DATE_TRUNC, STRFTIME)",
				"Math functions (ROUND, CEIL, FLOOR, ABS)",
				"Type casting (CAST, TRY_CAST)",
			},
			"best_practices": []string{
				"Use POST /schema to see column types and sample values before querying",
				"Filter early in WHERE clause for better performance",
				"Use row_limit for exploratory queries",
				"Table names are pipeline names with spaces replaced by underscores, lowercase",
			},
		},
		EndpointsSummary: map[string]string{
			"discovery":              "GET /api/v1/capabilities",
			"test":                   "POST /api/v1/test/source",
			"create":                 "POST /api/v1/pipeline/create",
			"create_transformation":  "POST /api/v1/pipeline/create-transformation",
			"list":                   "GET /api/v1/pipeline/list",
			"get":                    "GET /api/v1/pipeline/{id}",
			"run":                    "POST /api/v1/pipeline/{id}/run",
			"status":                 "GET /api/v1/pipeline/{id}/run/{run_id}",
			"delete":                 "DELETE /api/v1/pipeline/{id}",
			"metadata":               "GET /api/v1/metadata/{id}",
			"review_pending":         "GET /api/v1/metadata/review/pending",
			"review_approve":         "POST /api/v1/metadata/review/approve",
			"search_datasets":        "GET /api/v1/datasets/search?q=query",
			"join_suggestions":       "GET /api/v1/datasets/join-suggestions?dataset1=id1&dataset2=id2",
			"query":                  "POST /api/v1/query",
			"schema":                 "POST /api/v1/schema",
			"export":                 "POST /api/v1/export",
			"ontology":               "GET /api/v1/ontology",
			"ontology_propose":       "POST /api/v1/ontology/propose",
			"ontology_review":        "POST /api/v1/ontology/proposal/{id}/review",
			"ontology_query":         "POST /api/v1/ontology/query",
			"ontology_lineage":       "GET /api/v1/ontology/lineage/{name}",
		},
		Sources: []map[string]string{
			{"type": "csv_url", "description": "Fetch CSV from a public URL"},
			{"type": "json_url", "description": "Fetch JSON from a public URL"},
			{"type": "rest_api", "description": "Fetch from any REST API"},
			{"type": "mysql", "description": "MySQL database source"},
			{"type": "postgres", "description": "PostgreSQL database source"},
			{"type": "salesforce", "description": "Salesforce SOQL source"},
			{"type": "synthetic", "description": "Generate test data"},
			{"type": "transformation", "description": "SQL over one or more existing pipelines' artifacts"},
		},
		Destinations: []map[string]interface{}{
			{
				"type":        "s3",
				"description": "AWS S3 bucket",
				"parameters":  map[string]string{"bucket": "S3 bucket name", "prefix": "Path within bucket"},
			},
			{
				"type":        "local",
				"description": "Local filesystem, for development deployments",
				"parameters":  map[string]string{"bucket": "Directory name under the configured local storage path"},
			},
		},
		Scheduling: map[string]interface{}{
			"cadences": []string{"hourly", "daily", "weekly", "custom"},
			"example":  map[string]interface{}{"schedule": map[string]interface{}{"enabled": true, "cadence": "daily"}},
		},
		ConnectionModel: map[string]interface{}{
			"description":      "Reusable, named, AEAD-encrypted credential bundles referenced by source.connection",
			"auth_header":      "carries the raw API key secret",
			"roles":            []string{"reader", "writer", "admin"},
			"role_requirement": "writer for create/run, admin for pipeline deletion and api-key management",
		},
		OntologyWorkflow: []string{
			"1. Run a pipeline at least once so it has profiled metadata",
			"2. POST /ontology/propose with its pipeline id to generate entity/relationship/metric/dimension suggestions",
			"3. POST /ontology/proposal/{id}/review to approve or reject each suggestion",
			"4. POST /ontology/query (or GET /ontology/lineage/{name}) once entities are active",
		},
		GettingStarted: []string{
			"1. Test a source: POST /test/source",
			"2. Create a pipeline: POST /pipeline/create",
			"3. Run it: POST /pipeline/{id}/run",
			"4. Query the result: POST /query",
		},
	}
}

package connectors

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/infrastructure/resilience"
	"github.com/camdencbrown/relay/internal/relay/store"
)

const fetchTimeout = 30 * time.Second

func httpClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}

// httpRetryConfig governs retries for transient fetch failures (connection
// resets, timeouts, 5xx) against HTTP and REST API sources. Up to two
// retries with short exponential backoff, capped well under fetchTimeout.
var httpRetryConfig = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	Jitter:       0.2,
}

// doWithRetry executes req with exponential backoff, retrying on transport
// errors and 5xx responses. 4xx responses are returned immediately since a
// retry cannot fix a client error.
func doWithRetry(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := resilience.Retry(ctx, httpRetryConfig, func() error {
		r, err := client.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("server error: status %d", r.StatusCode)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func fetchCSV(ctx context.Context, source store.SourceConfig) (Table, error) {
	body, err := httpGet(ctx, source.URL, nil, nil)
	if err != nil {
		return Table{}, err
	}
	defer body.Close()
	return parseCSV(body)
}

func streamCSV(ctx context.Context, source store.SourceConfig, chunkSize int, yield Yield) error {
	body, err := httpGet(ctx, source.URL, nil, nil)
	if err != nil {
		return err
	}
	defer body.Close()

	r := csv.NewReader(body)
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return relayerrors.QueryFailed(err)
	}

	rows := make([]map[string]interface{}, 0, chunkSize)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return relayerrors.QueryFailed(err)
		}
		rows = append(rows, rowFromRecord(header, record))
		if len(rows) == chunkSize {
			if err := yield(Table{Columns: header, Rows: rows}); err != nil {
				return err
			}
			rows = make([]map[string]interface{}, 0, chunkSize)
		}
	}
	if len(rows) > 0 {
		return yield(Table{Columns: header, Rows: rows})
	}
	return nil
}

func parseCSV(body io.Reader) (Table, error) {
	r := csv.NewReader(body)
	header, err := r.Read()
	if err == io.EOF {
		return Table{}, nil
	}
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}

	var rows []map[string]interface{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, relayerrors.QueryFailed(err)
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	return Table{Columns: header, Rows: rows}, nil
}

func rowFromRecord(header, record []string) map[string]interface{} {
	row := make(map[string]interface{}, len(header))
	for i, col := range header {
		if i < len(record) {
			row[col] = record[i]
		}
	}
	return row
}

func fetchJSON(ctx context.Context, source store.SourceConfig) (Table, error) {
	body, err := httpGet(ctx, source.URL, nil, nil)
	if err != nil {
		return Table{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	return parseJSONRows(data)
}

func parseJSONRows(data []byte) (Table, error) {
	var asList []map[string]interface{}
	if err := json.Unmarshal(data, &asList); err == nil {
		return tableFromRows(asList), nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return Table{}, relayerrors.Validation("response_body", "not a JSON list or object")
	}
	return parseRESTResponse(asObject)
}

// parseRESTResponse mirrors the response-unwrapping rule: a bare list is
// used directly, a dict is searched for data/results/items/records, and
// anything else is wrapped as a single row.
func parseRESTResponse(asObject map[string]interface{}) (Table, error) {
	for _, key := range []string{"data", "results", "items", "records"} {
		if raw, ok := asObject[key]; ok {
			if list, ok := raw.([]interface{}); ok {
				rows := make([]map[string]interface{}, 0, len(list))
				for _, item := range list {
					if m, ok := item.(map[string]interface{}); ok {
						rows = append(rows, m)
					}
				}
				return tableFromRows(rows), nil
			}
		}
	}
	return tableFromRows([]map[string]interface{}{asObject}), nil
}

func tableFromRows(rows []map[string]interface{}) Table {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		for col := range row {
			if _, ok := seen[col]; !ok {
				seen[col] = struct{}{}
				columns = append(columns, col)
			}
		}
	}
	return Table{Columns: columns, Rows: rows}
}

func fetchRESTAPI(ctx context.Context, source store.SourceConfig) (Table, error) {
	method := source.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, source.URL, nil)
	if err != nil {
		return Table{}, relayerrors.Validation("source.url", err.Error())
	}
	for key, value := range source.Headers {
		req.Header.Set(key, value)
	}

	if source.Auth != nil {
		switch source.Auth.Type {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+source.Auth.Token)
		case "basic":
			req.SetBasicAuth(source.Auth.Username, source.Auth.Password)
		}
	}

	resp, err := doWithRetry(ctx, httpClient(), req)
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Table{}, relayerrors.QueryFailed(fmt.Errorf("rest_api request failed with status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Table{}, relayerrors.QueryFailed(err)
	}
	return parseJSONRows(data)
}

func httpGet(ctx context.Context, rawURL string, headers map[string]string, params url.Values) (io.ReadCloser, error) {
	if params != nil {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return nil, relayerrors.Validation("source.url", err.Error())
		}
		parsed.RawQuery = params.Encode()
		rawURL = parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, relayerrors.Validation("source.url", err.Error())
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := doWithRetry(ctx, httpClient(), req)
	if err != nil {
		return nil, relayerrors.QueryFailed(err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, relayerrors.QueryFailed(fmt.Errorf("request to %s failed with status %d", rawURL, resp.StatusCode))
	}
	return resp.Body, nil
}

func probeREST(ctx context.Context, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return strconv.Itoa(resp.StatusCode), nil
}

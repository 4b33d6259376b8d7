package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

type sfAuthResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
}

type sfQueryResponse struct {
	Records        []map[string]interface{} `json:"records"`
	NextRecordsURL string                    `json:"nextRecordsUrl"`
	Done           bool                      `json:"done"`
}

func salesforceLogin(ctx context.Context, creds map[string]string) (sfAuthResponse, error) {
	domain := creds["domain"]
	if domain == "" {
		domain = "login"
	}
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", creds["username"])
	form.Set("password", creds["password"]+creds["security_token"])
	form.Set("client_id", creds["client_id"])
	form.Set("client_secret", creds["client_secret"])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s.salesforce.com/services/oauth2/token", domain), nil)
	if err != nil {
		return sfAuthResponse{}, err
	}
	req.URL.RawQuery = form.Encode()

	resp, err := httpClient().Do(req)
	if err != nil {
		return sfAuthResponse{}, relayerrors.QueryFailed(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return sfAuthResponse{}, relayerrors.QueryFailed(fmt.Errorf("salesforce auth failed with status %d", resp.StatusCode))
	}

	var auth sfAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return sfAuthResponse{}, relayerrors.QueryFailed(err)
	}
	return auth, nil
}

// fetchSalesforce runs a SOQL query with automatic pagination via
// nextRecordsUrl, accumulating every page before returning.
func fetchSalesforce(ctx context.Context, source store.SourceConfig) (Table, error) {
	auth, err := salesforceLogin(ctx, source.Credentials)
	if err != nil {
		return Table{}, err
	}

	path := fmt.Sprintf("%s/services/data/v59.0/query?q=%s", auth.InstanceURL, url.QueryEscape(source.Query))

	var allRows []map[string]interface{}
	for path != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return Table{}, relayerrors.QueryFailed(err)
		}
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)

		resp, err := httpClient().Do(req)
		if err != nil {
			return Table{}, relayerrors.QueryFailed(err)
		}

		var page sfQueryResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return Table{}, relayerrors.QueryFailed(decodeErr)
		}

		for _, record := range page.Records {
			delete(record, "attributes")
			allRows = append(allRows, record)
		}

		if page.Done || page.NextRecordsURL == "" {
			break
		}
		path = auth.InstanceURL + page.NextRecordsURL
	}

	return tableFromRows(allRows), nil
}

func streamSalesforce(ctx context.Context, source store.SourceConfig, chunkSize int, yield Yield) error {
	table, err := fetchSalesforce(ctx, source)
	if err != nil {
		return err
	}
	for start := 0; start < len(table.Rows); start += chunkSize {
		end := start + chunkSize
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		if err := yield(Table{Columns: table.Columns, Rows: table.Rows[start:end]}); err != nil {
			return err
		}
	}
	if len(table.Rows) == 0 {
		return yield(table)
	}
	return nil
}

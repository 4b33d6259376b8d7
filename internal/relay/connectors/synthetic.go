package connectors

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/camdencbrown/relay/internal/relay/store"
)

var firstNames = []string{
	"James", "Mary", "John", "Patricia", "Robert", "Jennifer",
	"Michael", "Linda", "William", "Barbara", "David", "Elizabeth",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia",
	"Miller", "Davis", "Rodriguez", "Martinez",
}

var countries = []string{
	"USA", "UK", "Canada", "Australia", "Germany", "France",
	"Spain", "Italy", "Brazil", "Mexico", "Japan", "India",
}

const asciiLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// generateColumn produces count synthetic values for a schema column type.
// Supported kinds: uuid, email, first_name, last_name, date, currency,
// boolean, country, integer:min:max, string:length, with a sequential
// "value_N" placeholder fallback for unrecognized kinds.
func generateColumn(colType string, count int) []interface{} {
	out := make([]interface{}, count)
	switch {
	case colType == "uuid":
		for i := range out {
			out[i] = uuid.NewString()
		}
	case colType == "email":
		for i := range out {
			first := firstNames[rand.Intn(len(firstNames))]
			last := lastNames[rand.Intn(len(lastNames))]
			out[i] = fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(last))
		}
	case colType == "first_name":
		for i := range out {
			out[i] = firstNames[rand.Intn(len(firstNames))]
		}
	case colType == "last_name":
		for i := range out {
			out[i] = lastNames[rand.Intn(len(lastNames))]
		}
	case colType == "date":
		start := time.Now().AddDate(-5, 0, 0)
		for i := range out {
			days := rand.Intn(365 * 5)
			out[i] = start.AddDate(0, 0, days).Format("2006-01-02")
		}
	case colType == "currency":
		for i := range out {
			out[i] = roundTo2(10 + rand.Float64()*(10000-10))
		}
	case colType == "boolean":
		for i := range out {
			out[i] = rand.Intn(2) == 0
		}
	case colType == "country":
		for i := range out {
			out[i] = countries[rand.Intn(len(countries))]
		}
	case strings.HasPrefix(colType, "integer:"):
		lo, hi := parseIntegerRange(colType)
		for i := range out {
			out[i] = lo + rand.Intn(hi-lo+1)
		}
	case strings.HasPrefix(colType, "string:"):
		length := parseStringLength(colType)
		for i := range out {
			out[i] = randomString(length)
		}
	default:
		for i := range out {
			out[i] = fmt.Sprintf("value_%d", i)
		}
	}
	return out
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func parseIntegerRange(colType string) (int, int) {
	parts := strings.Split(colType, ":")
	lo, hi := 0, 100
	if len(parts) > 1 {
		if v, err := strconv.Atoi(parts[1]); err == nil {
			lo = v
		}
	}
	if len(parts) > 2 {
		if v, err := strconv.Atoi(parts[2]); err == nil {
			hi = v
		}
	}
	return lo, hi
}

func parseStringLength(colType string) int {
	length := 10
	if idx := strings.Index(colType, ":"); idx >= 0 {
		if v, err := strconv.Atoi(colType[idx+1:]); err == nil {
			length = v
		}
	}
	return length
}

func randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = asciiLetters[rand.Intn(len(asciiLetters))]
	}
	return string(b)
}

func sortedSchemaColumns(schema map[string]string) []string {
	columns := make([]string, 0, len(schema))
	for col := range schema {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

func generateTable(schema map[string]string, rowCount int) Table {
	columns := sortedSchemaColumns(schema)
	generated := make(map[string][]interface{}, len(columns))
	for _, col := range columns {
		generated[col] = generateColumn(schema[col], rowCount)
	}

	rows := make([]map[string]interface{}, rowCount)
	for i := 0; i < rowCount; i++ {
		row := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			row[col] = generated[col][i]
		}
		rows[i] = row
	}
	return Table{Columns: columns, Rows: rows}
}

func fetchSynthetic(_ context.Context, source store.SourceConfig) (Table, error) {
	rowCount := source.RowCount
	if rowCount == 0 {
		rowCount = 1000
	}
	return generateTable(source.Schema, rowCount), nil
}

func streamSynthetic(_ context.Context, source store.SourceConfig, chunkSize int, yield Yield) error {
	total := source.RowCount
	if total == 0 {
		total = 1000
	}
	generated := 0
	for generated < total {
		n := chunkSize
		if total-generated < n {
			n = total - generated
		}
		table := generateTable(source.Schema, n)
		if err := yield(table); err != nil {
			return err
		}
		generated += n
	}
	return nil
}

package blobwriter

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"
	parquetsource "github.com/xitongsys/parquet-go-source/buffer"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/connectors"
)

// encode renders a table into bytes for the given format/compression and
// returns the filename extension to append (without a leading dot already
// present on the base path).
func encode(table connectors.Table, format, compression string) (content []byte, extension string, err error) {
	switch format {
	case "parquet":
		content, err = encodeParquet(table, compression)
		return content, "parquet", err
	case "csv":
		content, err = encodeCSV(table)
		if err != nil {
			return nil, "", err
		}
		if compression == "gzip" {
			content, err = gzipBytes(content)
			return content, "csv.gz", err
		}
		return content, "csv", nil
	case "json":
		content, err = encodeJSON(table)
		if err != nil {
			return nil, "", err
		}
		if compression == "gzip" {
			content, err = gzipBytes(content)
			return content, "json.gz", err
		}
		return content, "json", nil
	default:
		return nil, "", relayerrors.Validation("options.format", fmt.Sprintf("unsupported format: %s", format))
	}
}

func encodeCSV(table connectors.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(table.Columns); err != nil {
		return nil, relayerrors.Internal("write csv header", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			record[i] = toCSVString(row[col])
		}
		if err := w.Write(record); err != nil {
			return nil, relayerrors.Internal("write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, relayerrors.Internal("flush csv", err)
	}
	return buf.Bytes(), nil
}

func toCSVString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func encodeJSON(table connectors.Table) ([]byte, error) {
	records := make([]map[string]interface{}, len(table.Rows))
	copy(records, table.Rows)
	data, err := json.Marshal(records)
	if err != nil {
		return nil, relayerrors.Internal("marshal json rows", err)
	}
	return data, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, relayerrors.Internal("gzip write", err)
	}
	if err := gz.Close(); err != nil {
		return nil, relayerrors.Internal("gzip close", err)
	}
	return buf.Bytes(), nil
}

// encodeParquet writes every column as a UTF8 byte-array field using the
// parquet-go JSON-schema writer, so arbitrary tabular results can be
// serialized without a statically declared Go struct per pipeline. Snappy
// is parquet's only supported in-format compression; gzip/none otherwise.
func encodeParquet(table connectors.Table, compression string) ([]byte, error) {
	buf := parquetsource.NewBufferFile()

	schema := parquetJSONSchema(table.Columns)
	pw, err := parquetwriter.NewJSONWriter(schema, buf, 4)
	if err != nil {
		return nil, relayerrors.Internal("create parquet writer", err)
	}
	pw.CompressionType = parquetCompressionType(compression)

	for _, row := range table.Rows {
		rowJSON, err := json.Marshal(stringifyRow(table.Columns, row))
		if err != nil {
			return nil, relayerrors.Internal("marshal parquet row", err)
		}
		if err := pw.Write(string(rowJSON)); err != nil {
			return nil, relayerrors.Internal("write parquet row", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, relayerrors.Internal("finalize parquet file", err)
	}

	return buf.Bytes(), nil
}

func stringifyRow(columns []string, row map[string]interface{}) map[string]string {
	out := make(map[string]string, len(columns))
	for _, col := range columns {
		out[col] = toCSVString(row[col])
	}
	return out
}

func parquetJSONSchema(columns []string) string {
	var buf bytes.Buffer
	buf.WriteString(`{"Tag":"name=root, repetitiontype=REQUIRED","Fields":[`)
	for i, col := range columns {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString(fmt.Sprintf(
			`{"Tag":"name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"}`,
			strconv.Quote(col)[1:len(strconv.Quote(col))-1],
		))
	}
	buf.WriteString("]}")
	return buf.String()
}

func parquetCompressionType(compression string) parquet.CompressionCodec {
	switch compression {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

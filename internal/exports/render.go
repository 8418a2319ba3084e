package exports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"agora/internal/core"
)

// serialize turns collection items into rows. Without a serializer every
// item must already be a map[string]any.
func serialize(items []any, serializer core.Serializer) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		if serializer != nil {
			row, err := serializer.Serialize(item)
			if err != nil {
				return nil, fmt.Errorf("serialize item %d: %w", i, err)
			}
			rows = append(rows, row)
			continue
		}
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d: %T is not a map and no serializer is configured", i, item)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// render encodes rows and returns the payload with its content type.
func render(format core.ExportFormat, rows []map[string]any) ([]byte, string, error) {
	switch format {
	case core.FormatJSON:
		payload, err := json.Marshal(rows)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case core.FormatCSV:
		payload, err := renderCSV(rows)
		if err != nil {
			return nil, "", err
		}
		return payload, "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

// renderCSV writes a header of every key seen, sorted, then one record per row.
func renderCSV(rows []map[string]any) ([]byte, error) {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(columns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatValue(row[column])
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case float32:
		return fmt.Sprintf("%g", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case []string:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

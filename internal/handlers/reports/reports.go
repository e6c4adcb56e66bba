// Package reports serves stored analysis reports as cleaned text or CSV
// exports.
package reports

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"analyzer-api/internal/ctx"
	"analyzer-api/internal/metrics"
	"analyzer-api/internal/shared"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	ReportTypePDF = "pdf"
	ReportTypeCSV = "csv"
)

type Handler struct {
	Log *zap.SugaredLogger
	RDB *sql.DB
}

func NewHandler(log *zap.SugaredLogger, rdb *sql.DB) *Handler {
	return &Handler{Log: log, RDB: rdb}
}

// Export serves one stored report by key. PDF-type reports are cleaned text;
// CSV-type reports hold a JSON array of rows that is rendered to CSV.
func (h *Handler) Export(cc echo.Context) error {
	c := cc.(*ctx.Context)
	key := c.Param("key")

	var fileName, reportType, value string
	err := h.RDB.QueryRowContext(c.Request().Context(),
		"SELECT file_name, type, value FROM report WHERE `key` = ?", key,
	).Scan(&fileName, &reportType, &value)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, shared.ErrorResponse{Detail: "Report not found"})
		}
		c.LogValues.AddError(err)
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}

	switch reportType {
	case ReportTypePDF:
		metrics.ReportsExported.WithLabelValues(ReportTypePDF).Inc()
		setAttachment(c, fileName)
		return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(CleanReportText(value)))

	case ReportTypeCSV:
		data, err := csvFromJSON(value)
		if err != nil {
			c.LogValues.AddError(err)
			return c.JSON(http.StatusBadRequest, shared.ErrorResponse{Detail: "Invalid CSV data format in DB"})
		}
		metrics.ReportsExported.WithLabelValues(ReportTypeCSV).Inc()
		if !strings.HasSuffix(strings.ToLower(fileName), ".csv") {
			fileName += ".csv"
		}
		setAttachment(c, fileName)
		return c.Blob(http.StatusOK, "text/csv", data)

	default:
		c.LogValues.AddError(fmt.Errorf("report %s has unknown type %q", key, reportType))
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}
}

func setAttachment(c *ctx.Context, fileName string) {
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, fileName))
}

// csvFromJSON renders a JSON array of flat objects as CSV. Column order is
// the sorted key set of the first row; missing values render empty.
func csvFromJSON(value string) ([]byte, error) {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(value), &rows); err != nil {
		return nil, fmt.Errorf("report value is not a JSON array of objects: %w", err)
	}
	if len(rows) == 0 {
		return []byte{}, nil
	}

	headers := make([]string, 0, len(rows[0]))
	for key := range rows[0] {
		headers = append(headers, key)
	}
	slices.Sort(headers)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, err
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, header := range headers {
			record[i] = cellString(row[header])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// json numbers decode as float64; keep integers undecorated
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprint(v)
	}
}

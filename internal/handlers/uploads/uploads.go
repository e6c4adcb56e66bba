// Package uploads handles tabular file uploads and their metadata rows.
package uploads

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"analyzer-api/internal/ctx"
	"analyzer-api/internal/database"
	"analyzer-api/internal/metrics"
	"analyzer-api/internal/shared"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var allowedExtensions = map[string]string{
	".csv":  "text/csv",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

type Handler struct {
	Log *zap.SugaredLogger
	WDB *sql.DB
	RDB *sql.DB
	Dir string
}

func NewHandler(log *zap.SugaredLogger, wdb *sql.DB, rdb *sql.DB, dir string) (*Handler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &Handler{Log: log, WDB: wdb, RDB: rdb, Dir: dir}, nil
}

// fileExtension validates the filename and returns its lowercased extension
// and declared content type.
func fileExtension(filename string) (string, string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := allowedExtensions[ext]
	return ext, contentType, ok
}

type FileInfo struct {
	ID          string    `json:"file_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload accepts a multipart "file" field, persists the bytes under the
// upload directory and inserts the metadata row.
func (h *Handler) Upload(cc echo.Context) error {
	c := cc.(*ctx.Context)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, shared.ErrorResponse{Detail: "file field is required"})
	}

	ext, contentType, ok := fileExtension(fh.Filename)
	if !ok {
		c.Log.Warnw("Rejected unsupported file type", "filename", fh.Filename)
		return c.JSON(http.StatusBadRequest, shared.ErrorResponse{
			Detail: "Only CSV and Excel (.xls, .xlsx) files are supported.",
		})
	}

	src, err := fh.Open()
	if err != nil {
		c.LogValues.AddError(err)
		return c.JSON(http.StatusUnprocessableEntity, shared.ErrorResponse{
			Detail: fmt.Sprintf("Could not read the file. Please ensure it is a valid %s file.", ext),
		})
	}
	defer func() {
		_ = src.Close()
	}()

	fileID, err := nanoid.Generate(shared.FileIDAlphabet, shared.FileIDLength)
	if err != nil {
		c.LogValues.AddError(err)
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}

	path := filepath.Join(h.Dir, fileID+ext)
	dst, err := os.Create(path)
	if err != nil {
		c.LogValues.AddError(err)
		c.LogValues.LogLevel = "ERROR"
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{
			Detail: "An unexpected server error occurred during file upload.",
		})
	}

	written, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(path)
		c.LogValues.AddError(errors.Join(err, closeErr))
		c.LogValues.LogLevel = "ERROR"
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{
			Detail: "An unexpected server error occurred during file upload.",
		})
	}
	if written == 0 {
		_ = os.Remove(path)
		return c.JSON(http.StatusUnprocessableEntity, shared.ErrorResponse{Detail: "uploaded file is empty"})
	}

	_, err = h.WDB.ExecContext(c.Request().Context(), `
		INSERT INTO file (id, filename, content_type, path, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fileID, fh.Filename, contentType, path, c.User.UserID, time.Now(),
	)
	if err != nil {
		_ = os.Remove(path)
		c.LogValues.AddError(err)
		c.LogValues.LogLevel = "ERROR"
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{
			Detail: "A database error occurred while saving file information.",
		})
	}

	metrics.FilesUploaded.WithLabelValues(ext).Inc()
	c.Log.Infow("File processed and metadata stored", "file_id", fileID, "original_filename", fh.Filename)
	return c.JSON(http.StatusCreated, map[string]string{"file_id": fileID, "filename": fh.Filename})
}

type FileList struct {
	Data []FileInfo `json:"data"`
}

// List returns the caller's uploads, newest first.
func (h *Handler) List(cc echo.Context) error {
	c := cc.(*ctx.Context)

	rows, err := h.RDB.QueryContext(c.Request().Context(), `
		SELECT id, filename, content_type, created_at
		FROM file
		WHERE uploaded_by = ?
		ORDER BY created_at DESC`,
		c.User.UserID,
	)
	if err != nil {
		c.LogValues.AddError(err)
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}
	defer func() {
		_ = rows.Close()
	}()

	files := []FileInfo{}
	for rows.Next() {
		var f FileInfo
		if err := rows.Scan(&f.ID, &f.Filename, &f.ContentType, &f.CreatedAt); err != nil {
			c.LogValues.AddError(err)
			return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		c.LogValues.AddError(err)
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}

	return c.JSON(http.StatusOK, FileList{Data: files})
}

// Delete removes a file's metadata row and its bytes. Only the uploader or
// an admin may delete it.
func (h *Handler) Delete(cc echo.Context) error {
	c := cc.(*ctx.Context)
	fileID := c.Param("id")

	var path string
	var uploadedBy uint64
	err := h.RDB.QueryRowContext(c.Request().Context(),
		"SELECT path, uploaded_by FROM file WHERE id = ?", fileID,
	).Scan(&path, &uploadedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, shared.ErrorResponse{Detail: "File not found"})
		}
		c.LogValues.AddError(err)
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}

	if uploadedBy != c.User.UserID && !c.User.IsAdmin {
		return c.JSON(http.StatusForbidden, shared.ErrorResponse{Detail: shared.ErrForbidden.Err.Error()})
	}

	err = database.ExecuteTransaction(c.Request().Context(), h.WDB, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			_, err := tx.Exec("DELETE FROM file WHERE id = ?", fileID)
			return err
		},
	})
	if err != nil {
		c.LogValues.AddError(err)
		c.LogValues.LogLevel = "ERROR"
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{Detail: shared.ErrInternalServerError.Err.Error()})
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		// Row is gone; orphaned bytes are only worth a log line.
		c.Log.Warnw("Failed removing file bytes", "file_id", fileID, "path", path, "error", err)
	}

	c.Log.Infow("File deleted", "file_id", fileID)
	return c.JSON(http.StatusOK, map[string]string{"deleted": fileID})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

// Export datasets.
const (
	ExportDatasetRecords  = "records"
	ExportDatasetTeachers = "teachers"
)

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
}

// ExportRequest selects what to export.
type ExportRequest struct {
	Dataset   string `json:"dataset" validate:"required,oneof=records teachers"`
	Format    string `json:"format" validate:"omitempty,oneof=csv pdf xlsx CSV PDF XLSX"`
	TeacherID string `json:"teacherId"`
	Month     string `json:"month" validate:"omitempty,len=7"`
}

// ExportResult describes a rendered file and its signed download link.
type ExportResult struct {
	ID        string        `json:"id"`
	Dataset   string        `json:"dataset"`
	Format    export.Format `json:"format"`
	Rows      int           `json:"rows"`
	URL       string        `json:"url"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// ExportFile is an opened export ready to be streamed.
type ExportFile struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders ledger and teacher statistics to files and hands out
// signed download links.
type ExportService struct {
	mu         *sync.RWMutex
	teachers   *TeacherService
	ledger     *SubstituteService
	statistics *StatisticsService
	storage    fileStorage
	signer     *storage.SignedURLSigner
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ExportConfig
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(mu *sync.RWMutex, teachers *TeacherService, ledger *SubstituteService, statistics *StatisticsService, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, validate *validator.Validate, logger *zap.Logger) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		mu:         mu,
		teachers:   teachers,
		ledger:     ledger,
		statistics: statistics,
		storage:    files,
		signer:     signer,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Generate renders the requested dataset, stores it and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "exports are not configured")
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}

	var dataset export.Dataset
	switch req.Dataset {
	case ExportDatasetRecords:
		dataset = s.recordsDataset(req)
	case ExportDatasetTeachers:
		dataset, err = s.teachersDataset(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	renderer, err := export.RendererFor(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, appErrors.ErrInvalidFormat.Status, err.Error())
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	id := uuid.NewString()
	filename := fmt.Sprintf("%s/%s_%s_%s.%s", req.Dataset, req.Dataset, s.now().Format("20060102_150405"), id[:8], format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, ticket, err := s.signer.Sign(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("export generated",
		zap.String("export_id", id),
		zap.String("dataset", req.Dataset),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		ID:        id,
		Dataset:   req.Dataset,
		Format:    format,
		Rows:      len(dataset.Rows),
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: ticket.ExpiresAt,
	}, nil
}

// Open validates a download token and opens the referenced file.
func (s *ExportService) Open(token string) (*ExportFile, error) {
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "exports are not configured")
	}
	ticket, err := s.signer.Verify(token)
	switch {
	case errors.Is(err, storage.ErrExpiredToken):
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	case err != nil:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}
	file, err := s.storage.Open(ticket.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export not found")
	}
	format, err := export.ParseFormat(strings.TrimPrefix(path.Ext(ticket.Path), "."))
	if err != nil {
		format = export.FormatCSV
	}
	return &ExportFile{File: file, Filename: path.Base(ticket.Path), ContentType: format.ContentType()}, nil
}

// Cleanup removes exports whose links can no longer be valid.
func (s *ExportService) Cleanup(ctx context.Context) error {
	if s.storage == nil || s.signer == nil {
		return nil
	}
	deleted, err := s.storage.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		return err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(deleted)))
	}
	return nil
}

func (s *ExportService) recordsDataset(req ExportRequest) export.Dataset {
	filter := models.SubstituteFilter{TeacherID: req.TeacherID, Month: req.Month}

	s.mu.RLock()
	var records []models.SubstituteRecord
	names := make(map[string]string)
	for _, r := range s.ledger.allLocked() {
		if !filter.Matches(*r) {
			continue
		}
		records = append(records, *r)
		if t, ok := s.teachers.getLocked(r.TeacherID); ok {
			names[r.TeacherID] = t.Name
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].Time < records[j].Time
	})

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		name, ok := names[r.TeacherID]
		if !ok {
			name = unknownTeacher
		}
		rows = append(rows, []string{r.Date, weekdayLabel(r.Date), r.Time, r.ClassRef.String(), name, r.Reason})
	}
	title := "Substitute Records"
	if req.Month != "" {
		title = fmt.Sprintf("Substitute Records %s", req.Month)
	}
	return export.Dataset{
		Title:   title,
		Headers: []string{"Date", "Day", "Time", "Class", "Teacher", "Reason"},
		Rows:    rows,
	}
}

func (s *ExportService) teachersDataset(ctx context.Context, req ExportRequest) (export.Dataset, error) {
	stats, err := s.statistics.TeacherStats(ctx, TeacherStatsFilter{TeacherID: req.TeacherID, Sort: SortByTotal})
	if err != nil {
		return export.Dataset{}, err
	}
	rows := make([][]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, []string{
			st.Name,
			string(st.Role),
			st.ClassRef,
			st.Subject,
			fmt.Sprintf("%d", st.TotalCount),
			fmt.Sprintf("%d", st.ThisMonthCount),
			fmt.Sprintf("%d", st.LastMonthCount),
		})
	}
	return export.Dataset{
		Title:   "Teacher Substitute Statistics",
		Headers: []string{"Name", "Role", "Class", "Subject", "Total", "This Month", "Last Month"},
		Rows:    rows,
	}, nil
}

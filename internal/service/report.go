package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storedash/backend/internal/archive"
	"storedash/backend/internal/domain"
	"storedash/backend/internal/report"
)

// ViewReport ranks products over the requested range, defaulting to the full
// order history, and lists the saved archive. Missing data yields empty
// sequences rather than an error.
func (s *Service) ViewReport(ctx context.Context, req domain.ReportRequest) (domain.ReportView, error) {
	top := s.resolveTop(req.Top)
	view := domain.ReportView{
		Top:     top,
		Rows:    []domain.ProductPerformanceRow{},
		Archive: []domain.ArtifactRecord{},
	}

	rows, dateRange, ok, err := s.popularProducts(ctx, req, top)
	if err != nil {
		return domain.ReportView{}, err
	}
	if ok {
		view.From = dateRange.Start.Format(report.DateLayout)
		view.To = dateRange.End.Format(report.DateLayout)
		view.Rows = rows
	}
	view.Chart = report.BuildChart(view.Rows)

	records, err := s.archive.List(ctx)
	if err != nil {
		// non-fatal
		s.logger.Warn("archive listing failed", zap.Error(err))
	} else {
		view.Archive = records
	}
	return view, nil
}

// ExportReportCSV renders the same rows ViewReport would return as CSV.
func (s *Service) ExportReportCSV(ctx context.Context, req domain.ReportRequest) ([]byte, error) {
	rows, _, _, err := s.popularProducts(ctx, req, s.resolveTop(req.Top))
	if err != nil {
		return nil, err
	}
	return report.ExportCSV(rows)
}

func (s *Service) popularProducts(ctx context.Context, req domain.ReportRequest, top int) ([]domain.ProductPerformanceRow, domain.DateRange, bool, error) {
	dateRange, ok, err := s.reports.ResolveRange(ctx, req.From, req.To)
	if err != nil {
		return nil, domain.DateRange{}, false, err
	}
	if !ok {
		return []domain.ProductPerformanceRow{}, domain.DateRange{}, false, nil
	}
	rows, err := s.reports.PopularProducts(ctx, dateRange, top)
	if err != nil {
		return nil, domain.DateRange{}, false, err
	}
	return rows, dateRange, true, nil
}

func (s *Service) resolveTop(top *int) int {
	if top == nil {
		return s.opts.DefaultTop
	}
	switch {
	case *top < 0:
		return 0
	case *top > s.opts.MaxTop:
		return s.opts.MaxTop
	default:
		return *top
	}
}

// SaveReport validates a save request and archives its payload. Input
// problems come back as Saved=false with a message; only storage failures are
// returned as errors.
func (s *Service) SaveReport(ctx context.Context, req domain.ReportSaveRequest) (domain.ReportSaveResponse, error) {
	if err := requireRole(ctx, domain.RoleAdmin, domain.RoleStaff); err != nil {
		return domain.ReportSaveResponse{}, err
	}
	if strings.TrimSpace(req.FileName) == "" {
		return rejected("Please enter a filename."), nil
	}
	fileType := strings.ToLower(strings.TrimSpace(req.FileType))
	if fileType == "" {
		return rejected("Please choose a file type."), nil
	}

	kind := domain.ArtifactKind(fileType)
	var payload []byte
	switch kind {
	case domain.KindImage:
		data, ok := decodeImageData(req.ImageData)
		if !ok {
			return rejected("Could not capture the report image."), nil
		}
		payload = data
	case domain.KindTabular:
		if strings.TrimSpace(req.CSVData) == "" {
			return rejected("No CSV data was provided."), nil
		}
		payload = []byte(req.CSVData)
	default:
		return rejected("Unsupported file type."), nil
	}

	record, err := s.archive.Put(ctx, req.FileName, kind, payload, req.DescriptionHTML)
	if err != nil {
		var verr *archive.ValidationError
		if errors.As(err, &verr) {
			return rejected(verr.Message), nil
		}
		return domain.ReportSaveResponse{}, err
	}

	s.logger.Info("report saved",
		zap.String("key", record.StorageKey),
		zap.String("kind", string(kind)),
		zap.String("actor", actorName(ctx)),
	)
	return domain.ReportSaveResponse{
		Saved:      true,
		Message:    fmt.Sprintf("Saved '%s.%s'.", req.FileName, fileType),
		StorageKey: record.StorageKey,
	}, nil
}

// DownloadReport returns the payload for key with a friendly file name taken
// from its metadata, or the key itself when the metadata is unavailable.
func (s *Service) DownloadReport(ctx context.Context, key string, ext string) (domain.ReportDownload, error) {
	kind := domain.ArtifactKind(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")))
	if !kind.Valid() {
		return domain.ReportDownload{}, archive.ErrNotFound
	}

	data, err := s.archive.GetPayload(ctx, key, kind)
	if err != nil {
		return domain.ReportDownload{}, err
	}

	name := key
	record, ok, err := s.archive.GetMetadata(ctx, key)
	if err != nil {
		s.logger.Warn("metadata lookup failed", zap.String("key", key), zap.Error(err))
	} else if ok && record.DisplayName != "" {
		name = record.DisplayName
	}

	return domain.ReportDownload{
		Data:     data,
		MIMEType: kind.MIMEType(),
		FileName: name + kind.Extension(),
	}, nil
}

func (s *Service) DeleteReport(ctx context.Context, key string) (domain.ReportDeleteResponse, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ReportDeleteResponse{}, err
	}
	if err := s.archive.Delete(ctx, strings.TrimSpace(key)); err != nil {
		return domain.ReportDeleteResponse{}, err
	}
	return domain.ReportDeleteResponse{Message: "Report deleted."}, nil
}

// ReconcileArchive removes orphaned archive entries older than the configured
// grace period.
func (s *Service) ReconcileArchive(ctx context.Context) (domain.ReconcileSummary, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ReconcileSummary{}, err
	}
	return s.archive.Reconcile(ctx, s.opts.OrphanGrace)
}

// decodeImageData accepts a data URI style "<meta>,<base64>" payload.
func decodeImageData(raw string) ([]byte, bool) {
	_, encoded, found := strings.Cut(raw, ",")
	if !found {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func rejected(message string) domain.ReportSaveResponse {
	return domain.ReportSaveResponse{Saved: false, Message: message}
}

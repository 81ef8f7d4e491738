// Package service implements the lead read surface: listing, detail,
// manual creation, operator overrides and CSV import hand-off.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"leadpipe/internal/adapters/storage"
	"leadpipe/internal/leads/domain"
	"leadpipe/internal/leads/importer"
	"leadpipe/internal/leads/ports"
	"leadpipe/internal/leads/transport"
	"leadpipe/platform/apperr"
	"leadpipe/platform/logger"

	"github.com/google/uuid"
)

const importFolder = "imports"

// ImportEnqueuer hands an uploaded CSV to the background job queue.
type ImportEnqueuer interface {
	EnqueueImport(ctx context.Context, bucket, key string) (string, error)
}

// Store is the lead store surface the service needs.
type Store interface {
	ports.LeadAdmin
}

// Service serves the lead API.
type Service struct {
	store   Store
	storage storage.StorageService
	bucket  string
	imports ImportEnqueuer
	log     *logger.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithImportStorage enables CSV uploads into bucket.
func WithImportStorage(svc storage.StorageService, bucket string) Option {
	return func(s *Service) {
		s.storage = svc
		s.bucket = bucket
	}
}

// WithImportQueue runs uploaded imports as background jobs instead of inline.
func WithImportQueue(q ImportEnqueuer) Option {
	return func(s *Service) { s.imports = q }
}

func New(store Store, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{store: store, log: log.WithComponent("lead_service")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, q transport.ListLeadsQuery) (transport.LeadListResponse, error) {
	filter := ports.ListFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status, err := domain.ParseStatus(q.Status)
		if err != nil {
			return transport.LeadListResponse{}, apperr.Validation(err.Error())
		}
		filter.Status = &status
	}

	leads, err := s.store.List(ctx, filter)
	if err != nil {
		return transport.LeadListResponse{}, fmt.Errorf("list leads: %w", err)
	}
	return transport.LeadListResponse{Items: leads, Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (transport.LeadDetailResponse, error) {
	lead, err := s.getLead(ctx, id)
	if err != nil {
		return transport.LeadDetailResponse{}, err
	}
	calls, err := s.store.ListLogs(ctx, id, domain.StageCall)
	if err != nil {
		return transport.LeadDetailResponse{}, fmt.Errorf("list call logs: %w", err)
	}
	entries, err := s.store.ListLogs(ctx, id, domain.StageEntry)
	if err != nil {
		return transport.LeadDetailResponse{}, fmt.Errorf("list entry logs: %w", err)
	}
	return transport.LeadDetailResponse{Lead: lead, CallLogs: calls, EntryLogs: entries}, nil
}

func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest) (domain.Lead, error) {
	lead, err := s.store.Create(ctx, req.Contact())
	if err != nil {
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}
	s.log.Info("lead created", "lead_id", lead.ID)
	return lead, nil
}

// OverrideStatus applies an operator status change. The write is conditional
// on the status read here, so a worker claim in between yields a conflict.
func (s *Service) OverrideStatus(ctx context.Context, id uuid.UUID, req transport.OverrideStatusRequest, actor string) (domain.Lead, error) {
	next, err := domain.ParseStatus(req.Status)
	if err != nil {
		return domain.Lead{}, apperr.Validation(err.Error())
	}
	lead, err := s.getLead(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if err := domain.ValidateOverride(lead.Status, next); err != nil {
		return domain.Lead{}, apperr.Conflict(err.Error())
	}

	ok, err := s.store.OverrideStatus(ctx, id, lead.Status, next)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("override status: %w", err)
	}
	if !ok {
		return domain.Lead{}, apperr.Conflict("lead status changed concurrently")
	}
	s.log.Info("status overridden", "lead_id", id, "from", lead.Status, "to", next, "actor", actor, "reason", req.Reason)

	return s.getLead(ctx, id)
}

func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		return domain.Statistics{}, fmt.Errorf("statistics: %w", err)
	}
	return stats, nil
}

// StartImport stores an uploaded CSV and either enqueues it or, without a
// job queue, imports it inline.
func (s *Service) StartImport(ctx context.Context, fileName, contentType string, size int64, body io.Reader) (transport.ImportResponse, error) {
	if !strings.EqualFold(path.Ext(fileName), ".csv") && !storage.IsCSVContentType(contentType) {
		return transport.ImportResponse{}, apperr.Validation("only CSV files can be imported")
	}
	if s.storage == nil {
		if s.imports != nil {
			return transport.ImportResponse{}, apperr.Unavailable("import storage is not configured")
		}
		return s.importInline(ctx, "", body)
	}
	if err := s.storage.ValidateFileSize(size); err != nil {
		return transport.ImportResponse{}, apperr.Validation(err.Error())
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return transport.ImportResponse{}, apperr.Validation("could not read upload")
	}
	key, err := s.storage.UploadFile(ctx, s.bucket, importFolder, fileName, "text/csv", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return transport.ImportResponse{}, fmt.Errorf("store import file: %w", err)
	}
	if s.imports == nil {
		return s.importInline(ctx, key, bytes.NewReader(data))
	}

	taskID, err := s.imports.EnqueueImport(ctx, s.bucket, key)
	if err != nil {
		return transport.ImportResponse{}, fmt.Errorf("enqueue import: %w", err)
	}
	s.log.Info("import enqueued", "key", key, "task_id", taskID)
	return transport.ImportResponse{Key: key, TaskID: taskID}, nil
}

func (s *Service) importInline(ctx context.Context, key string, body io.Reader) (transport.ImportResponse, error) {
	res, err := importer.Import(ctx, body, s.store, s.log)
	if errors.Is(err, importer.ErrMissingColumns) {
		return transport.ImportResponse{}, apperr.Validation(err.Error())
	}
	if err != nil {
		return transport.ImportResponse{}, fmt.Errorf("import csv: %w", err)
	}
	return transport.ImportResponse{Key: key, Result: &res}, nil
}

func (s *Service) getLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.store.GetByID(ctx, id)
	if errors.Is(err, ports.ErrLeadNotFound) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

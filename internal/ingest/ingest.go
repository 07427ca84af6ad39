// Package ingest brings a local media file into the system as a new topic.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"subline/internal/authz"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/storage"
	"subline/internal/topic"
)

// Options describes the topic created for an ingested file.
type Options struct {
	Name      string
	Creator   string
	Model     string
	FrameRate float64
	WordLimit int
	Option    topic.CreatedOption
}

// Service copies source files into raw storage and creates topics.
type Service struct {
	store        *topic.Store
	files        *storage.Store
	authorizer   authz.Authorizer
	logger       *slog.Logger
	defaultModel string
}

// New constructs the ingest service.
func New(store *topic.Store, files *storage.Store, authorizer authz.Authorizer, defaultModel string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	if authorizer == nil {
		authorizer = authz.Static{}
	}
	return &Service{
		store:        store,
		files:        files,
		authorizer:   authorizer,
		logger:       logging.NewComponentLogger(logger, "ingest"),
		defaultModel: defaultModel,
	}
}

// Ingest copies path into raw storage under a fresh object name and creates
// a Normal topic with both branches Pending. The raw copy is removed if the
// topic cannot be created.
func (s *Service) Ingest(ctx context.Context, path string, opts Options) (*topic.Topic, error) {
	if err := s.authorizer.Check(ctx, authz.ActionIngest); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "stat source", filepath.Base(path), err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "stat source", "source is a directory", nil)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = s.defaultModel
	}
	option := opts.Option
	if option == "" {
		option = topic.CreatedUpload
	}
	object := uuid.NewString()
	if ext != "" {
		object += "." + ext
	}

	src, err := s.files.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	persisted, err := s.files.PersistRaw(ctx, object, src)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, topic.NewTopic{
		Name:         name,
		Extension:    ext,
		Creator:      strings.TrimSpace(opts.Creator),
		Option:       option,
		Model:        model,
		FrameRate:    opts.FrameRate,
		WordLimit:    opts.WordLimit,
		RawObject:    persisted.Object,
		OriginalSize: persisted.Size,
	})
	if err != nil {
		if _, cleanupErr := s.files.DeleteRaw(&topic.Topic{RawObject: persisted.Object}); cleanupErr != nil {
			s.logger.Warn("raw cleanup failed", logging.Error(cleanupErr))
		}
		return nil, fmt.Errorf("create topic: %w", err)
	}
	logging.WithContext(services.WithTopicID(ctx, created.ID), s.logger).Info("topic ingested",
		logging.String("name", created.Name),
		logging.String("object", persisted.Object),
		logging.Int64("size_bytes", persisted.Size),
		logging.String("sha256", persisted.SHA256),
		logging.String(logging.FieldEventType, "topic_ingested"),
	)
	return created, nil
}

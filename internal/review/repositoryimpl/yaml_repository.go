package repositoryimpl

import (
	"context"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/tandemloop/tandem/internal/review"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

const (
	reviewsPrefix = "reviews"
	reportPath    = "reviews/final_report.yaml"
)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", reviewsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, rv *review.Review) error {
	if rv.ID == "" {
		rv.ID = ulid.Make().String()
	}
	exists, err := r.storage.Exists(ctx, path(rv.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("review", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "review already exists", nil)
	}
	data, err := yaml.Marshal(rv)
	if err != nil {
		return cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to marshal review: %w", err))
	}
	if err := r.storage.Write(ctx, path(rv.ID), data); err != nil {
		return cerr.WrapStorageWriteError("review", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*review.Review, error) {
	paths, err := r.storage.List(ctx, reviewsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("reviews", err)
	}
	var all []*review.Review
	for _, p := range paths {
		if p == reportPath {
			continue
		}
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var rv review.Review
		if err := yaml.Unmarshal(data, &rv); err != nil {
			continue
		}
		all = append(all, &rv)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Iteration < all[j].Iteration })
	return all, nil
}

func (r *YAMLRepository) SaveReport(ctx context.Context, rp *review.Report) error {
	data, err := yaml.Marshal(rp)
	if err != nil {
		return cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to marshal report: %w", err))
	}
	if err := r.storage.Write(ctx, reportPath, data); err != nil {
		return cerr.WrapStorageWriteError("report", err)
	}
	return nil
}

func (r *YAMLRepository) Report(ctx context.Context) (*review.Report, error) {
	data, err := r.storage.Read(ctx, reportPath)
	if err != nil {
		return nil, cerr.WrapStorageReadError("report", err)
	}
	var rp review.Report
	if err := yaml.Unmarshal(data, &rp); err != nil {
		return nil, cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to unmarshal report: %w", err))
	}
	return &rp, nil
}

package repositoryimpl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

const skillsPrefix = "skills"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

// path keys skills by name so the manager's re-emission of a name replaces
// the earlier document.
func path(name string) string {
	return fmt.Sprintf("%s/%s.yaml", skillsPrefix, slug(name))
}

func slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
	return strings.Trim(s, "-")
}

func (r *YAMLRepository) Upsert(ctx context.Context, s *skill.Skill) error {
	now := time.Now()
	existing, err := r.Get(ctx, s.Name)
	if err != nil && !cerr.IsCode(err, cerr.NotFound) {
		return err
	}
	if existing != nil {
		s.CreatedAt = existing.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	data, err := yaml.Marshal(s)
	if err != nil {
		return cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to marshal skill: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.Name), data); err != nil {
		return cerr.WrapStorageWriteError("skill", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, name string) (*skill.Skill, error) {
	data, err := r.storage.Read(ctx, path(name))
	if err != nil {
		return nil, cerr.WrapStorageReadError("skill", err)
	}
	var s skill.Skill
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, cerr.NewError(cerr.Internal, "storage error", fmt.Errorf("failed to unmarshal skill: %w", err))
	}
	return &s, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*skill.Skill, error) {
	paths, err := r.storage.List(ctx, skillsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("skills", err)
	}
	var all []*skill.Skill
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var s skill.Skill
		if err := yaml.Unmarshal(data, &s); err != nil {
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) Names(ctx context.Context) ([]string, error) {
	skills, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
	}
	return names, nil
}

package skill

import "context"

type Repository interface {
	Upsert(ctx context.Context, s *Skill) error
	Get(ctx context.Context, name string) (*Skill, error)
	List(ctx context.Context) ([]*Skill, error)
	Names(ctx context.Context) ([]string, error)
}

package review

import "context"

type Repository interface {
	Create(ctx context.Context, rv *Review) error
	List(ctx context.Context) ([]*Review, error)
	SaveReport(ctx context.Context, rp *Report) error
	Report(ctx context.Context) (*Report, error)
}

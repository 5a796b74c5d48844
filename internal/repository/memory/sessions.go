package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

type sessionRepo struct {
	scope
}

func (r *sessionRepo) Create(ctx context.Context, s *domain.Session) (int64, error) {
	const op = "memory.SessionRepo.Create"

	if s.Capacity < 0 || s.Reserved < 0 || s.Reserved > s.Capacity {
		return 0, fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	id := r.s.sessionSeq.Add(1)
	err := r.run(func(t *txn) error {
		v := *s
		v.ID = id
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		t.sessions[id] = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (r *sessionRepo) Get(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "memory.SessionRepo.Get"

	var out domain.Session
	err := r.run(func(t *txn) error {
		v, ok := t.session(id)
		if !ok {
			return repository.ErrNotFound
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

func (r *sessionRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "memory.SessionRepo.GetForUpdate"

	var out domain.Session
	err := r.run(func(t *txn) error {
		if err := t.lock(ctx, lockKey{lockSession, id}); err != nil {
			return err
		}
		v, ok := t.session(id)
		if !ok {
			return repository.ErrNotFound
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &out, nil
}

func (r *sessionRepo) SetReserved(ctx context.Context, id int64, reserved int) error {
	const op = "memory.SessionRepo.SetReserved"

	err := r.run(func(t *txn) error {
		v, ok := t.session(id)
		if !ok {
			return repository.ErrNotFound
		}
		if reserved < 0 || reserved > v.Capacity {
			return repository.ErrConflict
		}
		v.Reserved = reserved
		t.sessions[id] = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

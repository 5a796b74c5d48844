package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirinyoku/oneday/internal/domain"
	"github.com/kirinyoku/oneday/internal/repository"
)

type reservationRepo struct {
	scope
}

func (r *reservationRepo) Create(ctx context.Context, res *domain.Reservation) (int64, error) {
	const op = "memory.ReservationRepo.Create"

	id := r.s.reservationSeq.Add(1)
	err := r.run(func(t *txn) error {
		if _, ok := t.session(res.SessionID); !ok {
			return repository.ErrNotFound
		}
		if res.Status.IsActive() && t.hasActive(id, res.SessionID, res.UserID) {
			return repository.ErrConflict
		}
		v := *res
		v.ID = id
		t.reservations[id] = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

func (r *reservationRepo) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "memory.ReservationRepo.Get"

	var out domain.Reservation
	err := r.run(func(t *txn) error {
		v, ok := t.reservation(id)
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

func (r *reservationRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Reservation, error) {
	const op = "memory.ReservationRepo.GetForUpdate"

	var out domain.Reservation
	err := r.run(func(t *txn) error {
		if err := t.lock(ctx, lockKey{lockReservation, id}); err != nil {
			return err
		}
		v, ok := t.reservation(id)
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

func (r *reservationRepo) FindActiveForUpdate(ctx context.Context, sessionID, userID int64) ([]domain.Reservation, error) {
	const op = "memory.ReservationRepo.FindActiveForUpdate"

	var out []domain.Reservation
	err := r.run(func(t *txn) error {
		var ids []int64
		for id, v := range t.allReservations() {
			if v.SessionID == sessionID && v.UserID == userID && v.Status.IsActive() {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			if err := t.lock(ctx, lockKey{lockReservation, id}); err != nil {
				return err
			}
			// re-read under the lock; the row may have moved on meanwhile
			v, ok := t.reservation(id)
			if ok && v.Status.IsActive() {
				out = append(out, v)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *reservationRepo) Update(ctx context.Context, res *domain.Reservation) error {
	const op = "memory.ReservationRepo.Update"

	err := r.run(func(t *txn) error {
		if _, ok := t.reservation(res.ID); !ok {
			return repository.ErrNotFound
		}
		if res.Status.IsActive() && t.hasActive(res.ID, res.SessionID, res.UserID) {
			return repository.ErrConflict
		}
		t.reservations[res.ID] = *res
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (r *reservationRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	_ = r.run(func(t *txn) error {
		for _, v := range t.allReservations() {
			if v.HoldExpired(now) {
				out = append(out, v)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		if !out[i].HoldExpiresAt.Equal(*out[j].HoldExpiresAt) {
			return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt)
		}
		return out[i].ID < out[j].ID
	})

	return truncate(out, limit), nil
}

func (r *reservationRepo) ListPaidStarted(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var out []domain.Reservation
	_ = r.run(func(t *txn) error {
		sessions := t.allSessions()
		for _, v := range t.allReservations() {
			if v.Status != domain.StatusPaid {
				continue
			}
			if s, ok := sessions[v.SessionID]; ok && s.StartsAt.Before(now) {
				out = append(out, v)
			}
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return truncate(out, limit), nil
}

func (r *reservationRepo) ListByUser(ctx context.Context, userID int64, status domain.ReservationStatus) ([]domain.Reservation, error) {
	var out []domain.Reservation
	_ = r.run(func(t *txn) error {
		for _, v := range t.allReservations() {
			if v.UserID == userID && (status == "" || v.Status == status) {
				out = append(out, v)
			}
		}
		return nil
	})

	sortNewestFirst(out)

	return out, nil
}

func (r *reservationRepo) ListByStatus(ctx context.Context, status domain.ReservationStatus) ([]domain.Reservation, error) {
	var out []domain.Reservation
	_ = r.run(func(t *txn) error {
		for _, v := range t.allReservations() {
			if status == "" || v.Status == status {
				out = append(out, v)
			}
		}
		return nil
	})

	sortNewestFirst(out)

	return out, nil
}

func (t *txn) hasActive(exceptID, sessionID, userID int64) bool {
	for id, v := range t.allReservations() {
		if id != exceptID && v.SessionID == sessionID && v.UserID == userID && v.Status.IsActive() {
			return true
		}
	}
	return false
}

func sortNewestFirst(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}

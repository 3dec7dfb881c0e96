package loyalty

import (
	"context"
	"database/sql"
	"time"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/storage"
)

// Options configures point rewards
type Options struct {
	DailyLoginPoints int
	BirthdayPoints   int
	TomanPerPoint    int64
	Location         *time.Location // calendar used for daily and birthday checks
}

// Service awards and redeems loyalty points
type Service struct {
	repo *Repository
	opts Options
	log  *logger.Logger
	now  func() time.Time
}

func NewService(db *sql.DB, opts Options, log *logger.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TomanPerPoint <= 0 {
		opts.TomanPerPoint = 1000
	}
	return &Service{
		repo: NewRepository(db),
		opts: opts,
		log:  log.Component("loyalty"),
		now:  time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AddPoints credits points to both the spendable and lifetime balances and recomputes the level.
// Negative values are applied as given.
func (s *Service) AddPoints(ctx context.Context, userID int64, points int, action, description string) (*Points, error) {
	var p *Points
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.addPoints(ctx, q, userID, points, action, description); err != nil {
			return err
		}
		var err error
		p, err = s.repo.Get(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, s.fail(err, "add points", userID)
	}

	s.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"points":  points,
		"action":  action,
		"level":   p.Level,
	}).Debug("points added")

	return p, nil
}

func (s *Service) addPoints(ctx context.Context, q storage.Querier, userID int64, points int, action, description string) error {
	if err := s.repo.Ensure(ctx, q, userID); err != nil {
		return err
	}
	total, err := s.repo.Add(ctx, q, userID, points)
	if err != nil {
		return err
	}
	if err := s.repo.SetLevel(ctx, q, userID, LevelFor(total)); err != nil {
		return err
	}
	return s.repo.AppendHistory(ctx, q, &HistoryEntry{
		UserID:      userID,
		Points:      points,
		Action:      action,
		Description: description,
		CreatedAt:   s.now(),
	})
}

// UsePoints redeems points from the spendable balance. Lifetime points and level do not change.
func (s *Service) UsePoints(ctx context.Context, userID int64, points int, description string) (*Points, error) {
	if points <= 0 {
		return nil, apperrors.InvalidInput("تعداد امتیاز باید بیشتر از صفر باشد")
	}

	var p *Points
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.repo.Ensure(ctx, q, userID); err != nil {
			return err
		}
		ok, err := s.repo.Spend(ctx, q, userID, points)
		if err != nil {
			return err
		}
		if !ok {
			cur, err := s.repo.Get(ctx, q, userID)
			if err != nil {
				return err
			}
			return apperrors.InsufficientPoints(cur.CurrentPoints, points)
		}
		if err := s.repo.AppendHistory(ctx, q, &HistoryEntry{
			UserID:      userID,
			Points:      -points,
			Action:      ActionRedeem,
			Description: description,
			CreatedAt:   s.now(),
		}); err != nil {
			return err
		}
		p, err = s.repo.Get(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, s.fail(err, "use points", userID)
	}
	return p, nil
}

// CheckDailyLogin grants the daily reward once per calendar day
func (s *Service) CheckDailyLogin(ctx context.Context, userID int64) (bool, error) {
	day := s.now().In(s.opts.Location).Format("2006-01-02")

	var awarded bool
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.repo.Ensure(ctx, q, userID); err != nil {
			return err
		}
		var err error
		awarded, err = s.repo.MarkDailyLogin(ctx, q, userID, day)
		if err != nil || !awarded {
			return err
		}
		return s.addPoints(ctx, q, userID, s.opts.DailyLoginPoints, ActionDailyLogin, "ورود روزانه")
	})
	if err != nil {
		return false, s.fail(err, "daily login", userID)
	}
	return awarded, nil
}

// CheckBirthday grants the birthday reward once per year on the stored birthday
func (s *Service) CheckBirthday(ctx context.Context, userID int64) (bool, error) {
	today := s.now().In(s.opts.Location)

	var awarded bool
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.repo.Ensure(ctx, q, userID); err != nil {
			return err
		}
		var err error
		awarded, err = s.repo.MarkBirthday(ctx, q, userID, today.Format("01-02"), today.Year())
		if err != nil || !awarded {
			return err
		}
		return s.addPoints(ctx, q, userID, s.opts.BirthdayPoints, ActionBirthday, "هدیه تولد")
	})
	if err != nil {
		return false, s.fail(err, "birthday", userID)
	}
	return awarded, nil
}

// SetBirthday stores the user's birthday given as MM-DD
func (s *Service) SetBirthday(ctx context.Context, userID int64, monthDay string) error {
	d, err := time.Parse("01-02", monthDay)
	if err != nil {
		return apperrors.InvalidInput("فرمت تاریخ تولد صحیح نیست. مثال: 03-21")
	}

	err = s.repo.WithTx(ctx, func(q storage.Querier) error {
		if err := s.repo.Ensure(ctx, q, userID); err != nil {
			return err
		}
		return s.repo.SetBirthday(ctx, q, userID, d.Format("01-02"))
	})
	if err != nil {
		return s.fail(err, "set birthday", userID)
	}
	return nil
}

// GetPoints returns the user's points, creating an empty account on first access
func (s *Service) GetPoints(ctx context.Context, userID int64) (*Points, error) {
	q := s.repo.DB()
	if err := s.repo.Ensure(ctx, q, userID); err != nil {
		return nil, s.fail(err, "ensure points", userID)
	}
	p, err := s.repo.Get(ctx, q, userID)
	if err != nil {
		return nil, s.fail(err, "get points", userID)
	}
	return p, nil
}

func (s *Service) GetHistory(ctx context.Context, userID int64, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	entries, err := s.repo.History(ctx, s.repo.DB(), userID, limit)
	if err != nil {
		return nil, s.fail(err, "points history", userID)
	}
	return entries, nil
}

// PointsForPurchase converts a paid price to earned points
func (s *Service) PointsForPurchase(price int64) int {
	if price <= 0 {
		return 0
	}
	return int(price / s.opts.TomanPerPoint)
}

func (s *Service) fail(err error, op string, userID int64) error {
	var be *apperrors.BotError
	if apperrors.As(err, &be) {
		return err
	}
	s.log.WithField("user_id", userID).ErrorErr(err, op+" failed")
	return apperrors.Database(err)
}

package storage

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"peerzee/backend/internal/models"
)

// BanChannel is the Redis channel a user id is published on when banned.
const BanChannel = "moderation:bans"

const (
	banKeyPrefix     = "ban:"
	lastBanKeyPrefix = "ban_last:"
	genderKeyPrefix  = "gender:"
)

type Storage interface {
	SaveProfile(ctx context.Context, user *models.User) error
	GetUserByID(userID string) (*models.User, error)
	UpdateUserReputation(userID string, delta int) error
	GetGender(ctx context.Context, userID string) (models.Gender, error)

	SessionStarted(ctx context.Context, s models.Session) error
	SessionEnded(ctx context.Context, s models.Session) error
	RecentSessions(limit int) ([]models.VideoSession, error)

	SaveComplaint(complaint *models.Complaint) error
	GetComplaintsForUser(userID string, since time.Time) ([]models.Complaint, error)

	BanUser(userID string, duration time.Duration) error
	UnbanUser(userID string) error
	IsUserBanned(userID string) (bool, error)
	GetLastBanDate(userID string) (int64, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context

	// GenderTTL is how long a looked up gender stays cached in Redis.
	GenderTTL time.Duration
	Logger    *slog.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:        db,
		Redis:     rdb,
		Ctx:       context.Background(),
		GenderTTL: 10 * time.Minute,
		Logger:    slog.Default(),
	}
}

// AutoMigrate створює таблиці, якими володіє сервер.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(&models.User{}, &models.VideoSession{}, &models.Complaint{})
}

// SaveProfile створює або оновлює профіль. Reputation is owned by
// moderation and is never overwritten here.
func (s *Service) SaveProfile(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "age", "gender", "interests"}),
	}).Create(user).Error
	if err != nil {
		return err
	}
	// Стара стать у кеші інакше жила б до кінця TTL.
	if err := s.Redis.Del(ctx, genderKeyPrefix+user.ID).Err(); err != nil {
		s.Logger.Warn("failed to drop cached gender", "user_id", user.ID, "error", err)
	}
	return nil
}

// GetUserByID повертає nil без помилки, якщо профілю немає.
func (s *Service) GetUserByID(userID string) (*models.User, error) {
	var user models.User
	err := s.DB.Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserReputation змінює репутацію на delta, не виходячи за межі [0, 1000].
func (s *Service) UpdateUserReputation(userID string, delta int) error {
	return s.DB.Model(&models.User{}).
		Where("id = ?", userID).
		Update("reputation_score", gorm.Expr("LEAST(1000, GREATEST(0, reputation_score + ?))", delta)).Error
}

// GetGender читає стать спочатку з кешу Redis, потім з PostgreSQL.
// Users without a profile are cached as unknown as well.
func (s *Service) GetGender(ctx context.Context, userID string) (models.Gender, error) {
	return lookupGender(ctx, redisGenderCache{s.Redis}, s.GenderTTL, s.Logger, userID, func(ctx context.Context) (models.Gender, error) {
		var user models.User
		err := s.DB.WithContext(ctx).Select("id", "gender").Where("id = ?", userID).First(&user).Error
		switch {
		case err == nil:
			return user.DeclaredGender(), nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			return models.GenderUnknown, nil
		}
		return models.GenderUnknown, err
	})
}

type genderCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisGenderCache struct{ rdb *redis.Client }

func (c redisGenderCache) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c redisGenderCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// lookupGender treats the cache as best effort: a cache failure on either
// side is logged and the database stays the source of truth.
func lookupGender(ctx context.Context, cache genderCache, ttl time.Duration, logger *slog.Logger, userID string, load func(context.Context) (models.Gender, error)) (models.Gender, error) {
	key := genderKeyPrefix + userID
	cached, err := cache.Get(ctx, key)
	switch {
	case err == nil:
		return models.Gender(cached), nil
	case !errors.Is(err, redis.Nil):
		logger.Warn("gender cache read failed", "user_id", userID, "error", err)
	}

	gender, err := load(ctx)
	if err != nil {
		return models.GenderUnknown, err
	}
	if err := cache.Set(ctx, key, string(gender), ttl); err != nil {
		logger.Warn("gender cache write failed", "user_id", userID, "error", err)
	}
	return gender, nil
}

// SessionStarted записує сесію, що стала ACTIVE.
func (s *Service) SessionStarted(ctx context.Context, session models.Session) error {
	row := models.VideoSession{
		ID:         session.ID,
		User1ID:    session.Initiator,
		User2ID:    session.Responder,
		IntentMode: string(session.Mode),
		WithVideo:  session.WithVideo,
		BlindDate:  session.BlindDate != nil,
		Status:     models.SessionStatusActive,
		StartedAt:  session.ActivatedAt,
	}
	return s.DB.WithContext(ctx).Create(&row).Error
}

// SessionEnded закриває запис сесії. Sessions that never became ACTIVE
// have no row and are skipped.
func (s *Service) SessionEnded(ctx context.Context, session models.Session) error {
	if session.ActivatedAt.IsZero() {
		return nil
	}
	endedAt := time.Now()
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	status := models.SessionStatusEnded
	if session.EndReason == models.ReasonReported {
		status = models.SessionStatusReported
	}

	return s.DB.WithContext(ctx).Model(&models.VideoSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"status":           status,
			"end_reason":       session.EndReason,
			"ended_at":         endedAt,
			"duration_seconds": int(endedAt.Sub(session.ActivatedAt).Seconds()),
		}).Error
}

// RecentSessions повертає останні сесії, новіші першими.
func (s *Service) RecentSessions(limit int) ([]models.VideoSession, error) {
	var sessions []models.VideoSession
	if err := s.DB.Order("started_at desc").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Service) SaveComplaint(complaint *models.Complaint) error {
	if complaint.Status == "" {
		complaint.Status = "new"
	}
	return s.DB.Create(complaint).Error
}

// GetComplaintsForUser повертає скарги на користувача, створені після since.
func (s *Service) GetComplaintsForUser(userID string, since time.Time) ([]models.Complaint, error) {
	var complaints []models.Complaint
	err := s.DB.Where("target_id = ? AND created_at >= ?", userID, since).
		Order("created_at desc").
		Find(&complaints).Error
	if err != nil {
		return nil, err
	}
	return complaints, nil
}

// BanUser ставить бан у Redis з TTL і сповіщає інші сервери.
func (s *Service) BanUser(userID string, duration time.Duration) error {
	now := time.Now()
	_, err := s.Redis.TxPipelined(s.Ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(s.Ctx, banKeyPrefix+userID, now.Add(duration).Unix(), duration)
		pipe.Set(s.Ctx, lastBanKeyPrefix+userID, now.Unix(), 0)
		return nil
	})
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, BanChannel, userID).Err()
}

// UnbanUser знімає активний бан. The ban history is kept.
func (s *Service) UnbanUser(userID string) error {
	return s.Redis.Del(s.Ctx, banKeyPrefix+userID).Err()
}

// IsUserBanned перевіряє статус бану в Redis
func (s *Service) IsUserBanned(userID string) (bool, error) {
	status, err := s.Redis.Get(s.Ctx, banKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// GetLastBanDate повертає unix-час останнього бану або 0.
func (s *Service) GetLastBanDate(userID string) (int64, error) {
	value, err := s.Redis.Get(s.Ctx, lastBanKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

package storage

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/models"
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres error codes the storage layer translates.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// ErrDuplicate signals a unique constraint violation.
var ErrDuplicate = errors.New("storage: duplicate")

// GormStorage is the Postgres-backed Storage.
type GormStorage struct {
	DB *gorm.DB
}

// NewGormStorage Constructor
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{DB: db}
}

// Migrate creates or updates the tables of all persisted models.
func (s *GormStorage) Migrate(ctx context.Context) error {
	err := s.DB.WithContext(ctx).AutoMigrate(
		&models.Case{},
		&models.Hearing{},
		&models.Statement{},
		&models.Evidence{},
		&models.Verdict{},
	)
	if err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

// translate maps driver errors onto the shared taxonomy.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("storage: %s: %w", op, apperr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("storage: %s: %w", op, apperr.ErrNotFound)
		case pgUniqueViolation:
			return fmt.Errorf("storage: %s: %w", op, ErrDuplicate)
		}
	}
	return fmt.Errorf("storage: %s: %w", op, err)
}

func (s *GormStorage) CreateCase(ctx context.Context, c *models.Case) error {
	return translate("create case", s.DB.WithContext(ctx).Create(c).Error)
}

func (s *GormStorage) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	var c models.Case
	if err := s.DB.WithContext(ctx).Where("id = ?", caseID).Take(&c).Error; err != nil {
		return nil, translate("get case "+caseID, err)
	}
	return &c, nil
}

func (s *GormStorage) UpdateCase(ctx context.Context, c *models.Case) error {
	res := s.DB.WithContext(ctx).Save(c)
	if res.Error != nil {
		return translate("update case "+c.ID, res.Error)
	}
	return nil
}

func (s *GormStorage) ListCasesForUser(ctx context.Context, userID string) ([]models.Case, error) {
	var cases []models.Case
	err := s.DB.WithContext(ctx).
		Where("? = ANY(participants) OR invited_user_id = ?", userID, userID).
		Order("created_at desc").
		Find(&cases).Error
	if err != nil {
		return nil, translate("list cases", err)
	}
	return cases, nil
}

func (s *GormStorage) ListPendingCases(ctx context.Context) ([]models.Case, error) {
	var cases []models.Case
	err := s.DB.WithContext(ctx).
		Where("acceptance = ?", models.AcceptancePending).
		Order("created_at asc").
		Find(&cases).Error
	if err != nil {
		return nil, translate("list pending cases", err)
	}
	return cases, nil
}

func (s *GormStorage) CreateHearing(ctx context.Context, h *models.Hearing) error {
	return translate("create hearing", s.DB.WithContext(ctx).Create(h).Error)
}

func (s *GormStorage) GetHearing(ctx context.Context, hearingID string) (*models.Hearing, error) {
	var h models.Hearing
	if err := s.DB.WithContext(ctx).Where("id = ?", hearingID).Take(&h).Error; err != nil {
		return nil, translate("get hearing "+hearingID, err)
	}
	return &h, nil
}

func (s *GormStorage) ListHearings(ctx context.Context, caseID string) ([]models.Hearing, error) {
	var hearings []models.Hearing
	err := s.DB.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("round asc, created_at asc").
		Find(&hearings).Error
	if err != nil {
		return nil, translate("list hearings", err)
	}
	return hearings, nil
}

func (s *GormStorage) MaxRound(ctx context.Context, caseID string) (int, error) {
	var round int
	err := s.DB.WithContext(ctx).
		Model(&models.Hearing{}).
		Where("case_id = ?", caseID).
		Select("COALESCE(MAX(round), 0)").
		Scan(&round).Error
	if err != nil {
		return 0, translate("max round", err)
	}
	return round, nil
}

func (s *GormStorage) UpdateHearingStatus(ctx context.Context, hearingID string, status models.HearingStatus) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Hearing{}).
		Where("id = ?", hearingID).
		Update("status", status)
	if res.Error != nil {
		return translate("update hearing status", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update hearing status", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *GormStorage) ReplaceStatements(ctx context.Context, hearingID string, statements []models.Statement) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hearing_id = ?", hearingID).Delete(&models.Statement{}).Error; err != nil {
			return translate("delete statements", err)
		}
		if len(statements) == 0 {
			return nil
		}
		for i := range statements {
			statements[i].HearingID = hearingID
		}
		return translate("insert statements", tx.Create(&statements).Error)
	})
}

func (s *GormStorage) ListStatements(ctx context.Context, hearingID string) ([]models.Statement, error) {
	var statements []models.Statement
	err := s.DB.WithContext(ctx).
		Where("hearing_id = ?", hearingID).
		Order("side asc").
		Find(&statements).Error
	if err != nil {
		return nil, translate("list statements", err)
	}
	return statements, nil
}

func (s *GormStorage) ReplaceEvidence(ctx context.Context, hearingID string, evidence []models.Evidence) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hearing_id = ?", hearingID).Delete(&models.Evidence{}).Error; err != nil {
			return translate("delete evidence", err)
		}
		if len(evidence) == 0 {
			return nil
		}
		for i := range evidence {
			evidence[i].HearingID = hearingID
		}
		return translate("insert evidence", tx.Create(&evidence).Error)
	})
}

func (s *GormStorage) ListEvidence(ctx context.Context, hearingID string) ([]models.Evidence, error) {
	var evidence []models.Evidence
	err := s.DB.WithContext(ctx).
		Where("hearing_id = ?", hearingID).
		Order("created_at asc").
		Find(&evidence).Error
	if err != nil {
		return nil, translate("list evidence", err)
	}
	return evidence, nil
}

func (s *GormStorage) UpsertVerdict(ctx context.Context, v *models.Verdict) error {
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hearing_id"}},
			UpdateAll: true,
		}).
		Create(v).Error
	return translate("upsert verdict", err)
}

func (s *GormStorage) GetVerdict(ctx context.Context, hearingID string) (*models.Verdict, error) {
	var v models.Verdict
	if err := s.DB.WithContext(ctx).Where("hearing_id = ?", hearingID).Take(&v).Error; err != nil {
		return nil, translate("get verdict "+hearingID, err)
	}
	return &v, nil
}

// InCaseTx locks the case row with SELECT ... FOR UPDATE for the duration
// of a database transaction. A nil error from fn commits.
func (s *GormStorage) InCaseTx(ctx context.Context, caseID string, fn func(tx Storage) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.Case
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", caseID).
			Take(&locked).Error
		if err != nil {
			return translate("lock case "+caseID, err)
		}
		return fn(&GormStorage{DB: tx})
	})
}

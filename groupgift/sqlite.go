package groupgift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type groupGiftRecord struct {
	ID            int64 `gorm:"primaryKey;autoIncrement"`
	Title         string
	Description   string
	OccasionType  string
	RecipientID   int64  `gorm:"index"`
	GiftID        *int64
	TargetAmount  int64
	CurrentAmount int64
	Status        string
	Deadline      time.Time
	CreatedBy     string `gorm:"index"`
	CreatedAt     time.Time
	Contributions []contributionRecord `gorm:"foreignKey:GroupGiftID;constraint:OnDelete:CASCADE"`
	Invitations   []invitationRecord   `gorm:"foreignKey:GroupGiftID;constraint:OnDelete:CASCADE"`
}

func (groupGiftRecord) TableName() string { return "group_gifts" }

type contributionRecord struct {
	ID            string `gorm:"primaryKey"`
	GroupGiftID   int64  `gorm:"uniqueIndex:idx_contribution_email"`
	Position      int
	Name          string
	Email         string `gorm:"uniqueIndex:idx_contribution_email"`
	Amount        int64
	Message       string
	ContributedAt time.Time
}

func (contributionRecord) TableName() string { return "group_gift_contributions" }

type invitationRecord struct {
	GroupGiftID int64  `gorm:"primaryKey"`
	Email       string `gorm:"primaryKey"`
	Position    int
	Name        string
	InvitedAt   time.Time
	Status      string
}

func (invitationRecord) TableName() string { return "group_gift_invitations" }

// SQLiteRepository stores campaigns in a SQLite file through GORM. SQLite has
// no row locks, so Apply also serializes writers per campaign in process.
type SQLiteRepository struct {
	db    *gorm.DB
	locks *keyedMutex
}

func OpenSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite has a single writer. One connection queues transactions for
	// different campaigns instead of failing them with "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&groupGiftRecord{}, &contributionRecord{}, &invitationRecord{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite database: %w", err)
	}

	return &SQLiteRepository{db: db, locks: newKeyedMutex()}, nil
}

func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SQLiteRepository) Create(ctx context.Context, g *GroupGift) error {
	rec := toRecord(g)
	rec.ID = 0
	err := r.db.WithContext(ctx).Create(&rec).Error
	if err != nil {
		return repoErr("create", err)
	}
	g.ID = rec.ID
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*GroupGift, error) {
	g, err := r.get(r.db.WithContext(ctx), id)
	return g, repoErr("get", err)
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]GroupGift, error) {
	return r.list(r.db.WithContext(ctx))
}

func (r *SQLiteRepository) GetByRecipient(ctx context.Context, recipientID int64) ([]GroupGift, error) {
	return r.list(r.db.WithContext(ctx).Where("recipient_id = ?", recipientID))
}

func (r *SQLiteRepository) GetByCreator(ctx context.Context, createdBy string) ([]GroupGift, error) {
	return r.list(r.db.WithContext(ctx).Where("created_by = ?", createdBy))
}

func (r *SQLiteRepository) Update(ctx context.Context, g *GroupGift) error {
	unlock := r.locks.Lock(g.ID)
	defer unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.save(tx, g)
	})
	return repoErr("update", err)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&contributionRecord{}, "group_gift_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&invitationRecord{}, "group_gift_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&groupGiftRecord{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCampaignNotFound
		}
		return nil
	})
	return repoErr("delete", err)
}

func (r *SQLiteRepository) Apply(ctx context.Context, id int64, fn func(g *GroupGift) error) (*GroupGift, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	var out *GroupGift
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := r.get(tx, id)
		if err != nil {
			return err
		}
		if fnErr = fn(g); fnErr != nil {
			return fnErr
		}
		if err := r.save(tx, g); err != nil {
			return err
		}
		out = g
		return nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, repoErr("apply", err)
	}
	return out, nil
}

func (r *SQLiteRepository) get(db *gorm.DB, id int64) (*GroupGift, error) {
	var rec groupGiftRecord
	err := db.Preload("Contributions", orderByPosition).Preload("Invitations", orderByPosition).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	g := fromRecord(rec)
	return &g, nil
}

func (r *SQLiteRepository) list(db *gorm.DB) ([]GroupGift, error) {
	var recs []groupGiftRecord
	err := db.Preload("Contributions", orderByPosition).Preload("Invitations", orderByPosition).Order("id DESC").Find(&recs).Error
	if err != nil {
		return nil, repoErr("list", err)
	}

	gifts := make([]GroupGift, 0, len(recs))
	for _, rec := range recs {
		gifts = append(gifts, fromRecord(rec))
	}
	return gifts, nil
}

func (r *SQLiteRepository) save(tx *gorm.DB, g *GroupGift) error {
	rec := toRecord(g)
	res := tx.Model(&groupGiftRecord{}).Where("id = ?", g.ID).Updates(map[string]any{
		"title":          rec.Title,
		"description":    rec.Description,
		"occasion_type":  rec.OccasionType,
		"recipient_id":   rec.RecipientID,
		"gift_id":        rec.GiftID,
		"target_amount":  rec.TargetAmount,
		"current_amount": rec.CurrentAmount,
		"status":         rec.Status,
		"deadline":       rec.Deadline,
		"created_by":     rec.CreatedBy,
		"created_at":     rec.CreatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCampaignNotFound
	}

	keep := make([]string, 0, len(rec.Contributions))
	for _, c := range rec.Contributions {
		keep = append(keep, c.ID)
	}
	stale := tx.Where("group_gift_id = ?", g.ID)
	if len(keep) > 0 {
		stale = stale.Where("id NOT IN ?", keep)
	}
	if err := stale.Delete(&contributionRecord{}).Error; err != nil {
		return err
	}
	for _, c := range rec.Contributions {
		if err := tx.Where(contributionRecord{ID: c.ID}).FirstOrCreate(&c).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("group_gift_id = ?", g.ID).Delete(&invitationRecord{}).Error; err != nil {
		return err
	}
	if len(rec.Invitations) > 0 {
		if err := tx.Create(&rec.Invitations).Error; err != nil {
			return err
		}
	}
	return nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func toRecord(g *GroupGift) groupGiftRecord {
	rec := groupGiftRecord{
		ID:            g.ID,
		Title:         g.Title,
		Description:   g.Description,
		OccasionType:  g.OccasionType,
		RecipientID:   g.RecipientID,
		GiftID:        g.GiftID,
		TargetAmount:  g.TargetAmount,
		CurrentAmount: g.CurrentAmount,
		Status:        string(g.Status),
		Deadline:      g.Deadline,
		CreatedBy:     g.CreatedBy,
		CreatedAt:     g.CreatedAt,
	}
	for i, c := range g.Contributors {
		rec.Contributions = append(rec.Contributions, contributionRecord{
			ID:            c.ID.String(),
			GroupGiftID:   g.ID,
			Position:      i,
			Name:          c.Name,
			Email:         c.Email,
			Amount:        c.Amount,
			Message:       c.Message,
			ContributedAt: c.ContributedAt,
		})
	}
	for i, inv := range g.InvitedContributors {
		rec.Invitations = append(rec.Invitations, invitationRecord{
			GroupGiftID: g.ID,
			Email:       inv.Email,
			Position:    i,
			Name:        inv.Name,
			InvitedAt:   inv.InvitedAt,
			Status:      inv.Status,
		})
	}
	return rec
}

func fromRecord(rec groupGiftRecord) GroupGift {
	g := GroupGift{
		ID:                  rec.ID,
		Title:               rec.Title,
		Description:         rec.Description,
		OccasionType:        rec.OccasionType,
		RecipientID:         rec.RecipientID,
		GiftID:              rec.GiftID,
		TargetAmount:        rec.TargetAmount,
		CurrentAmount:       rec.CurrentAmount,
		Status:              Status(rec.Status),
		Deadline:            rec.Deadline,
		CreatedBy:           rec.CreatedBy,
		CreatedAt:           rec.CreatedAt,
		Contributors:        make([]Contribution, 0, len(rec.Contributions)),
		InvitedContributors: make([]Invitation, 0, len(rec.Invitations)),
	}
	for _, c := range rec.Contributions {
		g.Contributors = append(g.Contributors, Contribution{
			ID:            uuid.MustParse(c.ID),
			Name:          c.Name,
			Email:         c.Email,
			Amount:        c.Amount,
			Message:       c.Message,
			ContributedAt: c.ContributedAt,
		})
	}
	for _, inv := range rec.Invitations {
		g.InvitedContributors = append(g.InvitedContributors, Invitation{
			Email:     inv.Email,
			Name:      inv.Name,
			InvitedAt: inv.InvitedAt,
			Status:    inv.Status,
		})
	}
	return g
}

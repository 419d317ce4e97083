package host

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DocumentObject is one stored object row
type DocumentObject struct {
	Document  string    `gorm:"primaryKey;not null" json:"document"`
	Name      string    `gorm:"primaryKey;not null" json:"name"`
	Label     string    `gorm:"not null" json:"label"`
	TypeID    string    `gorm:"not null" json:"type_id"`
	Seq       int       `gorm:"not null;default:0" json:"seq"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DocumentObject) TableName() string {
	return "document_objects"
}

// DocumentProperty is one property value of a stored object
type DocumentProperty struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Document string `gorm:"not null;index:idx_document_properties_object" json:"document"`
	Object   string `gorm:"not null;index:idx_document_properties_object" json:"object"`
	Position int    `gorm:"not null" json:"position"`
	Name     string `gorm:"not null" json:"name"`
	Type     string `gorm:"not null" json:"type"`
	Group    string `gorm:"column:prop_group" json:"group"`
	Value    string `gorm:"type:text" json:"value"`
	ReadOnly bool   `gorm:"not null;default:false" json:"read_only"`
}

func (DocumentProperty) TableName() string {
	return "document_properties"
}

// PostgresStore keeps objects in the document_objects and
// document_properties tables
type PostgresStore struct {
	db *gorm.DB
}

// OpenPostgresStore connects with dsn and migrates the schema
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	store := NewPostgresStore(db)
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate() error {
	if err := s.db.AutoMigrate(&DocumentObject{}, &DocumentProperty{}); err != nil {
		return fmt.Errorf("failed to migrate document tables: %w", err)
	}
	return nil
}

// SaveObjects replaces the stored rows of every record in one transaction
func (s *PostgresStore) SaveObjects(ctx context.Context, doc string, records []ObjectRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var props []DocumentProperty
		for _, rec := range records {
			row := DocumentObject{
				Document: doc,
				Name:     rec.Name,
				Label:    rec.Label,
				TypeID:   rec.TypeID,
				Seq:      rec.Seq,
			}
			// Save inserts or updates by primary key
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("failed to save object %s: %w", rec.Name, err)
			}
			if err := tx.Where("document = ? AND object = ?", doc, rec.Name).Delete(&DocumentProperty{}).Error; err != nil {
				return fmt.Errorf("failed to clear properties of %s: %w", rec.Name, err)
			}
			for i, p := range rec.Properties {
				props = append(props, DocumentProperty{
					Document: doc,
					Object:   rec.Name,
					Position: i,
					Name:     p.Name,
					Type:     p.Type,
					Group:    p.Group,
					Value:    p.Value,
					ReadOnly: p.ReadOnly,
				})
			}
		}
		if len(props) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(props, 500).Error; err != nil {
			return fmt.Errorf("failed to insert properties: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteObjects(ctx context.Context, doc string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document = ? AND object IN ?", doc, names).Delete(&DocumentProperty{}).Error; err != nil {
			return err
		}
		return tx.Where("document = ? AND name IN ?", doc, names).Delete(&DocumentObject{}).Error
	})
}

func (s *PostgresStore) LoadObjects(ctx context.Context, doc string) ([]ObjectRecord, error) {
	var rows []DocumentObject
	if err := s.db.WithContext(ctx).Where("document = ?", doc).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	var props []DocumentProperty
	if err := s.db.WithContext(ctx).Where("document = ?", doc).Order("object, position").Find(&props).Error; err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}

	byObject := make(map[string][]PropertyRecord)
	for _, p := range props {
		byObject[p.Object] = append(byObject[p.Object], PropertyRecord{
			Name:     p.Name,
			Type:     p.Type,
			Group:    p.Group,
			Value:    p.Value,
			ReadOnly: p.ReadOnly,
		})
	}
	records := make([]ObjectRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, ObjectRecord{
			Name:       row.Name,
			Label:      row.Label,
			TypeID:     row.TypeID,
			Seq:        row.Seq,
			Properties: byObject[row.Name],
		})
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

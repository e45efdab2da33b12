package contactsync

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// progressEvery is how many rows are processed between progress writes
const progressEvery = 25

var (
	ErrNotFound    = errors.New("import not found")
	ErrMissingCols = errors.New("csv header must contain a phone column")
)

// ParseError reports an upload that is not valid CSV
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "malformed csv: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

var columns = map[string]func(c *models.Contact, v string){
	"phone":      func(c *models.Contact, v string) { c.Phone = v },
	"first_name": func(c *models.Contact, v string) { c.FirstName = v },
	"last_name":  func(c *models.Contact, v string) { c.LastName = v },
	"email":      func(c *models.Contact, v string) { c.Email = v },
	"company":    func(c *models.Contact, v string) { c.Company = v },
	"city":       func(c *models.Contact, v string) { c.City = v },
	"country":    func(c *models.Contact, v string) { c.Country = v },
	"tags":       func(c *models.Contact, v string) { c.Tags = v },
}

type Importer struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

func NewImporter(db *gorm.DB, log logrus.FieldLogger) *Importer {
	return &Importer{db: db, log: log}
}

// Prepare reads the whole CSV and registers an import for it. The returned
// rows are passed to Run.
func (i *Importer) Prepare(accountID string, r io.Reader) (*models.ContactImport, []models.Contact, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return nil, nil, err
	}
	imp := &models.ContactImport{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Total:     len(rows),
		Status:    StatusProcessing,
	}
	if err := i.db.Create(imp).Error; err != nil {
		return nil, nil, errors.Wrap(err, "create import")
	}
	return imp, rows, nil
}

// Run upserts rows into the import's account. Rows without a valid phone
// number are skipped. Progress is written to the import row as it goes.
func (i *Importer) Run(ctx context.Context, imp *models.ContactImport, rows []models.Contact) error {
	log := i.log.WithField("import", imp.ID)

	for n, row := range rows {
		if err := ctx.Err(); err != nil {
			return i.finish(imp, err)
		}

		row.AccountID = imp.AccountID
		row.Phone = templateutil.NormalizePhone(row.Phone)
		if !templateutil.IsCompletePhoneNumber(row.Phone) {
			imp.Skipped++
		} else if err := Upsert(i.db, &row); err != nil {
			log.WithError(err).WithField("phone", row.Phone).Warn("contact row skipped")
			imp.Skipped++
		} else {
			imp.Imported++
		}

		if (n+1)%progressEvery == 0 {
			if err := i.db.Save(imp).Error; err != nil {
				return i.finish(imp, errors.Wrap(err, "store import progress"))
			}
		}
	}

	log.WithFields(logrus.Fields{
		"imported": imp.Imported,
		"skipped":  imp.Skipped,
	}).Info("contact import finished")
	return i.finish(imp, nil)
}

func (i *Importer) finish(imp *models.ContactImport, cause error) error {
	imp.Status = StatusCompleted
	if cause != nil {
		imp.Status = StatusFailed
		imp.Error = cause.Error()
	}
	if err := i.db.Save(imp).Error; err != nil {
		return errors.Wrap(err, "store import result")
	}
	return cause
}

// Processed returns how many rows of an import were handled so far
func (i *Importer) Processed(ctx context.Context, accountID, id string) (int, error) {
	imp, err := Get(i.db.WithContext(ctx), accountID, id)
	if err != nil {
		return 0, err
	}
	if imp.Status == StatusFailed {
		return 0, errors.Errorf("import failed: %s", imp.Error)
	}
	return imp.Imported + imp.Skipped, nil
}

func Get(db *gorm.DB, accountID, id string) (*models.ContactImport, error) {
	var imp models.ContactImport
	err := db.Where("id = ? AND account_id = ?", id, accountID).First(&imp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load import")
	}
	return &imp, nil
}

// Upsert inserts c or updates the contact with the same account and phone
func Upsert(db *gorm.DB, c *models.Contact) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "email", "company", "city", "country", "tags", "updated_at"}),
	}).Create(c).Error
}

// ParseCSV reads contacts from a CSV with a header row. Column names are
// matched case-insensitively; unknown columns are ignored.
func ParseCSV(r io.Reader) ([]models.Contact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingCols
	}
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	setters := make([]func(*models.Contact, string), len(header))
	hasPhone := false
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		setters[i] = columns[name]
		if name == "phone" {
			hasPhone = true
		}
	}
	if !hasPhone {
		return nil, ErrMissingCols
	}

	var out []models.Contact
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		var c models.Contact
		for i, v := range record {
			if i < len(setters) && setters[i] != nil {
				setters[i](&c, strings.TrimSpace(v))
			}
		}
		out = append(out, c)
	}
	return out, nil
}

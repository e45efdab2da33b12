package api

import (
	"context"
	"encoding/csv"
	"net/http"
	"strings"

	"campaign-dashboard/internal/campaign"
	"campaign-dashboard/internal/contactsync"
	"campaign-dashboard/internal/middleware"
	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/templateutil"
	"campaign-dashboard/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sahilm/fuzzy"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ContactHandler struct {
	db       *gorm.DB
	importer *contactsync.Importer
	poller   contactsync.Poller
	notify   Notifier
	log      logrus.FieldLogger

	// background imports stop with ctx
	ctx context.Context
}

func NewContactHandler(ctx context.Context, db *gorm.DB, importer *contactsync.Importer, poller contactsync.Poller, notify Notifier, log logrus.FieldLogger) *ContactHandler {
	return &ContactHandler{ctx: ctx, db: db, importer: importer, poller: poller, notify: notify, log: log}
}

// contactSource exposes contacts to the fuzzy matcher as "name phone"
type contactSource []models.Contact

func (s contactSource) String(i int) string { return s[i].FullName() + " " + s[i].Phone }
func (s contactSource) Len() int            { return len(s) }

// GetContacts lists contacts. ?tag= filters by tag and ?q= ranks the
// result by fuzzy match over name and phone.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	contacts, err := campaign.Contacts(h.db, middleware.AccountID(c), c.Query("tag"))
	if err != nil {
		internalError(c, err)
		return
	}

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		matches := fuzzy.FindFrom(q, contactSource(contacts))
		ranked := make([]models.Contact, 0, len(matches))
		for _, m := range matches {
			ranked = append(ranked, contacts[m.Index])
		}
		contacts = ranked
	}

	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

type ContactRequest struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Tags      string `json:"tags"`
}

func (r ContactRequest) apply(ct *models.Contact) {
	ct.FirstName = strings.TrimSpace(r.FirstName)
	ct.LastName = strings.TrimSpace(r.LastName)
	ct.Email = strings.TrimSpace(r.Email)
	ct.Company = strings.TrimSpace(r.Company)
	ct.City = strings.TrimSpace(r.City)
	ct.Country = strings.TrimSpace(r.Country)
	ct.Tags = r.Tags
}

// CreateContact adds a contact or updates the one with the same phone
func (h *ContactHandler) CreateContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phone := templateutil.NormalizePhone(req.Phone)
	if !templateutil.IsCompletePhoneNumber(phone) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	contact := models.Contact{AccountID: middleware.AccountID(c), Phone: phone}
	req.apply(&contact)
	if err := contactsync.Upsert(h.db, &contact); err != nil {
		internalError(c, err)
		return
	}

	var stored models.Contact
	if err := h.db.Where("account_id = ? AND phone = ?", contact.AccountID, phone).First(&stored).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *ContactHandler) find(c *gin.Context) (*models.Contact, bool) {
	var contact models.Contact
	err := h.db.Where("id = ? AND account_id = ?", c.Param("id"), middleware.AccountID(c)).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return nil, false
	}
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	return &contact, true
}

// UpdateContact replaces the editable fields. The phone is fixed.
func (h *ContactHandler) UpdateContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contact, ok := h.find(c)
	if !ok {
		return
	}

	req.apply(contact)
	if err := h.db.Save(contact).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) DeleteContact(c *gin.Context) {
	contact, ok := h.find(c)
	if !ok {
		return
	}
	if err := h.db.Delete(contact).Error; err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Contact deleted"})
}

var exportHeader = []string{"phone", "first_name", "last_name", "email", "company", "city", "country", "tags"}

// ExportContacts streams the account's contacts as CSV in the import format
func (h *ContactHandler) ExportContacts(c *gin.Context) {
	contacts, err := campaign.Contacts(h.db, middleware.AccountID(c), c.Query("tag"))
	if err != nil {
		internalError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="contacts.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Write(exportHeader)
	for _, ct := range contacts {
		w.Write([]string{ct.Phone, ct.FirstName, ct.LastName, ct.Email, ct.Company, ct.City, ct.Country, ct.Tags})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.log.WithError(err).Warn("contact export interrupted")
	}
}

type syncProgress struct {
	ImportID  string `json:"import_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ImportContacts accepts a CSV upload and imports it in the background.
// Progress is pushed as sync_progress events.
func (h *ContactHandler) ImportContacts(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "CSV file is required"})
		return
	}
	defer file.Close()

	accountID := middleware.AccountID(c)
	imp, rows, err := h.importer.Prepare(accountID, file)
	var parseErr *contactsync.ParseError
	if errors.Is(err, contactsync.ErrMissingCols) || errors.As(err, &parseErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	log := h.log.WithField("import", imp.ID)
	go func() {
		if err := h.importer.Run(h.ctx, imp, rows); err != nil {
			log.WithError(err).Error("contact import failed")
		}
	}()
	go h.watch(accountID, imp.ID, imp.Total)

	c.JSON(http.StatusAccepted, gin.H{"id": imp.ID, "total": imp.Total})
}

func (h *ContactHandler) watch(accountID, importID string, total int) {
	status := func(ctx context.Context) (int, error) {
		return h.importer.Processed(ctx, accountID, importID)
	}
	progress := func(count, target int) {
		h.notify.Broadcast(accountID, ws.EventSyncProgress, syncProgress{ImportID: importID, Processed: count, Total: target})
	}

	final := syncProgress{ImportID: importID, Total: total}
	result, err := h.poller.Run(h.ctx, total, status, progress)
	if err != nil {
		final.Result = "failed"
		final.Error = err.Error()
	} else {
		final.Result = result.String()
		final.Processed, _ = h.importer.Processed(h.ctx, accountID, importID)
	}
	h.log.WithFields(logrus.Fields{"import": importID, "result": final.Result}).Info("contact import watch finished")
	h.notify.Broadcast(accountID, ws.EventSyncProgress, final)
}

// GetImport returns the progress of an import
func (h *ContactHandler) GetImport(c *gin.Context) {
	imp, err := contactsync.Get(h.db, middleware.AccountID(c), c.Param("id"))
	if errors.Is(err, contactsync.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, imp)
}

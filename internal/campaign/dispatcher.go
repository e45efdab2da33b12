package campaign

import (
	"context"
	"sync"
	"time"

	"campaign-dashboard/internal/models"
	"campaign-dashboard/internal/sms"
	"campaign-dashboard/internal/whatsapp"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WhatsAppSender is the part of the Graph client campaigns need
type WhatsAppSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, templateName, languageCode string, components []whatsapp.ComponentObj) (string, error)
}

// Stats summarises one dispatch
type Stats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type DispatcherOption func(d *Dispatcher)

func SetWorkerCount(count int) DispatcherOption {
	return func(d *Dispatcher) {
		if count > 0 {
			d.workerCount = count
		}
	}
}

func SetSMSTransport(transport sms.Transport) DispatcherOption {
	return func(d *Dispatcher) {
		d.sms = transport
	}
}

// SetNotifier registers a callback receiving the campaign after every
// status change
func SetNotifier(fn func(models.Campaign)) DispatcherOption {
	return func(d *Dispatcher) {
		d.notify = fn
	}
}

type Dispatcher struct {
	db       *gorm.DB
	whatsapp WhatsAppSender
	sms      sms.Transport
	log      logrus.FieldLogger
	notify   func(models.Campaign)

	workerCount int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool
}

func NewDispatcher(db *gorm.DB, wa WhatsAppSender, log logrus.FieldLogger, options ...DispatcherOption) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		db:          db,
		whatsapp:    wa,
		log:         log,
		notify:      func(models.Campaign) {},
		workerCount: 5,
		ctx:         ctx,
		cancel:      cancel,
		active:      map[string]bool{},
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Start dispatches the campaign in the background. The dispatch works on
// its own copy; c is never written after Start returns.
func (d *Dispatcher) Start(c *models.Campaign) error {
	if err := d.claim(c.ID); err != nil {
		return err
	}
	campaign := *c
	if c.FinishedAt != nil {
		finished := *c.FinishedAt
		campaign.FinishedAt = &finished
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(campaign.ID)
		if _, err := d.run(d.ctx, &campaign); err != nil {
			d.log.WithError(err).WithField("campaign", campaign.ID).Error("campaign dispatch failed")
		}
	}()
	return nil
}

// Run dispatches the campaign and blocks until every recipient was attempted
// or ctx is done
func (d *Dispatcher) Run(ctx context.Context, campaign *models.Campaign) (Stats, error) {
	if err := d.claim(campaign.ID); err != nil {
		return Stats{}, err
	}
	defer d.release(campaign.ID)
	return d.run(ctx, campaign)
}

// Shutdown cancels running dispatches and waits for them to record their state
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) claim(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active[id] {
		return ErrAlreadyActive
	}
	d.active[id] = true
	return nil
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.active, id)
	d.mu.Unlock()
}

type job struct {
	contact models.Contact
	params  []string
}

type result struct {
	message models.Message
	err     error
}

func (d *Dispatcher) run(ctx context.Context, campaign *models.Campaign) (Stats, error) {
	log := d.log.WithField("campaign", campaign.ID)

	if campaign.Status != models.CampaignPending {
		return Stats{}, ErrAlreadyActive
	}
	if campaign.Channel == ChannelSMS && d.sms == nil {
		return Stats{}, d.fail(campaign, ErrNoTransport)
	}
	if campaign.Channel == ChannelWhatsApp && d.whatsapp == nil {
		return Stats{}, d.fail(campaign, ErrNoTransport)
	}

	mappings, err := decodeMappings(campaign.Mappings)
	if err != nil {
		return Stats{}, d.fail(campaign, err)
	}
	contacts, err := Recipients(d.db, campaign.AccountID, campaign.Tag)
	if err != nil {
		return Stats{}, d.fail(campaign, err)
	}
	if len(contacts) == 0 {
		return Stats{}, d.fail(campaign, ErrNoRecipients)
	}

	campaign.Status = models.CampaignRunning
	campaign.Total = len(contacts)
	if err := d.save(campaign); err != nil {
		return Stats{}, err
	}
	log.WithField("recipients", len(contacts)).Info("campaign started")

	jobs := make(chan job)
	results := make(chan result)

	var workers sync.WaitGroup
	for i := 0; i < d.workerCount; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			d.worker(ctx, campaign, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, c := range contacts {
			select {
			case <-ctx.Done():
				return
			case jobs <- job{contact: c, params: Parameters(mappings, c)}:
			}
		}
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	stats := Stats{Total: len(contacts)}
	for res := range results {
		if res.err != nil {
			stats.Failed++
		} else {
			stats.Sent++
		}
		// messages are written from this goroutine only
		if err := d.db.Create(&res.message).Error; err != nil {
			log.WithError(err).WithField("recipient", res.message.Recipient).Error("failed to record message")
		}
	}

	campaign.Sent = stats.Sent
	campaign.Failed = stats.Failed
	campaign.Status = models.CampaignDone
	if ctx.Err() != nil {
		campaign.Status = models.CampaignFailed
	}
	now := time.Now()
	campaign.FinishedAt = &now
	if err := d.save(campaign); err != nil {
		return stats, err
	}

	log.WithFields(logrus.Fields{
		"sent":   stats.Sent,
		"failed": stats.Failed,
	}).Info("campaign finished")
	return stats, ctx.Err()
}

func (d *Dispatcher) worker(ctx context.Context, campaign *models.Campaign, jobs <-chan job, results chan<- result) {
	for j := range jobs {
		msg := models.Message{
			AccountID:  campaign.AccountID,
			CampaignID: campaign.ID,
			Channel:    campaign.Channel,
			Recipient:  j.contact.Phone,
		}

		id, content, err := d.send(ctx, campaign, j)
		msg.ProviderID = id
		msg.Content = content
		if err != nil {
			msg.Status = "failed"
			msg.Error = err.Error()
			d.log.WithError(err).WithFields(logrus.Fields{
				"campaign":  campaign.ID,
				"recipient": j.contact.Phone,
			}).Warn("campaign message failed")
		} else {
			msg.Status = "sent"
		}
		results <- result{message: msg, err: err}
	}
}

func (d *Dispatcher) send(ctx context.Context, campaign *models.Campaign, j job) (string, string, error) {
	switch campaign.Channel {
	case ChannelSMS:
		text := sms.Render(campaign.Text, j.params)
		return "", text, d.sms.Send(ctx, j.contact.Phone, text)
	case ChannelWhatsApp:
		if campaign.TemplateName == "" {
			text := sms.Render(campaign.Text, j.params)
			id, err := d.whatsapp.SendText(ctx, j.contact.Phone, text)
			return id, text, err
		}
		var components []whatsapp.ComponentObj
		if len(j.params) > 0 {
			components = append(components, whatsapp.ComponentObj{
				Type:       "body",
				Parameters: whatsapp.TextParameters(j.params),
			})
		}
		id, err := d.whatsapp.SendTemplate(ctx, j.contact.Phone, campaign.TemplateName, campaign.Language, components)
		return id, campaign.TemplateName, err
	}
	return "", "", errors.Errorf("unknown channel %q", campaign.Channel)
}

func (d *Dispatcher) fail(campaign *models.Campaign, cause error) error {
	campaign.Status = models.CampaignFailed
	now := time.Now()
	campaign.FinishedAt = &now
	if err := d.save(campaign); err != nil {
		d.log.WithError(err).WithField("campaign", campaign.ID).Error("failed to store campaign failure")
	}
	return cause
}

func (d *Dispatcher) save(campaign *models.Campaign) error {
	if err := d.db.Save(campaign).Error; err != nil {
		return errors.Wrap(err, "store campaign")
	}
	d.notify(*campaign)
	return nil
}

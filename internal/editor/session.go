package editor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"campaign-dashboard/internal/templateutil"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	MaxButtons         = 10
	MaxURLButtons      = 2
	MaxPhoneButtons    = 1
	MaxCopyCodeButtons = 1
)

var (
	ErrUnknownVariable   = errors.New("variable is not part of the catalogue")
	ErrNoSuchPlaceholder = errors.New("placeholder does not exist")
	ErrNoSuchButton      = errors.New("button does not exist")
	ErrButtonLimit       = errors.New("button limit reached")
	ErrHeaderFormat      = errors.New("operation not allowed for header format")
)

var templateNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,512}$`)

// Target addresses the component a mapping or substitution edit applies to.
// Button is only read for ComponentButton.
type Target struct {
	Component templateutil.ComponentType
	Button    int
}

// Session holds one template edit. It is not safe for concurrent use.
type Session struct {
	template Template
	baseline Template
	log      logrus.FieldLogger
}

// NewSession starts editing a blank template
func NewSession(log logrus.FieldLogger) *Session {
	return Load(blank(), log)
}

// Load starts editing an existing template
func Load(t Template, log logrus.FieldLogger) *Session {
	t = t.Clone()
	return &Session{template: t, baseline: t.Clone(), log: log}
}

// Template returns a copy of the current state
func (s *Session) Template() Template {
	return s.template.Clone()
}

func (s *Session) SetName(name string) {
	s.template.Name = strings.TrimSpace(name)
}

func (s *Session) SetLanguage(lang string) {
	s.template.Language = lang
}

func (s *Session) SetCategory(category string) {
	s.template.Category = category
}

// serialize runs text through the serializer. On failure the edit is
// dropped and the previous state stays in place.
func (s *Session) serialize(ct templateutil.ComponentType, text string, m templateutil.Mapping, subs []string) (*templateutil.Result, error) {
	res, err := templateutil.Serialize(ct, text, m, subs)
	if err != nil {
		s.log.WithError(err).WithField("component", ct).Warn("template edit discarded")
		return nil, err
	}
	return res, nil
}

func (s *Session) SetHeaderText(text string) error {
	if s.template.Header.Format != HeaderText {
		return errors.Wrapf(ErrHeaderFormat, "header format is %q", s.template.Header.Format)
	}
	res, err := s.serialize(templateutil.ComponentHeader, text, s.template.Header.Mappings, s.template.Header.Substitutions)
	if err != nil {
		return err
	}
	s.template.Header.Text = res.Text
	s.template.Header.Mappings = res.Mappings
	s.template.Header.Substitutions = res.Substitutions
	return nil
}

func (s *Session) SetBodyText(text string) error {
	res, err := s.serialize(templateutil.ComponentBody, text, s.template.Body.Mappings, s.template.Body.Substitutions)
	if err != nil {
		return err
	}
	s.template.Body.Text = res.Text
	s.template.Body.Mappings = res.Mappings
	s.template.Body.Substitutions = res.Substitutions
	return nil
}

func (s *Session) SetFooterText(text string) error {
	res, err := s.serialize(templateutil.ComponentFooter, text, nil, nil)
	if err != nil {
		return err
	}
	s.template.Footer.Text = res.Text
	return nil
}

// SetHeaderFormat switches the header kind. Text state is cleared for
// non-text formats and media state for everything else.
func (s *Session) SetHeaderFormat(f HeaderFormat) error {
	if !f.valid() {
		return errors.Wrapf(ErrHeaderFormat, "unknown format %q", f)
	}
	h := &s.template.Header
	h.Format = f
	if f != HeaderText {
		h.Text = ""
		h.Mappings = templateutil.Mapping{}
		h.Substitutions = []string{}
	}
	if !f.IsMedia() {
		h.MediaHandle = ""
		h.MediaName = ""
	}
	return nil
}

// AttachHeaderMedia records the provider handle of an uploaded sample
func (s *Session) AttachHeaderMedia(handle, name string) error {
	if !s.template.Header.Format.IsMedia() {
		return errors.Wrapf(ErrHeaderFormat, "header format is %q", s.template.Header.Format)
	}
	s.template.Header.MediaHandle = handle
	s.template.Header.MediaName = name
	return nil
}

func (s *Session) component(t Target) (templateutil.Mapping, []string, error) {
	switch t.Component {
	case templateutil.ComponentHeader:
		return s.template.Header.Mappings, s.template.Header.Substitutions, nil
	case templateutil.ComponentBody:
		return s.template.Body.Mappings, s.template.Body.Substitutions, nil
	case templateutil.ComponentButton:
		if t.Button < 0 || t.Button >= len(s.template.Buttons) {
			return nil, nil, errors.Wrapf(ErrNoSuchButton, "index %d", t.Button)
		}
		b := s.template.Buttons[t.Button]
		return b.Mappings, b.Substitutions, nil
	}
	return nil, nil, errors.Wrapf(templateutil.ErrUnknownComponent, "%q has no variables", t.Component)
}

// SetMapping assigns a catalogue variable to placeholder key ("1".."k").
// An empty name clears the assignment.
func (s *Session) SetMapping(t Target, key, name string) error {
	if name != "" && !templateutil.IsKnownVariable(name) {
		return errors.Wrapf(ErrUnknownVariable, "%q", name)
	}
	m, _, err := s.component(t)
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return errors.Wrapf(ErrNoSuchPlaceholder, "%s {{%s}}", t.Component, key)
	}

	updated := cloneMapping(m)
	updated[key] = name
	s.setComponentMapping(t, updated)
	return nil
}

// SetSubstitution sets the example value for the zero-based placeholder index
func (s *Session) SetSubstitution(t Target, index int, value string) error {
	_, subs, err := s.component(t)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(subs) {
		return errors.Wrapf(ErrNoSuchPlaceholder, "%s example %d", t.Component, index)
	}

	updated := cloneStrings(subs)
	updated[index] = value
	s.setComponentSubstitutions(t, updated)
	return nil
}

func (s *Session) setComponentMapping(t Target, m templateutil.Mapping) {
	switch t.Component {
	case templateutil.ComponentHeader:
		s.template.Header.Mappings = m
	case templateutil.ComponentBody:
		s.template.Body.Mappings = m
	case templateutil.ComponentButton:
		s.template.Buttons[t.Button].Mappings = m
	}
}

func (s *Session) setComponentSubstitutions(t Target, subs []string) {
	switch t.Component {
	case templateutil.ComponentHeader:
		s.template.Header.Substitutions = subs
	case templateutil.ComponentBody:
		s.template.Body.Substitutions = subs
	case templateutil.ComponentButton:
		s.template.Buttons[t.Button].Substitutions = subs
	}
}

func (s *Session) countButtons(bt ButtonType) int {
	n := 0
	for _, b := range s.template.Buttons {
		if b.Type == bt {
			n++
		}
	}
	return n
}

// AddButton appends b at the end of its group so quick replies and
// call-to-action buttons never interleave. It returns the new index.
func (s *Session) AddButton(b Button) (int, error) {
	if len(s.template.Buttons) >= MaxButtons {
		return -1, errors.Wrapf(ErrButtonLimit, "at most %d buttons", MaxButtons)
	}
	limits := map[ButtonType]int{
		ButtonURL:      MaxURLButtons,
		ButtonPhone:    MaxPhoneButtons,
		ButtonCopyCode: MaxCopyCodeButtons,
	}
	switch b.Type {
	case ButtonQuickReply:
	case ButtonURL, ButtonPhone, ButtonCopyCode:
		if s.countButtons(b.Type) >= limits[b.Type] {
			return -1, errors.Wrapf(ErrButtonLimit, "at most %d %s buttons", limits[b.Type], b.Type)
		}
	default:
		return -1, errors.Errorf("unknown button type %q", b.Type)
	}
	if templateutil.TextLength(b.Text) > templateutil.ButtonTextLimit {
		return -1, errors.Wrapf(templateutil.ErrTextTooLong, "button text allows %d characters", templateutil.ButtonTextLimit)
	}

	nb := Button{Type: b.Type, Text: b.Text, PhoneNumber: b.PhoneNumber, Mappings: templateutil.Mapping{}, Substitutions: []string{}}
	if b.Type == ButtonURL && b.URL != "" {
		res, err := s.serialize(templateutil.ComponentButton, b.URL, nil, b.Substitutions)
		if err != nil {
			return -1, err
		}
		nb.URL, nb.Mappings, nb.Substitutions = res.Text, res.Mappings, res.Substitutions
	}

	idx := len(s.template.Buttons)
	for i := len(s.template.Buttons) - 1; i >= 0; i-- {
		if s.template.Buttons[i].Type.IsCallToAction() == nb.Type.IsCallToAction() {
			idx = i + 1
			break
		}
	}

	buttons := make([]Button, 0, len(s.template.Buttons)+1)
	buttons = append(buttons, s.template.Buttons[:idx]...)
	buttons = append(buttons, nb)
	buttons = append(buttons, s.template.Buttons[idx:]...)
	s.template.Buttons = buttons
	return idx, nil
}

func (s *Session) RemoveButton(i int) error {
	if i < 0 || i >= len(s.template.Buttons) {
		return errors.Wrapf(ErrNoSuchButton, "index %d", i)
	}
	buttons := make([]Button, 0, len(s.template.Buttons)-1)
	buttons = append(buttons, s.template.Buttons[:i]...)
	buttons = append(buttons, s.template.Buttons[i+1:]...)
	s.template.Buttons = buttons
	return nil
}

func (s *Session) SetButtonText(i int, text string) error {
	if i < 0 || i >= len(s.template.Buttons) {
		return errors.Wrapf(ErrNoSuchButton, "index %d", i)
	}
	if templateutil.TextLength(text) > templateutil.ButtonTextLimit {
		return errors.Wrapf(templateutil.ErrTextTooLong, "button text allows %d characters", templateutil.ButtonTextLimit)
	}
	s.template.Buttons[i].Text = text
	return nil
}

// SetButtonURL edits a URL button; the URL may carry one placeholder
func (s *Session) SetButtonURL(i int, url string) error {
	if i < 0 || i >= len(s.template.Buttons) {
		return errors.Wrapf(ErrNoSuchButton, "index %d", i)
	}
	b := &s.template.Buttons[i]
	if b.Type != ButtonURL {
		return errors.Errorf("button %d is %s, not URL", i, b.Type)
	}
	res, err := s.serialize(templateutil.ComponentButton, url, b.Mappings, b.Substitutions)
	if err != nil {
		return err
	}
	b.URL, b.Mappings, b.Substitutions = res.Text, res.Mappings, res.Substitutions
	return nil
}

func (s *Session) SetButtonPhone(i int, phone string) error {
	if i < 0 || i >= len(s.template.Buttons) {
		return errors.Wrapf(ErrNoSuchButton, "index %d", i)
	}
	b := &s.template.Buttons[i]
	if b.Type != ButtonPhone {
		return errors.Errorf("button %d is %s, not PHONE_NUMBER", i, b.Type)
	}
	if !templateutil.IsValidPhoneNumber(phone) {
		return errors.Errorf("invalid phone number %q", phone)
	}
	b.PhoneNumber = phone
	return nil
}

// Changes returns the nested diff between the loaded state and the current one
func (s *Session) Changes() map[string]any {
	a, errA := templateutil.ToMap(s.baseline)
	b, errB := templateutil.ToMap(s.template)
	if errA != nil || errB != nil {
		s.log.WithError(errors.Errorf("%v / %v", errA, errB)).Error("template diff failed")
		return map[string]any{}
	}
	return templateutil.FindDifferences(a, b)
}

// HasChanges drives the Save/Reset buttons
func (s *Session) HasChanges() bool {
	return len(s.Changes()) > 0
}

// Reset returns to the loaded state
func (s *Session) Reset() {
	s.template = s.baseline.Clone()
}

// MarkSaved makes the current state the new baseline
func (s *Session) MarkSaved() {
	s.baseline = s.template.Clone()
}

// ValidationError lists everything preventing a submit
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "template invalid: " + strings.Join(e.Problems, "; ")
}

// Validate checks the template is complete enough for provider review
func (s *Session) Validate() error {
	return Validate(s.template)
}

func Validate(t Template) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !templateNamePattern.MatchString(t.Name) {
		add("name must be lowercase letters, digits and underscores")
	}
	if t.Language == "" {
		add("language is required")
	}
	switch t.Category {
	case CategoryMarketing, CategoryUtility, CategoryAuthentication:
	default:
		add("unknown category %q", t.Category)
	}

	switch {
	case t.Header.Format == HeaderText && strings.TrimSpace(t.Header.Text) == "":
		add("header text is required")
	case t.Header.Format.IsMedia() && t.Header.MediaHandle == "":
		add("header %s sample is required", strings.ToLower(string(t.Header.Format)))
	}
	if t.Header.Format == HeaderText {
		checkText(templateutil.ComponentHeader, t.Header.Text, t.Header.Substitutions, "header", add)
	}
	checkExamples(t.Header.Substitutions, "header", add)

	if strings.TrimSpace(t.Body.Text) == "" {
		add("body text is required")
	}
	checkText(templateutil.ComponentBody, t.Body.Text, t.Body.Substitutions, "body", add)
	checkExamples(t.Body.Substitutions, "body", add)
	checkText(templateutil.ComponentFooter, t.Footer.Text, nil, "footer", add)

	for i, b := range t.Buttons {
		label := "button " + strconv.Itoa(i+1)
		if strings.TrimSpace(b.Text) == "" {
			add("%s text is required", label)
		}
		switch b.Type {
		case ButtonURL:
			if b.URL == "" {
				add("%s url is required", label)
			}
			checkText(templateutil.ComponentButton, b.URL, b.Substitutions, label+" url", add)
			checkExamples(b.Substitutions, label, add)
		case ButtonPhone:
			if !templateutil.IsCompletePhoneNumber(b.PhoneNumber) {
				add("%s phone number is invalid", label)
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// checkText rejects text the serializer would change: too long, too many
// placeholders, or placeholders not numbered {{1}}..{{k}} in order. The
// example list must have one slot per placeholder.
func checkText(ct templateutil.ComponentType, text string, subs []string, label string, add func(string, ...interface{})) {
	res, err := templateutil.Serialize(ct, text, nil, subs)
	if errors.Is(err, templateutil.ErrTextTooLong) {
		add("%s text is too long", label)
		return
	}
	if err != nil {
		add("%s: %v", label, err)
		return
	}

	n := templateutil.CountPlaceholders(text)
	limit, _ := templateutil.PlaceholderLimit(ct)
	switch {
	case limit == 0 && n > 0:
		add("%s cannot contain placeholders", label)
		return
	case limit != templateutil.Unlimited && n > limit:
		add("%s allows at most %d placeholder", label, limit)
		return
	case res.Text != text:
		add("%s placeholders must be numbered {{1}} to {{%d}} in order", label, n)
	}
	if len(subs) != n {
		add("%s needs %d examples, has %d", label, n, len(subs))
	}
}

func checkExamples(subs []string, label string, add func(string, ...interface{})) {
	for i, v := range subs {
		if strings.TrimSpace(v) == "" {
			add("%s example for {{%d}} is required", label, i+1)
		}
	}
}

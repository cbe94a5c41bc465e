package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/logger"
)

type FeedbackAPI interface {
	SubmitFeedback(ctx context.Context, fb domain.Feedback) (domain.FeedbackAck, error)
}

// MessageLog resolves message ids against the conversation log.
type MessageLog interface {
	Message(id string) (domain.Message, bool)
}

type SessionSource interface {
	GetOrCreate(ctx context.Context) (domain.Session, error)
}

// Notifier shows transient notices such as toasts.
type Notifier interface {
	Notify(text string)
}

type NotifierFunc func(text string)

func (f NotifierFunc) Notify(text string) { f(text) }

// FeedbackForm is the state of the detailed feedback modal.
type FeedbackForm struct {
	Open       bool
	MessageID  string
	Rating     int
	Text       string
	Error      string
	Submitting bool
}

// FeedbackCorrelator ties ratings to assistant messages of the current
// session. Feedback never alters the conversation log.
type FeedbackCorrelator struct {
	api      FeedbackAPI
	log      MessageLog
	sessions SessionSource
	locales  LocaleStore
	notifier Notifier
	logger   *logger.Logger
	now      func() time.Time

	mu   sync.Mutex
	form FeedbackForm
}

type FeedbackOption func(*FeedbackCorrelator)

func WithNotifier(n Notifier) FeedbackOption {
	return func(f *FeedbackCorrelator) {
		if n != nil {
			f.notifier = n
		}
	}
}

func WithFeedbackLogger(l *logger.Logger) FeedbackOption {
	return func(f *FeedbackCorrelator) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFeedbackCorrelator(api FeedbackAPI, log MessageLog, sessions SessionSource, locales LocaleStore, opts ...FeedbackOption) (*FeedbackCorrelator, error) {
	if api == nil {
		return nil, errors.New("usecase: feedback api must not be nil")
	}
	if log == nil {
		return nil, errors.New("usecase: message log must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session source must not be nil")
	}
	if locales == nil {
		return nil, errors.New("usecase: locale store must not be nil")
	}
	f := &FeedbackCorrelator{
		api:      api,
		log:      log,
		sessions: sessions,
		locales:  locales,
		notifier: NotifierFunc(func(string) {}),
		logger:   logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FeedbackCorrelator) eligible(messageID string) error {
	m, ok := f.log.Message(strings.TrimSpace(messageID))
	if !ok {
		return validationError("unknown_message")
	}
	if !m.FeedbackEligible() {
		return validationError("message_not_rateable")
	}
	return nil
}

// Rate sends quick feedback for messageID. Ineligible messages and
// out-of-range ratings are rejected before any request is made.
func (f *FeedbackCorrelator) Rate(ctx context.Context, messageID string, rating int) error {
	if err := f.eligible(messageID); err != nil {
		return err
	}
	if !domain.ValidRating(rating) {
		return validationError("rating_out_of_range")
	}
	if err := f.send(ctx, strings.TrimSpace(messageID), rating, ""); err != nil {
		f.notifier.Notify(f.locales.T(locale.KeyFeedbackFailed))
		return err
	}
	f.notifier.Notify(f.locales.T(locale.KeyFeedbackThanks))
	return nil
}

func (f *FeedbackCorrelator) send(ctx context.Context, messageID string, rating int, text string) error {
	sess, err := f.sessions.GetOrCreate(ctx)
	if err != nil {
		return newError(ErrorInternal, "session_unavailable", err)
	}
	fb := domain.Feedback{
		SessionID:   sess.ID,
		MessageID:   messageID,
		Rating:      rating,
		Text:        text,
		SubmittedAt: f.now(),
	}
	if _, err := f.api.SubmitFeedback(ctx, fb); err != nil {
		f.logger.Warn("usecase: feedback submission failed",
			"session_id", sess.ID, "message_id", messageID, "code", string(Classify(err)), "err", err)
		return remoteError("feedback_failed", err)
	}
	return nil
}

// OpenDetailed opens the feedback form for messageID.
func (f *FeedbackCorrelator) OpenDetailed(messageID string) error {
	if err := f.eligible(messageID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form = FeedbackForm{Open: true, MessageID: strings.TrimSpace(messageID)}
	return nil
}

func (f *FeedbackCorrelator) SetRating(rating int) error {
	if !domain.ValidRating(rating) {
		return validationError("rating_out_of_range")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.form.Open {
		return validationError("form_closed")
	}
	f.form.Rating = rating
	f.form.Error = ""
	return nil
}

func (f *FeedbackCorrelator) SetText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.form.Open {
		f.form.Text = text
	}
}

func (f *FeedbackCorrelator) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form = FeedbackForm{}
}

func (f *FeedbackCorrelator) Form() FeedbackForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Submit sends the open form. Without a rating it is rejected locally. A
// server failure leaves the form open with an inline error so it can be
// resubmitted; success closes it.
func (f *FeedbackCorrelator) Submit(ctx context.Context) error {
	f.mu.Lock()
	form := f.form
	switch {
	case !form.Open:
		f.mu.Unlock()
		return validationError("form_closed")
	case form.Submitting:
		f.mu.Unlock()
		return validationError("form_submitting")
	case !domain.ValidRating(form.Rating):
		f.form.Error = f.locales.T(locale.KeyFeedbackRatingRequired)
		f.mu.Unlock()
		return validationError("rating_required")
	}
	f.form.Submitting = true
	f.form.Error = ""
	f.mu.Unlock()

	err := f.send(ctx, form.MessageID, form.Rating, strings.TrimSpace(form.Text))

	f.mu.Lock()
	if err != nil {
		f.form.Submitting = false
		f.form.Error = f.locales.T(locale.KeyFeedbackFailed)
		f.mu.Unlock()
		return err
	}
	f.form = FeedbackForm{}
	f.mu.Unlock()
	f.notifier.Notify(f.locales.T(locale.KeyFeedbackThanks))
	return nil
}

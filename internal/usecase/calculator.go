package usecase

import (
	"context"
	"errors"
	"sync"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/logger"
)

type CalculationAPI interface {
	RunCalculation(ctx context.Context, in domain.CalculationInput) (domain.CalculationResult, error)
}

// ModalState reports whether the calculator modal is open. Conversation
// implements it through the calculator quick action.
type ModalState interface {
	CalculatorOpen() bool
}

// Calculator drives the EITC estimate modal. Eligibility is decided by the
// answering service only.
type Calculator struct {
	api     CalculationAPI
	locales LocaleStore
	log     *logger.Logger
	modal   ModalState

	mu      sync.Mutex
	input   domain.CalculationInput
	result  *domain.CalculationResult
	errText string
}

type CalculatorOption func(*Calculator)

// WithModal makes Submit require the modal to be open.
func WithModal(m ModalState) CalculatorOption {
	return func(c *Calculator) { c.modal = m }
}

func NewCalculator(api CalculationAPI, locales LocaleStore, l *logger.Logger, opts ...CalculatorOption) (*Calculator, error) {
	if api == nil {
		return nil, errors.New("usecase: calculation api must not be nil")
	}
	if locales == nil {
		return nil, errors.New("usecase: locale store must not be nil")
	}
	if l == nil {
		l = logger.NewNop()
	}
	c := &Calculator{api: api, locales: locales, log: l}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Calculator) SetInput(in domain.CalculationInput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = in
}

func (c *Calculator) Input() domain.CalculationInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Submit runs the calculation for the current input. On failure the previous
// result is kept and ErrorText reports an inline message. With a modal
// installed, Submit is rejected without a request while the modal is closed.
func (c *Calculator) Submit(ctx context.Context) (domain.CalculationResult, error) {
	if c.modal != nil && !c.modal.CalculatorOpen() {
		return domain.CalculationResult{}, validationError("calculator_closed")
	}
	in := c.Input()
	res, err := c.api.RunCalculation(ctx, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errText = c.locales.T(locale.KeyCalculatorFailed)
		if code := Classify(err); code == ErrorClient {
			c.log.Info("usecase: calculation rejected", "filing_status", in.FilingStatus, "err", err)
		} else {
			c.log.Warn("usecase: calculation failed", "code", string(code), "err", err)
		}
		return domain.CalculationResult{}, remoteError("calculation_failed", err)
	}
	c.errText = ""
	c.result = &res
	return res, nil
}

func (c *Calculator) Result() (domain.CalculationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return domain.CalculationResult{}, false
	}
	return *c.result, true
}

// ErrorText returns the inline message of the last failed submission.
func (c *Calculator) ErrorText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errText
}

// Summary is the localized one-line verdict for a result.
func (c *Calculator) Summary(res domain.CalculationResult) string {
	if res.Eligible {
		return c.locales.T(locale.KeyCalculatorEligible)
	}
	return c.locales.T(locale.KeyCalculatorNotEligible)
}

func (c *Calculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = domain.CalculationInput{}
	c.result = nil
	c.errText = ""
}

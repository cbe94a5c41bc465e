package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"eitc-assistant/internal/domain"
	"eitc-assistant/internal/integrations/assistant"
	"eitc-assistant/internal/locale"
	"eitc-assistant/internal/usecase"
)

const helpText = `commands:
  <text>                         ask a question
  <empty line>                   send the text filled in by /quick
  /quick <key>                   eligibility | income_limits | qualifying_child | how_to_claim | calculator
  /lang <code>                   switch language (en, es)
  /new                           start a new session
  /history                       show the server-side history of this session
  /rate <1-5>                    rate the last answer
  /feedback <1-5> [text]         rate the last answer with a comment
  /feedback-retry                resend a detailed rating that failed
  /calc <status> <agi> <earned> [investment] [children] [ages]
                                 estimate the credit in the open calculator,
                                 ages comma separated
  /calc close                    close the calculator
  /login <email> <password>      sign in to the admin area
  /logout
  /stats [days]
  /conversations [page]
  /feedback-report [page] [rating]
  /health                        public health probes
  /system                        admin system health
  /quit`

type repl struct {
	out      io.Writer
	conv     *usecase.Conversation
	locales  usecase.LocaleStore
	feedback *usecase.FeedbackCorrelator
	calc     *usecase.Calculator
	admin    *usecase.AdminConsole
}

func newREPL(out io.Writer, conv *usecase.Conversation, locales usecase.LocaleStore) *repl {
	return &repl{out: out, conv: conv, locales: locales}
}

func (r *repl) notice(text string) {
	fmt.Fprintf(r.out, "* %s\n", text)
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// printLatest prints the newest log entry.
func (r *repl) printLatest() {
	msgs := r.conv.Messages()
	if len(msgs) > 0 {
		r.printf("assistant> %s\n", msgs[len(msgs)-1].Content)
	}
}

func (r *repl) loop(ctx context.Context, in *bufio.Scanner) error {
	r.printLatest()
	r.printf("(type /help for commands)\n")
	for {
		r.printf("> ")
		if !in.Scan() {
			return in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		quit, err := r.dispatch(ctx, in.Text())
		if err != nil {
			r.notice(describe(err))
		}
		if quit {
			return nil
		}
	}
}

// dispatch runs one input line. It reports whether the loop should stop.
func (r *repl) dispatch(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		if r.conv.Input() == "" {
			return false, nil
		}
		return false, r.send(ctx, "")
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	cmd, args := splitCommand(line)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.printf("%s\n", helpText)
	case "/quick":
		return false, r.quick(args)
	case "/lang":
		if len(args) != 1 {
			return false, errUsage("/lang <code>")
		}
		if err := r.conv.SelectLocale(ctx, args[0]); err != nil {
			return false, err
		}
		r.printLatest()
	case "/new":
		sess, err := r.conv.NewSession(ctx)
		if err != nil {
			return false, err
		}
		r.notice(fmt.Sprintf("%s (%s)", r.locales.T(locale.KeyNewSession), sess.ID))
		r.printLatest()
	case "/history":
		return false, r.history(ctx)
	case "/rate":
		return false, r.rate(ctx, args)
	case "/feedback":
		return false, r.detailedFeedback(ctx, args)
	case "/feedback-retry":
		return false, r.retryFeedback(ctx)
	case "/calc":
		return false, r.calculate(ctx, args)
	case "/login":
		if len(args) != 2 {
			return false, errUsage("/login <email> <password>")
		}
		if err := r.admin.Login(ctx, args[0], args[1]); err != nil {
			return false, err
		}
		r.notice("signed in")
	case "/logout":
		return false, r.admin.Logout(ctx)
	case "/stats":
		return false, r.stats(ctx, args)
	case "/conversations":
		return false, r.conversations(ctx, args)
	case "/feedback-report":
		return false, r.feedbackReport(ctx, args)
	case "/health":
		return false, r.health(ctx)
	case "/system":
		return false, r.system(ctx)
	default:
		return false, errUsage("/help")
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, text string) error {
	r.printf("  %s\n", r.locales.T(locale.KeyThinking))
	var (
		msg domain.Message
		err error
	)
	if text == "" {
		msg, err = r.conv.SubmitInput(ctx)
	} else {
		msg, err = r.conv.Submit(ctx, text)
	}
	if msg.ID == "" {
		return err
	}
	// A failed exchange already carries its text in the log.
	r.printf("assistant> %s\n", msg.Content)
	if !msg.IsError {
		r.printf("  %s (/rate 1-5)\n", r.locales.T(locale.KeyFeedbackPrompt))
	}
	return nil
}

func (r *repl) quick(args []string) error {
	if len(args) != 1 {
		return errUsage("/quick <key>")
	}
	if err := r.conv.QuickAction(args[0]); err != nil {
		return err
	}
	if strings.EqualFold(args[0], usecase.QuickCalculator) {
		r.printf("%s: /calc <status> <agi> <earned> [investment] [children] [ages]\n", r.locales.T(locale.KeyCalculatorTitle))
		return nil
	}
	r.printf("  %s\n  (press enter to send)\n", r.conv.Input())
	return nil
}

func (r *repl) history(ctx context.Context) error {
	turns, err := r.conv.LoadHistory(ctx)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		r.notice("no history yet")
	}
	for _, t := range turns {
		r.printf("[%s %s]\n  you> %s\n  assistant> %s\n", t.Timestamp.Format("2006-01-02 15:04"), t.Language, t.UserMessage, t.AssistantResponse)
	}
	return nil
}

func (r *repl) lastAnswer() (string, error) {
	last, ok := r.conv.LastAssistantMessage()
	if !ok || !last.FeedbackEligible() {
		return "", errors.New(r.locales.T(locale.KeyFeedbackNotAllowed))
	}
	return last.ID, nil
}

func (r *repl) rate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage("/rate <1-5>")
	}
	rating, err := strconv.Atoi(args[0])
	if err != nil {
		return errUsage("/rate <1-5>")
	}
	id, err := r.lastAnswer()
	if err != nil {
		return err
	}
	return r.feedback.Rate(ctx, id, rating)
}

func (r *repl) detailedFeedback(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage("/feedback <1-5> [text]")
	}
	rating, err := strconv.Atoi(args[0])
	if err != nil {
		return errUsage("/feedback <1-5> [text]")
	}
	id, err := r.lastAnswer()
	if err != nil {
		return err
	}
	if err := r.feedback.OpenDetailed(id); err != nil {
		return err
	}
	if err := r.feedback.SetRating(rating); err != nil {
		r.feedback.Cancel()
		return err
	}
	r.feedback.SetText(strings.Join(args[1:], " "))
	return r.submitFeedback(ctx)
}

// retryFeedback resubmits the detailed form left open by a failed send.
func (r *repl) retryFeedback(ctx context.Context) error {
	if !r.feedback.Form().Open {
		return errUsage("/feedback <1-5> [text]")
	}
	return r.submitFeedback(ctx)
}

// submitFeedback sends the open form. A failed send keeps the form open for
// /feedback-retry.
func (r *repl) submitFeedback(ctx context.Context) error {
	if err := r.feedback.Submit(ctx); err != nil {
		if form := r.feedback.Form(); form.Error != "" {
			r.notice(form.Error)
		}
		if r.feedback.Form().Open {
			r.notice("/feedback-retry to resend")
		}
		return err
	}
	return nil
}

func (r *repl) calculate(ctx context.Context, args []string) error {
	if len(args) == 1 && strings.EqualFold(args[0], "close") {
		r.conv.CloseCalculator()
		r.calc.Reset()
		return nil
	}
	if !r.conv.CalculatorOpen() {
		r.notice("/quick calculator opens the calculator")
	}
	in, err := parseCalculation(args)
	if err != nil {
		return err
	}
	r.calc.SetInput(in)
	res, err := r.calc.Submit(ctx)
	if err != nil {
		if text := r.calc.ErrorText(); text != "" {
			r.notice(text)
		}
		return err
	}
	r.printf("%s\n", r.calc.Summary(res))
	if res.Eligible {
		r.printf("  credit: $%.2f (tax year %d)\n", res.CreditAmount, res.TaxYear)
	}
	for _, line := range res.Explanation {
		r.printf("  - %s\n", line)
	}
	return nil
}

func (r *repl) stats(ctx context.Context, args []string) error {
	days := 7
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return errUsage("/stats [days]")
		}
		days = n
	}
	s, err := r.admin.Stats(ctx, days)
	if err != nil {
		return err
	}
	r.printf("last %d days: %d conversations (%d total), %d sessions\n", s.PeriodDays, s.RecentConversations, s.TotalConversations, s.UniqueSessions)
	r.printf("feedback: %d ratings, average %.2f\n", s.Feedback.TotalFeedback, s.Feedback.AverageRating)
	for code, n := range s.LanguageDistribution {
		r.printf("  %s: %d\n", code, n)
	}
	return nil
}

func (r *repl) conversations(ctx context.Context, args []string) error {
	q := assistant.ConversationQuery{Page: 1}
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errUsage("/conversations [page]")
		}
		q.Page = n
	}
	page, err := r.admin.Conversations(ctx, q)
	if err != nil {
		return err
	}
	for _, c := range page.Conversations {
		r.printf("#%d %s [%s] %s\n", c.ID, c.Timestamp, c.Language, c.UserMessage)
	}
	r.printf("page %d of %d (%d total)\n", page.Pagination.Page, page.Pagination.Pages, page.Pagination.Total)
	return nil
}

func (r *repl) feedbackReport(ctx context.Context, args []string) error {
	q := assistant.FeedbackQuery{Page: 1}
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return errUsage("/feedback-report [page] [rating]")
		}
		if i == 0 {
			q.Page = n
		} else {
			q.Rating = n
		}
	}
	page, err := r.admin.Feedback(ctx, q)
	if err != nil {
		return err
	}
	for _, f := range page.Feedback {
		r.printf("#%d %s rating=%d %s\n", f.ID, f.Timestamp, f.Rating, f.FeedbackText)
	}
	r.printf("page %d of %d (%d total)\n", page.Pagination.Page, page.Pagination.Pages, page.Pagination.Total)
	return nil
}

func (r *repl) health(ctx context.Context) error {
	rep, err := r.admin.Health(ctx)
	if err != nil {
		return err
	}
	r.printf("service: %s %s (%s)\n", rep.Summary.Status, rep.Summary.Version, rep.Summary.Environment)
	for name, h := range map[string]domain.Health{"detailed": rep.Detailed, "ready": rep.Ready, "live": rep.Live} {
		r.printf("  %s: %s", name, h.Status)
		if h.Error != "" {
			r.printf(" (%s)", h.Error)
		}
		r.printf("\n")
	}
	return nil
}

func (r *repl) system(ctx context.Context) error {
	h, err := r.admin.SystemHealth(ctx)
	if err != nil {
		return err
	}
	r.printf("database: %s\nllm: %s\nsafety filter: %s\nchecked: %s\n", h.Database.Status, h.LLMService.Status, h.SafetyFilter.Status, h.LastChecked)
	return nil
}

func splitCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	return strings.ToLower(fields[0]), fields[1:]
}

type usageError string

func errUsage(usage string) error { return usageError(usage) }

func (e usageError) Error() string { return "usage: " + string(e) }

// describe turns an error into a single line for the terminal.
func describe(err error) string {
	var ue usageError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	var uerr *usecase.Error
	if errors.As(err, &uerr) {
		if uerr.Err != nil {
			return fmt.Sprintf("%s: %s (%v)", uerr.Code, uerr.Reason, uerr.Err)
		}
		return fmt.Sprintf("%s: %s", uerr.Code, uerr.Reason)
	}
	return err.Error()
}

// parseCalculation reads "<status> <agi> <earned> [investment] [children] [ages]".
func parseCalculation(args []string) (domain.CalculationInput, error) {
	usage := errUsage("/calc <status> <agi> <earned> [investment] [children] [ages]")
	if len(args) < 3 || len(args) > 6 {
		return domain.CalculationInput{}, usage
	}
	in := domain.CalculationInput{FilingStatus: strings.ToLower(args[0]), ChildrenAges: []int{}}
	amounts := []*float64{&in.AdjustedGrossIncome, &in.EarnedIncome, &in.InvestmentIncome}
	for i, dst := range amounts {
		if i+1 >= len(args) {
			break
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(args[i+1], ",", ""), 64)
		if err != nil {
			return domain.CalculationInput{}, usage
		}
		*dst = v
	}
	if len(args) > 4 {
		n, err := strconv.Atoi(args[4])
		if err != nil {
			return domain.CalculationInput{}, usage
		}
		in.QualifyingChildren = n
	}
	if len(args) > 5 {
		for _, a := range strings.Split(args[5], ",") {
			age, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				return domain.CalculationInput{}, usage
			}
			in.ChildrenAges = append(in.ChildrenAges, age)
		}
	}
	return in, nil
}

// Package mailer registers the email jobs run by the background dispatcher:
// welcome and verification emails for newly created accounts.
package mailer

import (
	"context"
	"fmt"
	"sync"

	"herald/core/events"
	"herald/core/jobs"
	"herald/core/logger"
	"herald/core/utils"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

// Job names handled by the module.
const (
	WelcomeEmailJob      = "welcome_email"
	VerificationEmailJob = "verification_email"
)

// Message is the payload of every mailer job.
type Message struct {
	To       string `mapstructure:"to"`
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
}

// Config holds configuration settings specific to the mailer module.
type Config struct {
	From          string `mapstructure:"from"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	// FailFirst makes each email fail this many times before it is sent.
	FailFirst int `mapstructure:"fail_first"`
}

// Email is a rendered message ready for delivery.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers rendered emails.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// LogSender writes emails to the application log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, email Email) error {
	logger.Info(ctx, "Email sent",
		zap.String("from", email.From),
		zap.String("to", email.To),
		zap.String("subject", email.Subject))
	return nil
}

// Module renders and sends emails for dispatcher jobs.
type Module struct {
	mu       sync.Mutex
	config   Config
	sender   Sender
	attempts map[string]int
	failed   map[string]int

	eventBus events.Bus
	cancel   func()
	done     chan struct{}
}

// NewModule creates a mailer that delivers through sender. A nil sender logs.
func NewModule(sender Sender) *Module {
	if sender == nil {
		sender = LogSender{}
	}
	return &Module{
		config:   Config{From: "no-reply@localhost"},
		sender:   sender,
		attempts: make(map[string]int),
		failed:   make(map[string]int),
	}
}

// Name returns the unique name of the module.
func (m *Module) Name() string { return "mailer" }

// Configure decodes the module's settings block from the application config.
func (m *Module) Configure(cfg interface{}) error {
	if cfg == nil {
		return nil
	}

	var mailerCfg Config
	if err := mapstructure.Decode(cfg, &mailerCfg); err != nil {
		return fmt.Errorf("failed to decode mailer config: %w", err)
	}
	if mailerCfg.FailFirst < 0 {
		return fmt.Errorf("mailer fail_first must not be negative, got %d", mailerCfg.FailFirst)
	}
	if mailerCfg.From == "" {
		mailerCfg.From = m.config.From
	}

	m.mu.Lock()
	m.config = mailerCfg
	m.mu.Unlock()
	return nil
}

// Register adds the mailer's handlers to reg.
func (m *Module) Register(reg jobs.HandlerRegistry[Message]) error {
	if err := reg.RegisterHandler(WelcomeEmailJob, jobs.HandlerFunc[Message](m.sendWelcome)); err != nil {
		return fmt.Errorf("register %s: %w", WelcomeEmailJob, err)
	}
	if err := reg.RegisterHandler(VerificationEmailJob, jobs.HandlerFunc[Message](m.sendVerification)); err != nil {
		return fmt.Errorf("register %s: %w", VerificationEmailJob, err)
	}
	return nil
}

// SetEventBus provides the module with the dispatcher's event bus.
func (m *Module) SetEventBus(bus events.Bus) {
	m.eventBus = bus
}

// Start subscribes to permanent job failures so undeliverable emails are
// counted and reported.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eventBus == nil || m.cancel != nil {
		return nil
	}

	ch, cancel, err := m.eventBus.Subscribe(jobs.JobFailedEventType)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", jobs.JobFailedEventType, err)
	}
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.watchFailures(logger.WithComponentName(ctx, m.Name()), ch, m.done)
	return nil
}

// Stop cancels the failure subscription and waits for the watcher to exit.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Module) watchFailures(ctx context.Context, ch <-chan events.TypedEvent, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		jobEv, ok := ev.(jobs.JobEvent)
		if !ok || (jobEv.Name != WelcomeEmailJob && jobEv.Name != VerificationEmailJob) {
			continue
		}
		m.mu.Lock()
		m.failed[jobEv.Name]++
		m.mu.Unlock()
		logger.Error(ctx, "Email could not be delivered",
			zap.String("job", jobEv.Name),
			zap.String("job_id", jobEv.ID),
			zap.String("error", jobEv.Err))
	}
}

// Failed returns how many emails of the given job name failed permanently.
func (m *Module) Failed(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[name]
}

// SendWelcome enqueues a welcome email for a newly created account.
func SendWelcome(enq jobs.Enqueuer[Message], to, username string) error {
	return enq.Submit(WelcomeEmailJob, &Message{To: to, Username: username})
}

// SendVerification enqueues an email carrying an account verification token.
func SendVerification(enq jobs.Enqueuer[Message], to, username, token string) error {
	return enq.Submit(VerificationEmailJob, &Message{To: to, Username: username, Token: token})
}

func (m *Module) sendWelcome(ctx context.Context, msg *Message) error {
	if err := validate(msg, false); err != nil {
		return err
	}
	return m.deliver(ctx, WelcomeEmailJob, msg, "Welcome to herald",
		fmt.Sprintf("Hi %s,\n\nYour account is ready.\n", displayName(msg)))
}

func (m *Module) sendVerification(ctx context.Context, msg *Message) error {
	if err := validate(msg, true); err != nil {
		return err
	}
	return m.deliver(ctx, VerificationEmailJob, msg, "Verify your email address",
		fmt.Sprintf("Hi %s,\n\nYour verification code is %s.\n", displayName(msg), msg.Token))
}

func (m *Module) deliver(ctx context.Context, job string, msg *Message, subject, body string) error {
	m.mu.Lock()
	cfg := m.config
	key := job + "/" + msg.To
	m.attempts[key]++
	attempt := m.attempts[key]
	m.mu.Unlock()

	if attempt <= cfg.FailFirst {
		return jobs.NewProcessingError(
			fmt.Sprintf("%s to %s", job, msg.To),
			fmt.Errorf("simulated delivery failure %d of %d", attempt, cfg.FailFirst))
	}

	email := Email{From: cfg.From, To: msg.To, Subject: subject, Body: body}
	if cfg.SubjectPrefix != "" {
		email.Subject = cfg.SubjectPrefix + " " + subject
	}
	if err := m.sender.Send(ctx, email); err != nil {
		return jobs.NewProcessingError(fmt.Sprintf("%s to %s", job, msg.To), err)
	}
	return nil
}

func validate(msg *Message, needToken bool) error {
	if msg == nil {
		return jobs.NewProcessingError("missing email payload", nil)
	}
	if !utils.IsValidEmail(msg.To) {
		return jobs.NewProcessingError(fmt.Sprintf("invalid recipient %q", msg.To), nil)
	}
	if needToken && msg.Token == "" {
		return jobs.NewProcessingError("missing verification token", nil)
	}
	return nil
}

func displayName(msg *Message) string {
	if msg.Username != "" {
		return msg.Username
	}
	return msg.To
}

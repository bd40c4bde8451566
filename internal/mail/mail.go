package mail

import (
	"context"
	"time"

	"pairchat/internal/config"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

// Message 是一封待发送的邮件，Text 与 HTML 至少有一个非空。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender 通过 gomail 投递邮件，每次发送单独建立连接。
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   from,
	}
}

func (s *SMTPSender) build(m Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", s.from)
	gm.SetHeader("To", m.To)
	gm.SetHeader("Subject", m.Subject)
	switch {
	case m.Text != "" && m.HTML != "":
		gm.SetBody("text/plain", m.Text)
		gm.AddAlternative("text/html", m.HTML)
	case m.HTML != "":
		gm.SetBody("text/html", m.HTML)
	default:
		gm.SetBody("text/plain", m.Text)
	}
	return gm
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(s.build(m)) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender 只把邮件写进日志，未配置 SMTP 时使用。
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	log.Info().Str("to", m.To).Str("subject", m.Subject).Str("body", m.Text).Msg("email (log only; configure SMTP for real delivery)")
	return nil
}

// Enqueuer 把邮件交给后台队列异步投递。
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, m Message) error
}

// Mailer 组合模板与投递方式：验证码同步发送，欢迎邮件尽力而为。
type Mailer struct {
	sender Sender
	queue  Enqueuer
}

func NewMailer(sender Sender, queue Enqueuer) *Mailer {
	return &Mailer{sender: sender, queue: queue}
}

// SendOTP 同步发送验证码，失败直接返回给调用方。
func (m *Mailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	msg, err := otpMessage(to, code, ttl)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, msg)
}

// SendWelcome 不等待结果；有队列时入队，否则在后台直接发送。失败只记录日志。
func (m *Mailer) SendWelcome(ctx context.Context, to string) {
	msg, err := welcomeMessage(to)
	if err != nil {
		log.Warn().Err(err).Str("to", to).Msg("render welcome email failed")
		return
	}
	if m.queue != nil {
		if err := m.queue.EnqueueEmail(ctx, msg); err == nil {
			return
		}
		log.Warn().Str("to", to).Msg("enqueue welcome email failed, sending inline")
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.sender.Send(sendCtx, msg); err != nil {
			log.Warn().Err(err).Str("to", to).Msg("send welcome email failed")
		}
	}()
}

package smtpsource

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ordersync/backend/internal/domain"
	"ordersync/backend/internal/mailsource"
)

// Spool 是开发模式下的邮件源：通过 SMTP 接收邮件并缓存在内存里，
// 让同步管道在没有邮箱服务商 API 的环境下也能运行。
// 只接收邮件，不做投递，不充当中继。
type Spool struct {
	mu       sync.RWMutex
	messages []domain.RawMessage
	log      *zap.Logger
}

// NewSpool 创建内存邮件缓存。
func NewSpool(log *zap.Logger) *Spool {
	return &Spool{log: log}
}

// Search 在缓存中按时间窗口与主题关键词过滤邮件。
// 收件人地址即用户标识（开发约定），这里不做用户过滤。
func (s *Spool) Search(_ context.Context, _ string, query mailsource.Query) ([]domain.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RawMessage, 0)
	for _, msg := range s.messages {
		if msg.ReceivedAt.Before(query.Start) || msg.ReceivedAt.After(query.End) {
			continue
		}
		if !matchesKeywords(msg.Subject, query.Keywords) {
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}

// add 将解析后的邮件放入缓存。
func (s *Spool) add(msg domain.RawMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.log.Info("message spooled",
		zap.String("message_id", msg.MessageID),
		zap.String("subject", msg.Subject),
		zap.String("sender", msg.Sender),
	)
}

// matchesKeywords 判断主题是否命中任一关键词（不区分大小写）。
// 关键词为空时全部命中。
func matchesKeywords(subject string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lowered := strings.ToLower(subject)
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Backend 实现 go-smtp 的 Backend 接口，把收到的邮件写入 Spool。
type Backend struct {
	spool *Spool
}

// NewBackend 创建 SMTP Backend。
func NewBackend(spool *Spool) *Backend {
	return &Backend{spool: spool}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{spool: b.spool}, nil
}

type session struct {
	spool       *Spool
	fromAddress string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。开发缓存接受任意收件人。
func (s *session) Rcpt(_ string, _ *gosmtp.RcptOptions) error {
	return nil
}

// Data 接收邮件正文并解析入缓存。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	subject, body, sender := parseMessage(raw)
	if sender == "" {
		sender = s.fromAddress
	}

	s.spool.add(domain.RawMessage{
		MessageID:  uuid.NewString(),
		Subject:    subject,
		BodyText:   body,
		Sender:     sender,
		ReceivedAt: time.Now().UTC(),
	})
	return nil
}

// Reset 重置会话状态。
func (s *session) Reset() {
	s.fromAddress = ""
}

// Logout 结束会话。
func (s *session) Logout() error {
	return nil
}

// parseMessage 从原始邮件中提取主题、纯文本正文和发件人。
func parseMessage(raw []byte) (subject, body, sender string) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return "", string(raw), ""
	}

	subject = msg.Header.Get("Subject")
	if addr, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		sender = addr.Address
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		body = decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		return subject, body, sender
	}

	// 多部分邮件：取第一个 text/plain 部分
	reader := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		partType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if partType == "text/plain" || partType == "" {
			body = decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
			break
		}
	}
	return subject, body, sender
}

// decodeBody 按传输编码解码正文。
func decodeBody(r io.Reader, encoding string) string {
	if strings.EqualFold(encoding, "quoted-printable") {
		r = quotedprintable.NewReader(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

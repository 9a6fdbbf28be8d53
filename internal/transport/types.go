// Package transport defines the thin chat-platform contract the rest of
// the bot depends on. Adapters implement it; nothing else imports the
// platform SDK.
package transport

import "context"

// ChatTarget addresses either a broadcast chat or a single user DM
// (Telegram uses the user ID as the DM chat ID).
type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Message is one inbound text message.
type Message struct {
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// Document is an outbound file attachment (data export).
type Document struct {
	FileName string
	Caption  string
	Content  []byte
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	SendDocument(ctx context.Context, to ChatTarget, doc Document) error
}

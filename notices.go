package checkout

import (
	"sync"
	"time"

	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/types"
)

const maxNotices = 20

// NoticeBoard keeps the most recent buyer notices and logs each one.
type NoticeBoard struct {
	log logger.Logger
	now func() time.Time

	mu      sync.Mutex
	notices []types.Notice
}

func NewNoticeBoard(log logger.Logger) *NoticeBoard {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &NoticeBoard{log: log, now: time.Now}
}

func (b *NoticeBoard) Notify(level types.NoticeLevel, message string) {
	b.log.Info("notice", map[string]any{"level": string(level), "message": message})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, types.Notice{Level: level, Message: message, At: b.now()})
	if n := len(b.notices); n > maxNotices {
		b.notices = append([]types.Notice(nil), b.notices[n-maxNotices:]...)
	}
}

// Recent returns the retained notices, oldest first.
func (b *NoticeBoard) Recent() []types.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Notice(nil), b.notices...)
}

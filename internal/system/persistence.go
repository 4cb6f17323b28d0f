package system

import (
	"context"
	"time"

	"github.com/manago/client/internal/core/event"
	coresys "github.com/manago/client/internal/core/system"
	"github.com/manago/client/internal/persist"
	"github.com/manago/client/internal/session"
	"go.uber.org/zap"
)

// PersistenceSystem keeps the local profile and chat log. Chat lines are
// batched and written every interval ticks; the profile is saved when the
// player enters the game. Phase 5 (Persist).
type PersistenceSystem struct {
	sess      *session.Session
	profiles  *persist.ProfileRepo
	chatLog   *persist.ChatLogRepo
	pending   []persist.ChatLine
	saveDue   bool
	tickCount int
	interval  int
	now       func() time.Time
	log       *zap.Logger
}

func NewPersistenceSystem(sess *session.Session, bus *event.Bus, profiles *persist.ProfileRepo, chatLog *persist.ChatLogRepo, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	s := &PersistenceSystem{
		sess:     sess,
		profiles: profiles,
		chatLog:  chatLog,
		interval: intervalTicks,
		now:      time.Now,
		log:      log,
	}
	event.Subscribe(bus, func(e event.ChatReceived) {
		s.pending = append(s.pending, persist.ChatLine{Channel: e.Channel, From: e.From, Text: e.Text, At: s.now()})
	})
	event.Subscribe(bus, func(e event.StateChanged) {
		if e.New == session.StateGame.String() {
			s.saveDue = true
		}
	})
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	if s.saveDue {
		s.saveDue = false
		s.SaveProfile()
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.FlushChat()
}

// SaveProfile records the current server, account and character.
func (s *PersistenceSystem) SaveProfile() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := persist.Profile{
		ServerHost: s.sess.Server.Host,
		ServerPort: s.sess.Server.Port,
		Username:   s.sess.Credentials.Username,
		Remember:   s.sess.Credentials.Remember,
	}
	if c, ok := s.sess.SelectedCharacter(); ok {
		p.Character = c.Name
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		s.log.Error("設定檔儲存失敗", zap.Error(err))
	}
}

// FlushChat writes the batched chat lines. Also called on shutdown.
func (s *PersistenceSystem) FlushChat() {
	if len(s.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.chatLog.Append(ctx, s.pending); err != nil {
		s.log.Error("聊天紀錄寫入失敗", zap.Error(err), zap.Int("lines", len(s.pending)))
		return
	}
	s.pending = s.pending[:0]
}

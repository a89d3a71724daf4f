package notifier

import (
	"fmt"

	"github.com/asaskevich/EventBus"
	botApi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jobtrack/autopilot/internal/events"
	"github.com/jobtrack/autopilot/internal/logger"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Telegram pushes automation alerts to the rule's owner. Delivery failures
// are logged and never feed back into orchestration.
type Telegram struct {
	api *botApi.BotAPI
	bus EventBus.Bus
}

func NewTelegram(token string, bus EventBus.Bus) (*Telegram, error) {

	api, err := botApi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Infof("Authorized on account %s", api.Self.UserName)

	err = botApi.SetLogger(log.StandardLogger())
	if err != nil {
		return nil, err
	}

	if bus == nil {
		return nil, errors.New("bus is nil")
	}

	notifier := &Telegram{api: api, bus: bus}

	if err = bus.Subscribe(events.RulePausedTopic, notifier.onRulePaused); err != nil {
		return nil, err
	}
	if err = bus.Subscribe(events.ApplicationAppliedTopic, notifier.onApplicationApplied); err != nil {
		return nil, err
	}

	return notifier, nil
}

func (t *Telegram) Stop() {
	_ = t.bus.Unsubscribe(events.RulePausedTopic, t.onRulePaused)
	_ = t.bus.Unsubscribe(events.ApplicationAppliedTopic, t.onApplicationApplied)
}

func (t *Telegram) onRulePaused(event events.RulePaused) {
	msg := botApi.NewMessage(event.Rule.UserID,
		fmt.Sprintf("Automation on %v is paused and needs your attention:\n%v", event.Rule.Board, event.Reason))
	if _, err := t.api.Send(msg); err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeTgApi).Errorf("error occured while sending message: %v", err)
	}
}

func (t *Telegram) onApplicationApplied(event events.ApplicationApplied) {
	msg := botApi.NewMessage(event.Rule.UserID,
		fmt.Sprintf("Applied to \"%v\" at %v:\n%v",
			event.Application.Title, event.Application.Company, event.Application.PostingURL))
	if _, err := t.api.Send(msg); err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeTgApi).Errorf("error occured while sending message: %v", err)
	}
}

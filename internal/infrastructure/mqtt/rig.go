package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/robojar-core/internal/device"
)

// Publisher is the subset of Client used by the rig adapters.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TransitionMessage is the JSON body published for a transition.
type TransitionMessage struct {
	Device    string `json:"device"`
	Kind      string `json:"kind"`
	From      string `json:"from"`
	To        string `json:"to"`
	Outcome   string `json:"outcome"`
	Timestamp string `json:"timestamp"`
}

// NewTransitionMessage converts tr into its wire form.
func NewTransitionMessage(tr device.Transition) TransitionMessage {
	at := tr.At
	if at.IsZero() {
		at = time.Now()
	}
	return TransitionMessage{
		Device:    tr.Device,
		Kind:      string(tr.Kind),
		From:      string(tr.From),
		To:        string(tr.To),
		Outcome:   string(tr.Outcome),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	}
}

// TransitionPublisher mirrors applied transitions to the broker.
type TransitionPublisher struct {
	pub    Publisher
	topics Topics
	qos    byte
	logger Logger
}

// NewTransitionPublisher creates a publisher writing through pub.
func NewTransitionPublisher(pub Publisher, topics Topics, qos byte) *TransitionPublisher {
	return &TransitionPublisher{pub: pub, topics: topics, qos: qos}
}

// SetLogger sets the logger used for publish failures.
func (p *TransitionPublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Publish sends tr to the retained device state topic and to the
// transition event topic. Unchanged and rejected outcomes are skipped.
func (p *TransitionPublisher) Publish(tr device.Transition) error {
	if !tr.Changed() {
		return nil
	}

	payload, err := json.Marshal(NewTransitionMessage(tr))
	if err != nil {
		return fmt.Errorf("encoding transition: %w", err)
	}

	if err := p.pub.Publish(p.topics.DeviceState(string(tr.Kind), tr.Device), payload, p.qos, true); err != nil {
		return fmt.Errorf("publishing state for %s: %w", tr.Device, err)
	}
	if err := p.pub.Publish(p.topics.Transition(), payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing transition for %s: %w", tr.Device, err)
	}
	return nil
}

// Handle matches the events bus handler signature.
func (p *TransitionPublisher) Handle(_ context.Context, tr device.Transition) {
	if err := p.Publish(tr); err != nil && p.logger != nil {
		p.logger.Warn("MQTT transition publish failed", "device", tr.Device, "error", err)
	}
}

// Dispatcher publishes compact rig commands such as "valve2Open" to
// {prefix}/rig/command. It satisfies command.Dispatcher.
type Dispatcher struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewDispatcher creates a Dispatcher writing through pub.
func NewDispatcher(pub Publisher, topics Topics, qos byte) *Dispatcher {
	return &Dispatcher{pub: pub, topics: topics, qos: qos}
}

// Dispatch publishes name as a plain-text, non-retained message.
func (d *Dispatcher) Dispatch(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.pub.Publish(d.topics.RigCommand(), []byte(name), d.qos, false)
}

// commandMessage is the JSON form accepted on {prefix}/command.
type commandMessage struct {
	Command string `json:"command"`
}

// CommandHandler adapts run to a MessageHandler. Payloads are either
// plain text ("open valve 2") or JSON ({"command":"open valve 2"}).
func CommandHandler(run func(ctx context.Context, text string) error) MessageHandler {
	return func(_ string, payload []byte) error {
		text, err := decodeCommand(payload)
		if err != nil {
			return err
		}
		return run(context.Background(), text)
	}
}

func decodeCommand(payload []byte) (string, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var msg commandMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return "", fmt.Errorf("decoding command: %w", err)
		}
		text = strings.TrimSpace(msg.Command)
	}
	if text == "" {
		return "", ErrEmptyCommand
	}
	return text, nil
}

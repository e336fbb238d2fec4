package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/birther/internal/calibration"
	"github.com/relabs-tech/birther/internal/config"
)

// FormatCalibration renders a published calibration as console lines.
func FormatCalibration(payload []byte) (string, error) {
	var res calibration.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[CAL ] %s %s session=%s gravity=%s %s\n",
		res.Device.Serial, res.Device.PartNumber, res.SessionID, res.Gravity, res.Conditions)
	for _, lib := range res.Libraries() {
		fmt.Fprintf(&b, "[CAL ]   %-2s ch%-3d gain=%s offset=%s trans=(xy %.2f%%, yz %.2f%%, xz %.2f%%)\n",
			lib.Name, lib.ChannelID, lib.Gain, lib.Offset, lib.Transverse.XY, lib.Transverse.YZ, lib.Transverse.XZ)
	}
	return b.String(), nil
}

// FormatValidity renders a published validity check.
func FormatValidity(payload []byte) (string, error) {
	var msg ValidityMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", err
	}
	if msg.Passed {
		return fmt.Sprintf("[IDE ] %s %s: Tests passed!\n", msg.Serial, msg.File), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[IDE ] %s %s: FAILED\n", msg.Serial, msg.File)
	for _, l := range msg.Lines {
		fmt.Fprintf(&b, "[IDE ]   %s\n", l)
	}
	return b.String(), nil
}

// FormatProgress renders one calibration progress event.
func FormatProgress(payload []byte) (string, error) {
	var ev calibration.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return "", err
	}
	line := fmt.Sprintf("[PROG] %-9s", ev.Stage)
	if ev.File != "" {
		line += " " + ev.File
	}
	if ev.Axis != "" {
		line += " axis=" + ev.Axis
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	return line + "\n", nil
}

// RunMonitor prints every calibration, validity and progress message until
// interrupted.
func RunMonitor(cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)

	subs := []struct {
		topic  string
		format func([]byte) (string, error)
	}{
		{cfg.TopicCalibration + "/#", FormatCalibration},
		{cfg.TopicValidity + "/#", FormatValidity},
		{cfg.TopicProgress, FormatProgress},
	}
	for _, s := range subs {
		format := s.format
		token := client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			out, err := format(msg.Payload())
			if err != nil {
				log.Printf("monitor: %s unmarshal error: %v", msg.Topic(), err)
				return
			}
			fmt.Print(out)
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Printf("monitor: subscribed to %s", s.topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("monitor: shutting down")
	client.Disconnect(250)
	return nil
}

// Command simulator impersonates a monitored device: it connects to the
// realtime channel, announces itself, and emits a steady stream of log
// events with an occasional anomaly mixed in. Useful for exercising a
// console without a real device SDK.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"
	"spectra-monitor/pkg/protocol"
)

var logLines = []struct {
	level   string
	message string
	tag     string
}{
	{models.LevelInfo, "View controller appeared", "UI"},
	{models.LevelDebug, "Cache hit for user profile", "Cache"},
	{models.LevelInfo, "API request completed in 142ms", "Network"},
	{models.LevelWarn, "Slow frame detected (38ms)", "Performance"},
	{models.LevelInfo, "User tapped checkout button", "Analytics"},
	{models.LevelWarn, "Low memory warning received", "System"},
	{models.LevelError, "Failed to decode server response", "Network"},
	{models.LevelInfo, "NullPointerException caught in payment flow", "Payments"},
}

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:9090/ws", "websocket endpoint of the monitoring server")
		appID     = flag.String("app", "app_demo", "application the simulated device belongs to")
		deviceID  = flag.String("device", "", "device id (random when empty)")
		interval  = flag.Duration("interval", 2*time.Second, "delay between log events")
	)
	flag.Parse()

	if err := logger.Init(os.Getenv("GO_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	id := *deviceID
	if id == "" {
		id = "dev_" + uuid.New().String()[:8]
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		logger.Fatal("Failed to connect", logger.String("server", *serverURL), logger.Err(err))
	}
	defer conn.Close()

	// Drain server broadcasts so the connection's read side stays healthy.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	device := models.Device{
		ID:           id,
		AppID:        *appID,
		Model:        "Pixel 9 Pro",
		OSVersion:    "Android 15",
		BatteryLevel: 40 + rand.Intn(60),
		UserName:     "simulator",
		Status:       models.StatusOnline,
		Health: models.DeviceHealth{
			Score:             92,
			UXScore:           88,
			PerformanceIndex:  90,
			CrashFreeSessions: 99.4,
			ChurnRisk:         "low",
		},
		LastSeen: time.Now().UTC(),
	}

	if err := send(conn, protocol.EventDeviceConnect, device); err != nil {
		logger.Fatal("Failed to announce device", logger.Err(err))
	}
	logger.Info("Device connected",
		logger.String("deviceId", id), logger.String("appId", *appID))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			logger.Info("Simulator stopping")
			return
		case <-ticker.C:
			line := logLines[rand.Intn(len(logLines))]
			payload := protocol.LogPayload{
				DeviceID:  id,
				Level:     line.level,
				Message:   line.message,
				Tag:       line.tag,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			}
			if err := send(conn, protocol.EventDeviceLog, payload); err != nil {
				logger.Fatal("Failed to send log event", logger.Err(err))
			}
		}
	}
}

func send(conn *websocket.Conn, event string, data interface{}) error {
	msg, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

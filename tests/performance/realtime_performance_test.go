package performance_test

import (
	"bufio"
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/fikri-aulia/sapa-go-api/internal/dto"
	"github.com/fikri-aulia/sapa-go-api/internal/handler"
	"github.com/fikri-aulia/sapa-go-api/internal/middleware"
	"github.com/fikri-aulia/sapa-go-api/internal/models"
	"github.com/fikri-aulia/sapa-go-api/internal/service"
)

func TestFeedWebsocketP95Under250ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	feedService := service.NewFeedService(nil, "", nil, zerolog.Nop())
	feedHandler := handler.NewFeedHandler(feedService, zerolog.Nop())

	feedGroup := app.Group("/api/v2/feed", func(c *fiber.Ctx) error {
		c.Locals("user_id", "42")
		return c.Next()
	})
	feedHandler.Register(feedGroup)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v2/feed/ws"
	clients := 100
	durations := make([]time.Duration, 0, clients)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	for i := 0; i < clients; i++ {
		start := time.Now()
		conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"perf-" + strconv.Itoa(i)}})
		if err != nil {
			t.Fatalf("websocket dial failed: %v", err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		stop := make(chan struct{})
		go func(seq int) {
			ticker := time.NewTicker(20 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					feedService.PublishMessage(context.Background(), models.Message{
						ID:         uint(seq + 1),
						SenderID:   "alice",
						ReceiverID: "42",
						Body:       "ping",
					})
				}
			}
		}(i)

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var message dto.MessageResponse
		if err := conn.ReadJSON(&message); err != nil {
			t.Fatalf("failed to read feed message for client %d: %v", i, err)
		}
		close(stop)
		_ = conn.Close()

		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 250*time.Millisecond {
		t.Fatalf("expected websocket P95 <= 250ms, got %s", p95)
	}
}

func TestNotificationSSEP95Under300ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	notificationService := service.NewNotificationService(nil, nil, "", nil, zerolog.Nop())
	notificationHandler := handler.NewNotificationHandler(notificationService, zerolog.Nop(), 30*time.Second)

	notificationsGroup := app.Group("/api/v2/notifications", func(c *fiber.Ctx) error {
		c.Locals("user_id", "7")
		return c.Next()
	})
	notificationHandler.Register(notificationsGroup)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	publisherCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()
	go func() {
		ticker := time.NewTicker(25 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-publisherCtx.Done():
				return
			case <-ticker.C:
				notificationService.Fanout(publisherCtx, models.Notification{
					ID:      1,
					UserID:  "7",
					Kind:    models.NotificationKindNewMessage,
					Content: "You have a new message from alice",
				})
			}
		}
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	clients := 100
	durations := make([]time.Duration, 0, clients)

	for i := 0; i < clients; i++ {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v2/notifications/stream", nil)
		if err != nil {
			t.Fatalf("build request failed: %v", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("sse request failed: %v", err)
		}

		reader := bufio.NewReader(resp.Body)
		deadline := time.Now().Add(2 * time.Second)

		for {
			if time.Now().After(deadline) {
				t.Fatalf("sse response timed out for client %d", i)
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read sse line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				durations = append(durations, time.Since(start))
				break
			}
		}

		resp.Body.Close()
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 300*time.Millisecond {
		t.Fatalf("expected SSE P95 <= 300ms, got %s", p95)
	}
}

func percentile(values []time.Duration, pct float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(math.Ceil(pct*float64(len(values)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}

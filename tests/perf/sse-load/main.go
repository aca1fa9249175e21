// sse-load opens many board event streams at once and counts what they
// receive. Each connection is its own viewer session.
package main

import (
	"bufio"
	"context"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

type counters struct {
	attempts atomic.Uint64
	failures atomic.Uint64
	boards   atomic.Uint64
	toasts   atomic.Uint64
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	streamURL := getenv("STREAM_URL", "http://localhost:8080/api/events")
	conns := getenvInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var c counters
	var wg sync.WaitGroup
	wg.Add(conns)
	for range conns {
		go func() {
			defer wg.Done()
			watch(ctx, streamURL, &c)
		}()
	}

	go func() {
		select {
		case <-time.After(60 * time.Second):
			if c.boards.Load() == 0 {
				log.Fatal("no board events received in 60s")
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	attempts, failures := c.attempts.Load(), c.failures.Load()
	failureRate := 0.0
	if attempts > 0 {
		failureRate = float64(failures) / float64(attempts)
	}
	log.WithFields(log.Fields{
		"connections":         conns,
		"duration_sec":        int(duration.Seconds()),
		"board_events":        c.boards.Load(),
		"toast_events":        c.toasts.Load(),
		"connection_failures": failures,
	}).Info("sse load finished")
	if c.boards.Load() == 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}

// watch keeps one stream open until ctx ends, reconnecting with backoff.
// The cookie jar keeps the viewer session across reconnects.
func watch(ctx context.Context, streamURL string, c *counters) {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}
	backoff := time.Second
	retry := func() {
		c.failures.Add(1)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
	}

	for ctx.Err() == nil {
		c.attempts.Add(1)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
		if err != nil {
			retry()
			continue
		}
		resp, err := client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			retry()
			continue
		}
		backoff = time.Second
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			switch strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "event:")) {
			case "board":
				c.boards.Add(1)
			case "toast":
				c.toasts.Add(1)
			}
		}
		resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		retry()
	}
}

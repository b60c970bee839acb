package wait

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTP probes readiness with a GET request against the container's
// mapped host port, succeeding when the response status matches
// ExpectedStatus (default 200).
type HTTP struct {
	ContainerPort  int
	Path           string
	ExpectedStatus int
	Timeout        time.Duration
	Interval       time.Duration

	client *http.Client
}

func (h HTTP) Name() string { return "HttpWaitStrategy" }

func (h HTTP) WaitUntilReady(ctx context.Context, probe Probe, containerID string) error {
	expected := h.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}

	client := h.client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	path := h.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	attempt := func() (bool, error) {
		host, hostPort, err := probe.HostAddr(ctx, containerID, h.ContainerPort)
		if err != nil {
			return false, err
		}

		url := fmt.Sprintf("http://%s:%d%s", host, hostPort, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return false, nil // connection refused etc: not ready yet
		}
		defer resp.Body.Close()

		if resp.StatusCode != expected {
			return false, nil
		}
		return true, nil
	}

	return retry(ctx, h.Name(), h.Timeout, h.Interval, attempt)
}

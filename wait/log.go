package wait

import (
	"context"
	"io"
	"regexp"
	"time"
)

// Log probes readiness by regex-matching a container's combined
// stdout+stderr. Occurrence, when > 1, requires the pattern to match
// that many times across the fetched log (MySQL logs "ready for
// connections" once for its temporary bootstrap server and once for the
// real one, so MySQL's builder sets Occurrence to 2).
type Log struct {
	Pattern    string
	Occurrence int
	Timeout    time.Duration
	Interval   time.Duration
}

func (l Log) Name() string { return "LogWaitStrategy" }

func (l Log) WaitUntilReady(ctx context.Context, probe Probe, containerID string) error {
	re := regexp.MustCompile(l.Pattern)
	occurrence := l.Occurrence
	if occurrence < 1 {
		occurrence = 1
	}

	attempt := func() (bool, error) {
		rc, err := probe.Logs(ctx, containerID)
		if err != nil {
			return false, err
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return false, err
		}

		matches := re.FindAll(content, -1)
		return len(matches) >= occurrence, nil
	}

	return retry(ctx, l.Name(), l.Timeout, l.Interval, attempt)
}

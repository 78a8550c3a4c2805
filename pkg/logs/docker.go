package logs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// LogMessage is an entry read from a container.
type LogMessage struct {
	ContainerID string
	Timestamp   time.Time
	Entry       *LogEntry
}

// Container describes a running container.
type Container struct {
	ID    string
	Name  string
	Image string
}

// DockerClient tails container logs through the Docker Engine API.
type DockerClient struct {
	cli *client.Client
}

func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerClient{cli: cli}, nil
}

func (dc *DockerClient) ListRunningContainers(ctx context.Context) ([]Container, error) {
	containers, err := dc.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]Container, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, Container{
			ID:    c.ID,
			Name:  name,
			Image: c.Image,
		})
	}
	return result, nil
}

// MatchContainers returns the running containers whose name or ID prefix is
// listed in names. An empty list matches nothing.
func MatchContainers(running []Container, names []string) []Container {
	var matched []Container
	for _, c := range running {
		for _, n := range names {
			if n == c.Name || (n != "" && strings.HasPrefix(c.ID, n)) {
				matched = append(matched, c)
				break
			}
		}
	}
	return matched
}

// StreamLogs follows a container's log output and sends every entry to out
// until ctx is cancelled or the stream ends. New output only; history is not
// replayed, so statements are not counted twice across restarts.
func (dc *DockerClient) StreamLogs(ctx context.Context, containerID string, out chan<- LogMessage) error {
	info, err := dc.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}

	reader, err := dc.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       "0",
	})
	if err != nil {
		return fmt.Errorf("failed to get container logs: %w", err)
	}
	defer reader.Close()

	slog.Info("[docker] streaming logs", "container_id", shortID(containerID), "tty", info.Config != nil && info.Config.Tty)

	var src io.Reader = reader
	if info.Config == nil || !info.Config.Tty {
		src = demultiplex(reader)
	}

	count := 0
	err = ScanEntries(ctx, src, func(entry *LogEntry) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- LogMessage{ContainerID: containerID, Timestamp: time.Now(), Entry: entry}:
			count++
			return nil
		}
	})
	slog.Info("[docker] log stream ended", "container_id", shortID(containerID), "entries", count)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// demultiplex strips Docker's stream headers, merging stdout and stderr.
func demultiplex(r io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, r)
		pw.CloseWithError(err)
	}()
	return pr
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func (dc *DockerClient) Close() error {
	if dc.cli != nil {
		return dc.cli.Close()
	}
	return nil
}

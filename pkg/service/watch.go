package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/formatter"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/photostream"
)

// WatchService prints push events as they arrive
type WatchService struct {
	client *photostream.Client
	now    func() time.Time
}

// NewWatchService creates a watch service on c
func NewWatchService(c *photostream.Client) *WatchService {
	return &WatchService{client: c, now: time.Now}
}

// Watch connects the socket and prints events until SIGINT/SIGTERM or ctx
// is done. A non-empty metricsAddr serves /metrics for the duration.
func (ws *WatchService) Watch(ctx context.Context, metricsAddr string) error {
	logger.Debug("Starting event watcher")

	if metricsAddr != "" {
		stop, err := serveMetrics(metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer stop()
	}

	photoL := &photostream.PhotoListenerFuncs{
		NewPhoto: func(p *api.Photo) {
			ws.displayEvent("+", fmt.Sprintf("New photo %d: %s", p.ID, formatter.Truncate(p.Description, 40)))
		},
		PhotoDeleted: func(id int) {
			ws.displayEvent("-", fmt.Sprintf("Photo %d deleted", id))
		},
	}
	commentL := &photostream.CommentListenerFuncs{
		NewComment: func(c *api.Comment) {
			ws.displayEvent(">", fmt.Sprintf("Comment on photo %d: %s", c.PhotoID, formatter.Truncate(c.Message, 40)))
		},
		CommentDeleted: func(photoID, commentID int) {
			ws.displayEvent("-", fmt.Sprintf("Comment %d deleted from photo %d", commentID, photoID))
		},
	}
	voteL := &photostream.VoteListenerFuncs{
		NewVote: func(v *api.Vote) {
			ws.displayEvent("*", fmt.Sprintf("Photo %d now has %s", v.PhotoID, formatter.Count(v.Votes, "vote", "votes")))
		},
	}
	connL := &photostream.ConnectionListenerFuncs{
		Disconnected: func(err error) {
			if err != nil {
				ws.displayEvent("!", fmt.Sprintf("Disconnected: %v", err))
			}
		},
		ConnectionError: func(err error) {
			ws.displayEvent("!", fmt.Sprintf("Connection lost: %v", err))
		},
	}

	ws.client.AddPhotoListener(photoL)
	ws.client.AddCommentListener(commentL)
	ws.client.AddVoteListener(voteL)
	ws.client.AddConnectionListener(connL)
	defer func() {
		ws.client.RemovePhotoListener(photoL)
		ws.client.RemoveCommentListener(commentL)
		ws.client.RemoveVoteListener(voteL)
		ws.client.RemoveConnectionListener(connL)
	}()

	if err := ws.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer ws.client.Disconnect()

	output.Println()
	formatter.PrintInfo("Watching for photostream events")
	output.Println("Press Ctrl+C to stop")
	output.Printf("%s\n\n", strings.Repeat("-", 60))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		output.Println()
		formatter.PrintSuccess("Event watcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ws *WatchService) displayEvent(marker, message string) {
	output.Printf("[%s] %s %s\n", ws.now().Format("15:04:05"), marker, message)
}

func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Get().Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", "error", err)
		}
	}()
	formatter.PrintInfo("Serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

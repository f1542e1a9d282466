package photostream

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zfogg/photostream/cli/pkg/dispatch"
	"github.com/zfogg/photostream/cli/pkg/logger"
)

// RequestKind names a class of request for progress tracking
type RequestKind int

const (
	LoadPhotos RequestKind = iota
	LoadMorePhotos
	SearchPhotos
	UploadPhoto
	DeletePhoto
	Vote
	LoadComments
	PostComment
	DeleteComment
)

// RequestKinds lists every kind in declaration order
var RequestKinds = []RequestKind{
	LoadPhotos, LoadMorePhotos, SearchPhotos, UploadPhoto, DeletePhoto,
	Vote, LoadComments, PostComment, DeleteComment,
}

func (k RequestKind) String() string {
	switch k {
	case LoadPhotos:
		return "load_photos"
	case LoadMorePhotos:
		return "load_more_photos"
	case SearchPhotos:
		return "search_photos"
	case UploadPhoto:
		return "upload_photo"
	case DeletePhoto:
		return "delete_photo"
	case Vote:
		return "vote"
	case LoadComments:
		return "load_comments"
	case PostComment:
		return "post_comment"
	case DeleteComment:
		return "delete_comment"
	}
	return "unknown"
}

// DefaultDismissDelay is how long progress stays visible after the last
// request of a kind finishes
const DefaultDismissDelay = 300 * time.Millisecond

// RequestCounter tracks in-flight requests per kind. The first request of
// a kind starts progress; progress is dismissed once the kind has been idle
// for the dismiss delay.
type RequestCounter struct {
	mu      sync.Mutex
	open    map[RequestKind]int
	visible map[RequestKind]bool
	gen     map[RequestKind]uint64
	stop    map[RequestKind]func() bool

	delay     time.Duration
	poster    dispatch.Poster
	listeners *listeners[RequestListener]
	gauge     *prometheus.GaugeVec
}

// NewRequestCounter creates a counter notifying on poster. gauge may be nil.
func NewRequestCounter(poster dispatch.Poster, delay time.Duration, gauge *prometheus.GaugeVec) *RequestCounter {
	if delay < 0 {
		delay = DefaultDismissDelay
	}
	return &RequestCounter{
		open:      make(map[RequestKind]int),
		visible:   make(map[RequestKind]bool),
		gen:       make(map[RequestKind]uint64),
		stop:      make(map[RequestKind]func() bool),
		delay:     delay,
		poster:    poster,
		listeners: &listeners[RequestListener]{},
		gauge:     gauge,
	}
}

// AddListener registers l for progress notifications
func (r *RequestCounter) AddListener(l RequestListener) {
	r.listeners.add(l)
}

// RemoveListener unregisters l
func (r *RequestCounter) RemoveListener(l RequestListener) {
	r.listeners.remove(l)
}

// Begin records a new request of kind
func (r *RequestCounter) Begin(kind RequestKind) {
	r.mu.Lock()
	if stop := r.stop[kind]; stop != nil {
		stop()
		delete(r.stop, kind)
	}
	r.gen[kind]++
	r.open[kind]++
	n := r.open[kind]
	start := !r.visible[kind]
	r.visible[kind] = true
	r.setGauge(kind, n)
	r.mu.Unlock()

	if start {
		r.poster.Post(func() {
			r.listeners.each(func(l RequestListener) { l.OnRequestStarted(kind) })
		})
	}
}

// End records that a request of kind finished
func (r *RequestCounter) End(kind RequestKind) {
	r.mu.Lock()
	if r.open[kind] == 0 {
		r.mu.Unlock()
		logger.Warn("Request counter underflow", "kind", kind)
		return
	}
	r.open[kind]--
	n := r.open[kind]
	if n == 0 {
		r.gen[kind]++
		gen := r.gen[kind]
		r.stop[kind] = dispatch.After(r.poster, r.delay, func() { r.dismiss(kind, gen) })
	}
	r.setGauge(kind, n)
	r.mu.Unlock()
}

// dismiss runs on the poster
func (r *RequestCounter) dismiss(kind RequestKind, gen uint64) {
	r.mu.Lock()
	if r.gen[kind] != gen || r.open[kind] != 0 || !r.visible[kind] {
		r.mu.Unlock()
		return
	}
	r.visible[kind] = false
	delete(r.stop, kind)
	r.mu.Unlock()

	r.listeners.each(func(l RequestListener) { l.OnRequestFinished(kind) })
}

// Open returns the number of in-flight requests of kind
func (r *RequestCounter) Open(kind RequestKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open[kind]
}

// IsOpen reports whether any request of kind is in flight
func (r *RequestCounter) IsOpen(kind RequestKind) bool {
	return r.Open(kind) > 0
}

func (r *RequestCounter) setGauge(kind RequestKind, n int) {
	if r.gauge != nil {
		r.gauge.WithLabelValues(kind.String()).Set(float64(n))
	}
}

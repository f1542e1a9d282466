// Package photostreamtest runs an in-process photostream server for tests:
// the REST endpoints with ETag handling plus a Socket.IO push endpoint.
package photostreamtest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// Photo is the server-side photo record
type Photo struct {
	ID          int
	Description string
	Owner       string
	Votes       int
	Image       []byte
}

// Comment is the server-side comment record
type Comment struct {
	ID      int
	PhotoID int
	Owner   string
	Message string
}

// Request records one REST call as the server saw it
type Request struct {
	Method          string
	Path            string
	Query           string
	InstallationID  string
	IfModifiedSince string
	Status          int
}

// Server is a fake photostream backend
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	photos         []*Photo // newest first
	comments       map[int][]*Comment
	likes          map[int]map[string]bool
	nextPhotoID    int
	nextCommentID  int
	streamVersion  int
	commentVersion map[int]int
	requests       []Request
	failures       map[string]int

	sockets      map[*socketConn]struct{}
	conns        map[*socketConn]struct{}
	socketCond   *sync.Cond
	PingInterval time.Duration
}

// NewServer starts a fake server. Close it with Close.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		comments:       make(map[int][]*Comment),
		likes:          make(map[int]map[string]bool),
		commentVersion: make(map[int]int),
		failures:       make(map[string]int),
		sockets:        make(map[*socketConn]struct{}),
		conns:          make(map[*socketConn]struct{}),
		nextPhotoID:    1,
		nextCommentID:  1,
		streamVersion:  1,
		PingInterval:   25 * time.Second,
	}
	s.socketCond = sync.NewCond(&s.mu)

	router := gin.New()
	router.Use(s.record)

	router.GET("/stream", s.handleStream)
	router.GET("/stream/more", s.handleMore)
	router.GET("/search", s.handleSearch)
	router.POST("/image", s.handleUpload)
	router.DELETE("/image/:id", s.handleDeletePhoto)
	router.PUT("/image/:id/like", s.handleVote(true))
	router.PUT("/image/:id/dislike", s.handleVote(false))
	router.GET("/image/:id/comments", s.handleComments)
	router.POST("/image/:id/comment", s.handlePostComment)
	router.DELETE("/comment/:id", s.handleDeleteComment)

	// gin's writer refuses to hijack once the 101 is written, so the socket
	// endpoint is served outside the router.
	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io/", s.handleSocket)
	mux.Handle("/", router)

	s.Server = httptest.NewServer(mux)
	return s
}

// Close drops every socket and shuts the server down
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*socketConn, 0, len(s.conns))
	for sc := range s.conns {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	for _, sc := range conns {
		sc.conn.CloseNow()
	}
	s.Server.Close()
}

// SocketURL is the ws:// root to hand to the socket client
func (s *Server) SocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// TestImage returns a small valid PNG
func TestImage() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// Seed adds n photos owned by owner with generated descriptions
func (s *Server) Seed(n int, owner string) []*Photo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []*Photo
	for i := 0; i < n; i++ {
		p := &Photo{
			ID:          s.nextPhotoID,
			Description: gofakeit.HipsterSentence(),
			Owner:       owner,
			Image:       TestImage(),
		}
		s.nextPhotoID++
		s.photos = append([]*Photo{p}, s.photos...)
		added = append(added, p)
	}
	s.streamVersion++
	return added
}

// AddComment stores a comment without going through the API
func (s *Server) AddComment(photoID int, owner, message string) *Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addCommentLocked(photoID, owner, message)
}

func (s *Server) addCommentLocked(photoID int, owner, message string) *Comment {
	c := &Comment{ID: s.nextCommentID, PhotoID: photoID, Owner: owner, Message: message}
	s.nextCommentID++
	s.comments[photoID] = append(s.comments[photoID], c)
	s.commentVersion[photoID]++
	s.streamVersion++
	return c
}

// Fail makes every request to "METHOD /path" answer with status until cleared
// with status 0
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = status
}

// Requests returns a copy of the recorded REST calls
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent REST call
func (s *Server) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

// Photo returns a copy of the stored photo
func (s *Server) Photo(id int) (Photo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(id)
	if p == nil {
		return Photo{}, false
	}
	return *p, true
}

func (s *Server) record(c *gin.Context) {
	c.Next()

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:          c.Request.Method,
		Path:            c.Request.URL.Path,
		Query:           c.Request.URL.RawQuery,
		InstallationID:  c.GetHeader("installation_id"),
		IfModifiedSince: c.GetHeader("if-modified-since"),
		Status:          c.Writer.Status(),
	})
	s.mu.Unlock()
}

func (s *Server) failed(c *gin.Context) bool {
	s.mu.Lock()
	status, ok := s.failures[c.Request.Method+" "+c.Request.URL.Path]
	s.mu.Unlock()
	if ok {
		c.JSON(status, gin.H{"message": http.StatusText(status)})
	}
	return ok
}

func (s *Server) findLocked(id int) *Photo {
	for _, p := range s.photos {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Server) photoJSON(p *Photo, installation string) gin.H {
	return gin.H{
		"id":            p.ID,
		"description":   p.Description,
		"liked":         s.likes[p.ID][installation],
		"deleteable":    p.Owner == installation,
		"comment_count": len(s.comments[p.ID]),
		"votes":         p.Votes,
		"image":         base64.StdEncoding.EncodeToString(p.Image),
	}
}

func (s *Server) commentJSON(cm *Comment, installation string) gin.H {
	return gin.H{
		"id":         cm.ID,
		"photo_id":   cm.PhotoID,
		"message":    cm.Message,
		"deleteable": cm.Owner == installation,
	}
}

func intParam(c *gin.Context, name string, def int) int {
	v := c.Param(name)
	if v == "" {
		v = c.Query(name)
	}
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) page(c *gin.Context, photos []*Photo, page int) {
	pageSize := intParam(c, "page_size", 5)
	if pageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "page_size must be positive"})
		return
	}
	installation := c.GetHeader("installation_id")

	start := (page - 1) * pageSize
	results := []gin.H{}
	for i := start; i >= 0 && i < len(photos) && i < start+pageSize; i++ {
		results = append(results, s.photoJSON(photos[i], installation))
	}

	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"results":       results,
		"has_next_page": start+pageSize < len(photos),
	})
}

func (s *Server) conditional(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if c.GetHeader("if-modified-since") == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func (s *Server) handleStream(c *gin.Context) {
	if s.failed(c) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conditional(c, fmt.Sprintf("stream-%d", s.streamVersion)) {
		return
	}
	s.page(c, s.photos, 1)
}

func (s *Server) handleMore(c *gin.Context) {
	if s.failed(c) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page := intParam(c, "page", 1)
	if s.conditional(c, fmt.Sprintf("stream-%d-p%d", s.streamVersion, page)) {
		return
	}
	s.page(c, s.photos, page)
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.failed(c) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(c.Query("q"))
	var matches []*Photo
	for _, p := range s.photos {
		if strings.Contains(strings.ToLower(p.Description), q) {
			matches = append(matches, p)
		}
	}
	s.page(c, matches, intParam(c, "page", 1))
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.failed(c) {
		return
	}
	var body struct {
		Image       string `json:"image"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(body.Image)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "image must be base64"})
		return
	}

	installation := c.GetHeader("installation_id")
	s.mu.Lock()
	p := &Photo{ID: s.nextPhotoID, Description: body.Description, Owner: installation, Image: data}
	s.nextPhotoID++
	s.photos = append([]*Photo{p}, s.photos...)
	s.streamVersion++
	payload := s.photoJSON(p, "")
	out := s.photoJSON(p, installation)
	s.mu.Unlock()

	s.Emit("new_photo", payload)
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleDeletePhoto(c *gin.Context) {
	if s.failed(c) {
		return
	}
	id := intParam(c, "id", 0)
	installation := c.GetHeader("installation_id")

	s.mu.Lock()
	p := s.findLocked(id)
	switch {
	case p == nil:
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "photo not found"})
		return
	case p.Owner != installation:
		s.mu.Unlock()
		c.JSON(http.StatusForbidden, gin.H{"message": "not your photo"})
		return
	}
	for i, q := range s.photos {
		if q.ID == id {
			s.photos = append(s.photos[:i], s.photos[i+1:]...)
			break
		}
	}
	delete(s.comments, id)
	s.streamVersion++
	s.mu.Unlock()

	s.Emit("photo_deleted", gin.H{"id": id})
	c.Status(http.StatusNoContent)
}

func (s *Server) handleVote(like bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.failed(c) {
			return
		}
		id := intParam(c, "id", 0)
		installation := c.GetHeader("installation_id")

		s.mu.Lock()
		p := s.findLocked(id)
		if p == nil {
			s.mu.Unlock()
			c.JSON(http.StatusNotFound, gin.H{"message": "photo not found"})
			return
		}
		if like {
			p.Votes++
		} else {
			p.Votes--
		}
		if s.likes[id] == nil {
			s.likes[id] = make(map[string]bool)
		}
		s.likes[id][installation] = like
		s.streamVersion++
		votes := p.Votes
		s.mu.Unlock()

		s.Emit("new_vote", gin.H{"photo_id": id, "votes": votes})
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleComments(c *gin.Context) {
	if s.failed(c) {
		return
	}
	id := intParam(c, "id", 0)
	installation := c.GetHeader("installation_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "photo not found"})
		return
	}
	if s.conditional(c, fmt.Sprintf("comments-%d-%d", id, s.commentVersion[id])) {
		return
	}

	comments := []gin.H{}
	for _, cm := range s.comments[id] {
		comments = append(comments, s.commentJSON(cm, installation))
	}
	c.JSON(http.StatusOK, gin.H{"photo_id": id, "page": 1, "comments": comments})
}

func (s *Server) handlePostComment(c *gin.Context) {
	if s.failed(c) {
		return
	}
	id := intParam(c, "id", 0)
	installation := c.GetHeader("installation_id")

	var body struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "message required"})
		return
	}

	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"message": "photo not found"})
		return
	}
	cm := s.addCommentLocked(id, installation, body.Message)
	payload := s.commentJSON(cm, "")
	out := s.commentJSON(cm, installation)
	s.mu.Unlock()

	s.Emit("new_comment", payload)
	c.JSON(http.StatusCreated, out)
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	if s.failed(c) {
		return
	}
	id := intParam(c, "id", 0)
	installation := c.GetHeader("installation_id")

	s.mu.Lock()
	for photoID, list := range s.comments {
		for i, cm := range list {
			if cm.ID != id {
				continue
			}
			if cm.Owner != installation {
				s.mu.Unlock()
				c.JSON(http.StatusForbidden, gin.H{"message": "not your comment"})
				return
			}
			s.comments[photoID] = append(list[:i], list[i+1:]...)
			s.commentVersion[photoID]++
			s.streamVersion++
			s.mu.Unlock()

			s.Emit("comment_deleted", gin.H{"id": id, "photo_id": photoID})
			c.Status(http.StatusNoContent)
			return
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusNotFound, gin.H{"message": "comment not found"})
}

// socketConn is one Socket.IO client
type socketConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (sc *socketConn) write(ctx context.Context, msg string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.Write(ctx, websocket.MessageText, []byte(msg))
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("EIO") != "4" || query.Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	sc := &socketConn{conn: conn}
	s.mu.Lock()
	s.conns[sc] = struct{}{}
	s.mu.Unlock()
	ctx := r.Context()
	sid := gofakeit.UUID()

	open, _ := json.Marshal(map[string]interface{}{
		"sid":          sid,
		"upgrades":     []string{},
		"pingInterval": s.PingInterval.Milliseconds(),
		"pingTimeout":  20000,
		"maxPayload":   1000000,
	})
	if err := sc.write(ctx, "0"+string(open)); err != nil {
		conn.CloseNow()
		return
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(s.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				_ = sc.write(pingCtx, "2")
			}
		}
	}()

	defer func() {
		s.mu.Lock()
		delete(s.sockets, sc)
		delete(s.conns, sc)
		s.socketCond.Broadcast()
		s.mu.Unlock()
		conn.CloseNow()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		switch msg := string(data); {
		case msg == "2":
			_ = sc.write(ctx, "3")
		case strings.HasPrefix(msg, "40"):
			if err := sc.write(ctx, fmt.Sprintf(`40{"sid":"%s"}`, sid)); err != nil {
				return
			}
			s.mu.Lock()
			s.sockets[sc] = struct{}{}
			s.socketCond.Broadcast()
			s.mu.Unlock()
		case msg == "41", msg == "1":
			return
		}
	}
}

// Emit sends a Socket.IO event to every connected client
func (s *Server) Emit(event string, payload interface{}) {
	data, err := json.Marshal([]interface{}{event, payload})
	if err != nil {
		return
	}

	s.mu.Lock()
	conns := make([]*socketConn, 0, len(s.sockets))
	for sc := range s.sockets {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, sc := range conns {
		_ = sc.write(ctx, "42"+string(data))
	}
}

// EmitRaw sends a raw Engine.IO frame to every connected client
func (s *Server) EmitRaw(frame string) {
	s.mu.Lock()
	conns := make([]*socketConn, 0, len(s.sockets))
	for sc := range s.sockets {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, sc := range conns {
		_ = sc.write(ctx, frame)
	}
}

// WaitForSockets blocks until n clients have joined the namespace or the
// timeout passes
func (s *Server) WaitForSockets(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.socketCond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.sockets) != n {
		if time.Now().After(deadline) {
			return false
		}
		s.socketCond.Wait()
	}
	return true
}

// DropSockets closes every socket connection from the server side
func (s *Server) DropSockets() {
	s.mu.Lock()
	conns := make([]*socketConn, 0, len(s.sockets))
	for sc := range s.sockets {
		conns = append(conns, sc)
	}
	s.mu.Unlock()

	for _, sc := range conns {
		sc.conn.Close(websocket.StatusGoingAway, "server restart")
	}
}

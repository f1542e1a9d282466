package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/suite"
	"github.com/zfogg/photostream/cli/internal/photostreamtest"
	"github.com/zfogg/photostream/cli/pkg/client"
	"github.com/zfogg/photostream/cli/pkg/config"
	clierrors "github.com/zfogg/photostream/cli/pkg/errors"
	"github.com/zfogg/photostream/cli/pkg/installation"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/prompter"
)

const stranger = "99999999-8888-4777-8666-555555555555"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type ServiceSuite struct {
	suite.Suite
	server *photostreamtest.Server
	dir    string
	out    *syncBuffer
	client *photostream.Client
	me     string
	ctx    context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.dir = s.T().TempDir()
	s.server = photostreamtest.NewServer()

	s.Require().NoError(config.Init(filepath.Join(s.dir, "config.toml")))
	config.Set("api.base_url", s.server.URL)
	config.Set("socket.url", s.server.URL)
	config.Set("socket.reconnect_delay", 20)
	config.Set("socket.reconnect_attempts", 1)
	config.Set("progress.dismiss_delay", 1)
	client.Reset()

	color.NoColor = true
	s.out = &syncBuffer{}
	output.SetWriter(s.out)
	prompter.SetIO(strings.NewReader(""), io.Discard)

	c, err := Bind(s.ctx)
	s.Require().NoError(err)
	s.client = c

	s.me, err = installation.Load()
	s.Require().NoError(err)
	s.Require().NotEmpty(s.me)
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(Unbind())
	s.Equal(0, Bindings())
	s.server.Close()
	output.SetWriter(nil)
	prompter.SetIO(nil, nil)
	client.Reset()
}

func (s *ServiceSuite) input(text string) {
	prompter.SetIO(strings.NewReader(text), io.Discard)
}

func (s *ServiceSuite) errorType(err error) clierrors.ErrorType {
	s.Require().Error(err)
	return clierrors.CategorizeError(err).Type
}

func (s *ServiceSuite) TestBindIsRefCounted() {
	again, err := Bind(s.ctx)
	s.Require().NoError(err)
	s.Same(s.client, again)
	s.Equal(2, Bindings())

	s.Require().NoError(Unbind())
	s.Equal(1, Bindings())
	s.Equal(1, s.client.Store().Refs())
}

func (s *ServiceSuite) TestLastUnbindClosesClient() {
	store := s.client.Store()
	s.Require().NoError(Unbind())
	s.Equal(0, store.Refs())
	s.False(s.client.Go(s.ctx, func(context.Context) {}))

	fresh, err := Bind(s.ctx)
	s.Require().NoError(err)
	s.NotSame(s.client, fresh)
	s.client = fresh
}

func (s *ServiceSuite) TestBindCanceledContext() {
	s.Require().NoError(Unbind())
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := Bind(ctx)
	s.ErrorIs(err, context.Canceled)

	s.client, err = Bind(s.ctx)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestListPhotos() {
	s.server.Seed(7, stranger)

	s.Require().NoError(NewPhotoService(s.client).ListPhotos(s.ctx))
	out := s.out.String()
	s.Contains(out, "Photos (page 1):")
	s.Contains(out, "ID  VOTES")
	s.Contains(out, "More: photostream-cli photos more 2")
}

func (s *ServiceSuite) TestListPhotosEmpty() {
	s.Require().NoError(NewPhotoService(s.client).ListPhotos(s.ctx))
	s.Equal("No photos yet\n", s.out.String())
}

func (s *ServiceSuite) TestListPhotosJSON() {
	s.server.Seed(2, stranger)
	config.Set("output.format", "json")

	s.Require().NoError(NewPhotoService(s.client).ListPhotos(s.ctx))
	s.Contains(s.out.String(), `"results": [`)
	s.NotContains(s.out.String(), "More:")
}

func (s *ServiceSuite) TestMorePhotos() {
	s.server.Seed(7, stranger)
	svc := NewPhotoService(s.client)

	s.Require().NoError(svc.MorePhotos(s.ctx, 2))
	s.Contains(s.out.String(), "Photos (page 2):")
	s.NotContains(s.out.String(), "More:")

	s.Equal(clierrors.ErrorTypeValidation, s.errorType(svc.MorePhotos(s.ctx, 1)))
}

func (s *ServiceSuite) TestSearchPhotos() {
	s.server.Seed(3, stranger)
	svc := NewPhotoService(s.client)

	path := filepath.Join(s.dir, "pic.png")
	s.Require().NoError(os.WriteFile(path, photostreamtest.TestImage(), 0644))
	s.Require().NoError(svc.UploadPhoto(s.ctx, path, "velvet qzxv harbour"))
	s.out.Reset()

	s.Require().NoError(svc.SearchPhotos(s.ctx, "QZXV", 1))
	s.Contains(s.out.String(), `Search results for "QZXV":`)
	s.Contains(s.out.String(), "velvet qzxv harbour")

	s.out.Reset()
	s.Require().NoError(svc.SearchPhotos(s.ctx, "nothingmatchesthis", 1))
	s.Equal("No photos match \"nothingmatchesthis\"\n", s.out.String())

	s.Equal(clierrors.ErrorTypeValidation, s.errorType(svc.SearchPhotos(s.ctx, "   ", 1)))
}

func (s *ServiceSuite) TestUploadPhoto() {
	path := filepath.Join(s.dir, "pic.png")
	s.Require().NoError(os.WriteFile(path, photostreamtest.TestImage(), 0644))

	s.Require().NoError(NewPhotoService(s.client).UploadPhoto(s.ctx, path, "first light"))
	s.Contains(s.out.String(), "Photo uploaded (")
	s.Contains(s.out.String(), "description: first light")

	photo, ok := s.server.Photo(1)
	s.Require().True(ok)
	s.Equal(s.me, photo.Owner)

	_, stored := s.client.Images().Path(1)
	s.True(stored)
}

func (s *ServiceSuite) TestUploadPromptsForDescription() {
	path := filepath.Join(s.dir, "pic.png")
	s.Require().NoError(os.WriteFile(path, photostreamtest.TestImage(), 0644))
	s.input("typed description\n")

	s.Require().NoError(NewPhotoService(s.client).UploadPhoto(s.ctx, path, ""))
	photo, ok := s.server.Photo(1)
	s.Require().True(ok)
	s.Equal("typed description", photo.Description)
}

func (s *ServiceSuite) TestUploadRejectsBadFiles() {
	svc := NewPhotoService(s.client)

	err := svc.UploadPhoto(s.ctx, filepath.Join(s.dir, "missing.png"), "x")
	s.Equal(clierrors.ErrorTypeFileNotFound, s.errorType(err))

	text := filepath.Join(s.dir, "notes.txt")
	s.Require().NoError(os.WriteFile(text, []byte("just some words"), 0644))
	s.Equal(clierrors.ErrorTypeInvalidFormat, s.errorType(svc.UploadPhoto(s.ctx, text, "x")))

	s.Empty(s.server.Requests())
}

func (s *ServiceSuite) TestDeletePhoto() {
	mine := s.server.Seed(1, s.me)[0]

	s.Require().NoError(NewPhotoService(s.client).DeletePhoto(s.ctx, mine.ID, true))
	s.Contains(s.out.String(), "deleted")
	_, ok := s.server.Photo(mine.ID)
	s.False(ok)
}

func (s *ServiceSuite) TestDeletePhotoConfirm() {
	mine := s.server.Seed(1, s.me)[0]
	svc := NewPhotoService(s.client)

	s.input("n\n")
	s.Require().NoError(svc.DeletePhoto(s.ctx, mine.ID, false))
	s.Equal("Cancelled\n", s.out.String())
	_, ok := s.server.Photo(mine.ID)
	s.True(ok)

	s.input("yes\n")
	s.Require().NoError(svc.DeletePhoto(s.ctx, mine.ID, false))
	_, ok = s.server.Photo(mine.ID)
	s.False(ok)
}

func (s *ServiceSuite) TestDeleteOthersPhoto() {
	theirs := s.server.Seed(1, stranger)[0]

	err := NewPhotoService(s.client).DeletePhoto(s.ctx, theirs.ID, true)
	s.Equal(clierrors.ErrorTypeForbidden, s.errorType(err))
}

func (s *ServiceSuite) TestShowPhoto() {
	p := s.server.Seed(1, s.me)[0]
	thumb := filepath.Join(s.dir, "thumb.jpg")

	s.Require().NoError(NewVoteService(s.client).Like(s.ctx, p.ID))
	s.out.Reset()

	s.Require().NoError(NewPhotoService(s.client).ShowPhoto(s.ctx, p.ID, thumb, 2))
	out := s.out.String()
	s.Contains(out, "Thumbnail written to "+thumb)
	s.Contains(out, "deleteable: true")
	s.Contains(out, "liked: true")
	s.Contains(out, "image: ")

	data, err := os.ReadFile(thumb)
	s.Require().NoError(err)
	s.True(bytes.HasPrefix(data, []byte{0xFF, 0xD8}))
}

func (s *ServiceSuite) TestShowPhotoNotFound() {
	s.server.Seed(1, stranger)

	err := NewPhotoService(s.client).ShowPhoto(s.ctx, 404, "", 0)
	s.Equal(clierrors.ErrorTypeNotFound, s.errorType(err))
}

func (s *ServiceSuite) TestComments() {
	p := s.server.Seed(1, stranger)[0]
	s.server.AddComment(p.ID, stranger, "lovely colours")
	svc := NewCommentService(s.client)

	s.Require().NoError(svc.ViewComments(s.ctx, p.ID))
	s.Contains(s.out.String(), "1 comment")
	s.Contains(s.out.String(), "lovely colours")

	s.out.Reset()
	s.Require().NoError(svc.PostComment(s.ctx, p.ID, "  agreed  "))
	s.Contains(s.out.String(), "Comment posted")
	s.Contains(s.out.String(), "Message: agreed")

	s.out.Reset()
	s.Require().NoError(svc.ViewComments(s.ctx, p.ID))
	s.Contains(s.out.String(), "2 comments")

	s.Require().NoError(svc.DeleteComment(s.ctx, p.ID, 2, true))
	s.Contains(s.out.String(), "Comment 2 deleted")

	err := svc.DeleteComment(s.ctx, p.ID, 1, true)
	s.Equal(clierrors.ErrorTypeForbidden, s.errorType(err))
}

func (s *ServiceSuite) TestPostCommentPrompt() {
	p := s.server.Seed(1, stranger)[0]
	svc := NewCommentService(s.client)

	s.input("line one\nline two\n\n")
	s.Require().NoError(svc.PostComment(s.ctx, p.ID, ""))
	s.Contains(s.out.String(), "Comment posted")

	s.input("\n")
	s.Equal(clierrors.ErrorTypeValidation, s.errorType(svc.PostComment(s.ctx, p.ID, "")))

	long := strings.Repeat("x", 2001)
	s.Equal(clierrors.ErrorTypeValidation, s.errorType(svc.PostComment(s.ctx, p.ID, long)))
}

func (s *ServiceSuite) TestNoComments() {
	p := s.server.Seed(1, stranger)[0]

	s.Require().NoError(NewCommentService(s.client).ViewComments(s.ctx, p.ID))
	s.Contains(s.out.String(), "No comments on photo")
}

func (s *ServiceSuite) TestVotes() {
	p := s.server.Seed(1, stranger)[0]
	svc := NewVoteService(s.client)

	s.Require().NoError(svc.Like(s.ctx, p.ID))
	s.Contains(s.out.String(), "Liked photo")
	voted, err := s.client.HasVoted(p.ID)
	s.Require().NoError(err)
	s.True(voted)

	s.Require().NoError(svc.Dislike(s.ctx, p.ID))
	liked, err := s.client.IsLiked(p.ID)
	s.Require().NoError(err)
	s.False(liked)

	s.Equal(clierrors.ErrorTypeNotFound, s.errorType(svc.Like(s.ctx, 999)))
}

func (s *ServiceSuite) TestCacheInfoAndClear() {
	s.server.Seed(2, stranger)
	s.Require().NoError(NewPhotoService(s.client).ListPhotos(s.ctx))
	svc := NewCacheService(s.client)

	s.out.Reset()
	s.Require().NoError(svc.Info())
	s.Contains(s.out.String(), "cached_pages: 1")
	s.Contains(s.out.String(), "images: 2 files")

	s.input("n\n")
	s.Require().NoError(svc.Clear(false))
	s.Contains(s.out.String(), "Cancelled")

	s.Require().NoError(svc.Clear(true))
	s.out.Reset()
	s.Require().NoError(svc.Info())
	s.Contains(s.out.String(), "cached_pages: 0")
	s.Contains(s.out.String(), "images: 0 files")
}

func (s *ServiceSuite) TestWatch() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- NewWatchService(s.client).Watch(ctx, "") }()

	s.Require().True(s.server.WaitForSockets(1, 5*time.Second))
	s.server.Emit("new_photo", map[string]interface{}{"id": 42, "description": "fresh upload"})
	s.server.Emit("new_vote", map[string]interface{}{"photo_id": 42, "votes": 3})
	s.server.Emit("comment_deleted", map[string]interface{}{"id": 5, "photo_id": 42})

	s.Eventually(func() bool {
		out := s.out.String()
		return strings.Contains(out, "New photo 42: fresh upload") &&
			strings.Contains(out, "Photo 42 now has 3 votes") &&
			strings.Contains(out, "Comment 5 deleted from photo 42")
	}, 5*time.Second, 10*time.Millisecond)
	s.Contains(s.out.String(), "Watching for photostream events")

	cancel()
	select {
	case err := <-done:
		s.True(errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		s.Fail("watch did not stop")
	}
	s.False(s.client.IsConnected())
}

func (s *ServiceSuite) TestWatchBadMetricsAddr() {
	err := NewWatchService(s.client).Watch(s.ctx, "not-an-address")
	s.Error(err)
	s.Contains(err.Error(), "failed to serve metrics")
}

func (s *ServiceSuite) TestInstallation() {
	svc := NewInstallationService()

	s.Require().NoError(svc.Show())
	s.Contains(s.out.String(), "installation_id: "+s.me)

	s.Require().NoError(svc.Reset(true))
	id, err := installation.Load()
	s.Require().NoError(err)
	s.NotEqual(s.me, id)
	s.Contains(s.out.String(), "New installation id: "+id)
}
